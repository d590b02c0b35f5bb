package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 5 * time.Second

// Prediction is one label/score pair from the toxicity classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier is the external toxicity model consumed by the gate.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Prediction, error)
}

// Client calls a HuggingFace-inference-style classification endpoint.
type Client struct {
	apiURL string
	apiKey string
	client *http.Client
}

type classifyRequest struct {
	Inputs string `json:"inputs"`
}

func NewClient(apiURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Classify submits the raw text and returns the model's predictions for it.
// A single attempt is made; callers own the failure policy.
func (c *Client) Classify(ctx context.Context, text string) ([]Prediction, error) {
	body, err := json.Marshal(classifyRequest{Inputs: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, raw)
	}

	// The inference API nests predictions one level deep: [[{label, score}]]
	var results [][]Prediction
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("classifier returned no predictions")
	}

	return results[0], nil
}
