package moderation

import (
	"context"
	"log/slog"
	"strings"
)

// toxicLabel is the only classifier label the gate consumes.
const toxicLabel = "toxic"

// Gate screens message content before anything is persisted. It fails open:
// when the classifier is unreachable, unconfigured, or returns garbage, the
// content is allowed through. Availability of the send path is prioritized
// over moderation strictness when the dependency degrades.
type Gate struct {
	classifier Classifier
	threshold  float64
	enabled    bool
	logger     *slog.Logger
}

func NewGate(classifier Classifier, threshold float64, enabled bool, logger *slog.Logger) *Gate {
	return &Gate{
		classifier: classifier,
		threshold:  threshold,
		enabled:    enabled,
		logger:     logger,
	}
}

// Check reports whether the text may be sent. Only a confident "toxic"
// verdict blocks; every degraded outcome allows.
func (g *Gate) Check(ctx context.Context, text string) bool {
	if !g.enabled {
		g.logger.WarnContext(ctx, "moderation disabled: no classifier credential configured")
		return true
	}

	predictions, err := g.classifier.Classify(ctx, text)
	if err != nil {
		g.logger.ErrorContext(ctx, "moderation degraded, allowing content", "error", err)
		return true
	}

	for _, p := range predictions {
		if strings.EqualFold(p.Label, toxicLabel) && p.Score > g.threshold {
			g.logger.InfoContext(ctx, "content blocked for toxicity", "score", p.Score)
			return false
		}
	}

	return true
}
