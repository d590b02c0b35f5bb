package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	messagesSent      metric.Int64Counter
	messagesBlocked   metric.Int64Counter
	responsesRecorded metric.Int64Counter
	codesIssued       metric.Int64Counter
	codesRedeemed     metric.Int64Counter
	paymentsCaptured  metric.Int64Counter
	quotaExhaustions  metric.Int64Counter
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.messagesSent, err = meter.Int64Counter(
		"confession_service.messages.sent",
		metric.WithDescription("Total number of anonymous messages sent"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	m.messagesBlocked, err = meter.Int64Counter(
		"confession_service.messages.blocked",
		metric.WithDescription("Total number of messages blocked by the moderation gate"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	m.responsesRecorded, err = meter.Int64Counter(
		"confession_service.responses.recorded",
		metric.WithDescription("Total number of anonymous replies recorded"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	m.codesIssued, err = meter.Int64Counter(
		"confession_service.codes.issued",
		metric.WithDescription("Total number of redemption codes minted"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, err
	}

	m.codesRedeemed, err = meter.Int64Counter(
		"confession_service.codes.redeemed",
		metric.WithDescription("Total number of redemption codes consumed"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, err
	}

	m.paymentsCaptured, err = meter.Int64Counter(
		"confession_service.payments.captured",
		metric.WithDescription("Total number of payments captured successfully"),
		metric.WithUnit("{payment}"),
	)
	if err != nil {
		return nil, err
	}

	m.quotaExhaustions, err = meter.Int64Counter(
		"confession_service.quota.exhaustions",
		metric.WithDescription("Total number of sends rejected for exhausted quota"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordMessageSent(ctx context.Context) {
	if m != nil && m.messagesSent != nil {
		m.messagesSent.Add(ctx, 1)
	}
}

func (m *Metrics) RecordMessageBlocked(ctx context.Context) {
	if m != nil && m.messagesBlocked != nil {
		m.messagesBlocked.Add(ctx, 1)
	}
}

func (m *Metrics) RecordResponseRecorded(ctx context.Context) {
	if m != nil && m.responsesRecorded != nil {
		m.responsesRecorded.Add(ctx, 1)
	}
}

func (m *Metrics) RecordCodeIssued(ctx context.Context) {
	if m != nil && m.codesIssued != nil {
		m.codesIssued.Add(ctx, 1)
	}
}

func (m *Metrics) RecordCodeRedeemed(ctx context.Context) {
	if m != nil && m.codesRedeemed != nil {
		m.codesRedeemed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordPaymentCaptured(ctx context.Context) {
	if m != nil && m.paymentsCaptured != nil {
		m.paymentsCaptured.Add(ctx, 1)
	}
}

func (m *Metrics) RecordQuotaExhausted(ctx context.Context) {
	if m != nil && m.quotaExhaustions != nil {
		m.quotaExhaustions.Add(ctx, 1)
	}
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{}
}
