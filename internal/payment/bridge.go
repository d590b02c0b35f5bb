package payment

import (
	"context"
	"errors"
	"log/slog"

	"confession-service/internal/redemption"
)

var (
	ErrProviderError      = errors.New("payment provider is unavailable")
	ErrPaymentIncomplete  = errors.New("payment was not completed")
	ErrPaymentNotVerified = errors.New("payment could not be verified")
)

const (
	// PackPrice is the fixed price of the 5-message pack in the provider's
	// currency.
	PackPrice    = 3.00
	PackCurrency = "USD"
	packProduct  = "5-message pack - anonymous messages"

	statusCompleted = "COMPLETED"
)

// Bridge coordinates the provider and the redemption vault: create charge,
// verify the capture, mint exactly one code on verified success. It holds no
// state of its own.
type Bridge struct {
	provider Provider
	vault    *redemption.Vault
	logger   *slog.Logger
}

func NewBridge(provider Provider, vault *redemption.Vault, logger *slog.Logger) *Bridge {
	return &Bridge{
		provider: provider,
		vault:    vault,
		logger:   logger,
	}
}

// CreateOrder requests a provider-hosted charge for the message pack and
// returns the order id for client-side approval.
func (b *Bridge) CreateOrder(ctx context.Context) (string, error) {
	orderID, err := b.provider.CreateOrder(ctx, PackPrice, PackCurrency, packProduct)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to create provider order", "error", err)
		return "", ErrProviderError
	}
	return orderID, nil
}

// CaptureAndMint captures the approved order, verifies the outcome and mints
// a redemption code. Nothing is minted unless the captured status is
// COMPLETED and the captured amount covers the pack price (a client can
// tamper with the displayed amount, never with the captured one).
func (b *Bridge) CaptureAndMint(ctx context.Context, orderID string) (*redemption.Code, error) {
	capture, err := b.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to capture provider order", "order_id", orderID, "error", err)
		return nil, ErrProviderError
	}

	if capture.Status != statusCompleted {
		b.logger.WarnContext(ctx, "capture not completed", "order_id", orderID, "status", capture.Status)
		return nil, ErrPaymentIncomplete
	}
	if capture.Amount < PackPrice {
		b.logger.WarnContext(ctx, "captured amount below pack price", "order_id", orderID, "amount", capture.Amount)
		return nil, ErrPaymentNotVerified
	}

	code, err := b.vault.Issue(ctx)
	if err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "payment captured and code minted", "order_id", orderID, "code_id", code.ID)
	return code, nil
}
