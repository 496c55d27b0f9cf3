package payment

import (
	"context"
	"fmt"
	"net/http"

	"bike-storefront/internal/config"
	"bike-storefront/internal/domain"
)

// PaymentGateway opens checkout sessions and reports the bank verdict for
// them. Transport failures are returned wrapping domain.ErrGatewayUnavailable.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error)
	// Verify returns an empty slice while the gateway has no verdict yet.
	Verify(ctx context.Context, reference string) ([]domain.Verdict, error)
}

// New builds the gateway selected by cfg.Provider.
func New(cfg config.Payment) (PaymentGateway, error) {
	switch cfg.Provider {
	case config.GatewayShurjoPay:
		return NewShurjoPay(ShurjoPayConfig{
			Endpoint:  cfg.SPEndpoint,
			Username:  cfg.SPUsername,
			Password:  cfg.SPPassword,
			Prefix:    cfg.SPPrefix,
			ReturnURL: cfg.SPReturnURL,
		}, &http.Client{Timeout: cfg.Timeout}), nil
	case config.GatewayStripe:
		return NewStripeGateway(StripeConfig{
			SecretKey:  cfg.StripeKey,
			SuccessURL: cfg.StripeSuccessURL,
			CancelURL:  cfg.StripeCancelURL,
		}, nil), nil
	case config.GatewayMock, "":
		return NewPaymentGateway(), nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, op, err)
}
