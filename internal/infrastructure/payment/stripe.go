package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"bike-storefront/internal/domain"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

type stripeGateway struct {
	cfg StripeConfig
	api *client.API
}

// NewStripeGateway adapts Stripe Checkout. backends may be nil to talk to the
// live API.
func NewStripeGateway(cfg StripeConfig, backends *stripe.Backends) PaymentGateway {
	return &stripeGateway{cfg: cfg, api: client.New(cfg.SecretKey, backends)}
}

func (g *stripeGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderRef),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderRef),
				},
				UnitAmount: stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": req.OrderRef},
		},
	}
	if req.Buyer.Email != "" {
		params.CustomerEmail = stripe.String(req.Buyer.Email)
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return domain.Session{}, unavailable("checkout session", err)
	}
	return domain.Session{
		CheckoutURL:       sess.URL,
		GatewayReference:  sess.ID,
		TransactionStatus: string(sess.Status),
	}, nil
}

func (g *stripeGateway) Verify(ctx context.Context, reference string) ([]domain.Verdict, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(reference, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return []domain.Verdict{}, nil
		}
		return nil, unavailable("checkout session", err)
	}

	bank := stripeBankStatus(sess)
	if bank == "" {
		return []domain.Verdict{}, nil
	}
	return []domain.Verdict{{
		CustomerOrderID:   sess.ClientReferenceID,
		BankStatus:        bank,
		GatewayCode:       string(sess.PaymentStatus),
		GatewayMessage:    string(sess.Status),
		TransactionStatus: string(sess.Status),
		Method:            strings.Join(sess.PaymentMethodTypes, ","),
		Timestamp:         time.Unix(sess.Created, 0).UTC().Format(time.DateTime),
	}}, nil
}

// stripeBankStatus folds the session state into a bank status. Open sessions
// have no verdict yet.
func stripeBankStatus(sess *stripe.CheckoutSession) string {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return domain.BankSuccess
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return domain.BankCancel
	case sess.Status == stripe.CheckoutSessionStatusComplete:
		return domain.BankFailed
	}
	return ""
}
