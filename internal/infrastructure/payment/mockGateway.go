package payment

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"bike-storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockGateway is an in-memory gateway. Sessions stay unsettled until Settle
// or SettleRandom plays the buyer's part.
type MockGateway struct {
	mu       sync.RWMutex
	sessions map[string]*mockSession
	down     bool
	latency  time.Duration
}

type mockSession struct {
	orderRef  string
	amount    decimal.Decimal
	bank      string
	method    string
	settledAt time.Time
}

func NewPaymentGateway() *MockGateway {
	return &MockGateway{sessions: make(map[string]*mockSession)}
}

// SetDown makes every call fail as if the gateway were unreachable.
func (g *MockGateway) SetDown(down bool) {
	g.mu.Lock()
	g.down = down
	g.mu.Unlock()
}

func (g *MockGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	g.latency = d
	g.mu.Unlock()
}

func (g *MockGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error) {
	if err := g.wait(ctx, "secret-pay"); err != nil {
		return domain.Session{}, err
	}
	ref := "SP" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])

	g.mu.Lock()
	g.sessions[ref] = &mockSession{orderRef: req.OrderRef, amount: req.Amount}
	g.mu.Unlock()

	return domain.Session{
		CheckoutURL:       "https://sandbox.mock-pay.local/checkout/" + ref,
		GatewayReference:  ref,
		TransactionStatus: "Initiated",
	}, nil
}

func (g *MockGateway) Verify(ctx context.Context, reference string) ([]domain.Verdict, error) {
	if err := g.wait(ctx, "verification"); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.sessions[reference]
	if !ok || s.bank == "" {
		return []domain.Verdict{}, nil
	}
	return []domain.Verdict{{
		CustomerOrderID:   s.orderRef,
		BankStatus:        s.bank,
		GatewayCode:       mockCode(s.bank),
		GatewayMessage:    s.bank,
		TransactionStatus: "Completed",
		Method:            s.method,
		Timestamp:         s.settledAt.Format(time.DateTime),
	}}, nil
}

// Settle records the bank's answer for a session.
func (g *MockGateway) Settle(reference, bankStatus string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[reference]
	if !ok {
		return errors.New("unknown session " + reference)
	}
	s.bank = bankStatus
	s.method = "bKash"
	s.settledAt = time.Now().UTC()
	return nil
}

// SettleRandom settles a session with a weighted outcome and returns it.
func (g *MockGateway) SettleRandom(reference string) (string, error) {
	chance := rand.IntN(100)

	var bank string
	switch {
	case chance < 70:
		bank = domain.BankSuccess
	case chance < 90:
		bank = domain.BankFailed
	default:
		bank = domain.BankCancel
	}
	return bank, g.Settle(reference, bank)
}

func (g *MockGateway) wait(ctx context.Context, op string) error {
	g.mu.RLock()
	down, latency := g.down, g.latency
	g.mu.RUnlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return unavailable(op, ctx.Err())
		case <-time.After(latency):
		}
	}
	if down {
		return unavailable(op, errors.New("connection refused"))
	}
	return nil
}

func mockCode(bank string) string {
	switch bank {
	case domain.BankSuccess:
		return "1000"
	case domain.BankCancel:
		return "1002"
	}
	return "1001"
}
