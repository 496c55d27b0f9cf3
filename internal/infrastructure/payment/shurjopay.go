package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"bike-storefront/internal/domain"
)

type ShurjoPayConfig struct {
	Endpoint  string
	Username  string
	Password  string
	Prefix    string
	ReturnURL string
}

type spToken struct {
	Token     string `json:"token"`
	StoreID   int    `json:"store_id"`
	ExecURL   string `json:"execute_url"`
	TokenType string `json:"token_type"`
	Code      string `json:"sp_code"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`

	expiresAt time.Time
}

type spPayRequest struct {
	Token           string `json:"token"`
	StoreID         int    `json:"store_id"`
	Prefix          string `json:"prefix"`
	ReturnURL       string `json:"return_url"`
	CancelURL       string `json:"cancel_url"`
	Amount          string `json:"amount"`
	OrderID         string `json:"order_id"`
	Currency        string `json:"currency"`
	CustomerName    string `json:"customer_name"`
	CustomerAddress string `json:"customer_address"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerCity    string `json:"customer_city"`
	ClientIP        string `json:"client_ip"`
}

type spPayResponse struct {
	CheckoutURL       string `json:"checkout_url"`
	OrderID           string `json:"sp_order_id"`
	TransactionStatus string `json:"transactionStatus"`
	Message           string `json:"message"`
}

type shurjoPay struct {
	cfg  ShurjoPayConfig
	http *http.Client

	mu    sync.Mutex
	token *spToken
}

// NewShurjoPay returns a client for the ShurjoPay v2 API.
func NewShurjoPay(cfg ShurjoPayConfig, client *http.Client) PaymentGateway {
	if client == nil {
		client = http.DefaultClient
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &shurjoPay{cfg: cfg, http: client}
}

func (s *shurjoPay) CreateSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error) {
	tok, err := s.authenticate(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	body := spPayRequest{
		Token:           tok.Token,
		StoreID:         tok.StoreID,
		Prefix:          s.cfg.Prefix,
		ReturnURL:       s.cfg.ReturnURL,
		CancelURL:       s.cfg.ReturnURL,
		Amount:          req.Amount.StringFixed(2),
		OrderID:         req.OrderRef,
		Currency:        req.Currency,
		CustomerName:    req.Buyer.Name,
		CustomerAddress: req.Buyer.Address,
		CustomerEmail:   req.Buyer.Email,
		CustomerPhone:   req.Buyer.Phone,
		CustomerCity:    "N/A",
		ClientIP:        req.ClientIP,
	}
	var out spPayResponse
	if err := s.post(ctx, "/api/secret-pay", tok, body, &out); err != nil {
		return domain.Session{}, unavailable("secret-pay", err)
	}
	if out.CheckoutURL == "" {
		return domain.Session{}, unavailable("secret-pay", fmt.Errorf("no checkout url: %s", out.Message))
	}
	return domain.Session{
		CheckoutURL:       out.CheckoutURL,
		GatewayReference:  out.OrderID,
		TransactionStatus: out.TransactionStatus,
	}, nil
}

func (s *shurjoPay) Verify(ctx context.Context, reference string) ([]domain.Verdict, error) {
	tok, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Verdict
	if err := s.post(ctx, "/api/verification", tok, map[string]string{"order_id": reference}, &out); err != nil {
		return nil, unavailable("verification", err)
	}
	if out == nil {
		out = []domain.Verdict{}
	}
	return out, nil
}

// authenticate returns a cached token or fetches a new one. The lock is not
// held while the request is in flight.
func (s *shurjoPay) authenticate(ctx context.Context) (*spToken, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()
	if tok != nil && time.Now().Before(tok.expiresAt) {
		return tok, nil
	}

	fresh := &spToken{}
	creds := map[string]string{"username": s.cfg.Username, "password": s.cfg.Password}
	if err := s.post(ctx, "/api/get_token", nil, creds, fresh); err != nil {
		return nil, unavailable("get_token", err)
	}
	if fresh.Token == "" {
		return nil, unavailable("get_token", fmt.Errorf("rejected: %s %s", fresh.Code, fresh.Message))
	}
	fresh.expiresAt = tokenExpiry(time.Now(), fresh.ExpiresIn)

	s.mu.Lock()
	s.token = fresh
	s.mu.Unlock()
	return fresh, nil
}

// tokenExpiry is when a token issued at now stops being reused. It is a
// minute ahead of the gateway's expiry, or a quarter of the lifetime for
// tokens shorter than four minutes.
func tokenExpiry(now time.Time, expiresIn int) time.Time {
	ttl := time.Duration(expiresIn) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return now.Add(ttl - min(time.Minute, ttl/4))
}

func (s *shurjoPay) post(ctx context.Context, path string, tok *spToken, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != nil {
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && tok != nil {
		s.mu.Lock()
		if s.token == tok {
			s.token = nil
		}
		s.mu.Unlock()
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(fmt.Errorf("%s: decode response", path), err)
	}
	return nil
}
