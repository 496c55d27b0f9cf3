package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"bike-storefront/internal/domain"
	"bike-storefront/internal/infrastructure/events"
	"bike-storefront/internal/query"

	"github.com/google/uuid"
)

// memStore backs every repository with maps. Transactions are serialized and
// rolled back by restoring a snapshot, which is enough to stand in for row
// locks and atomic commits.
type memStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	bikes    map[uuid.UUID]domain.Bike
	users    map[uuid.UUID]domain.User
	orders   map[uuid.UUID]domain.Order
	attempts []domain.PaymentAttempt
	debits   int

	attachErr error
	lastList  *query.Builder
}

func newMemStore() *memStore {
	return &memStore{
		bikes:  make(map[uuid.UUID]domain.Bike),
		users:  make(map[uuid.UUID]domain.User),
		orders: make(map[uuid.UUID]domain.Order),
	}
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.LineItem(nil), o.Items...)
	if o.Transaction != nil {
		t := *o.Transaction
		o.Transaction = &t
	}
	return o
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	bikes := maps.Clone(m.bikes)
	orders := make(map[uuid.UUID]domain.Order, len(m.orders))
	for k, v := range m.orders {
		orders[k] = cloneOrder(v)
	}
	debits := m.debits
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.bikes, m.orders, m.debits = bikes, orders, debits
		m.mu.Unlock()
		return err
	}
	return nil
}

// bike repo

type memBikes struct{ *memStore }

func (r memBikes) Create(_ context.Context, _ *sql.Tx, b *domain.Bike) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.InStock = b.Quantity > 0
	r.bikes[b.ID] = *b
	return nil
}

func (r memBikes) FindById(_ context.Context, id uuid.UUID) (*domain.Bike, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bikes[id]
	if !ok {
		return nil, fmt.Errorf("%w: bike %s", domain.ErrNotFound, id)
	}
	return &b, nil
}

func (r memBikes) GetStock(_ context.Context, _ *sql.Tx, id uuid.UUID) (domain.Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bikes[id]
	if !ok {
		return domain.Stock{}, fmt.Errorf("%w: bike %s", domain.ErrNotFound, id)
	}
	return domain.Stock{Price: b.Price, Quantity: b.Quantity, InStock: b.InStock}, nil
}

func (r memBikes) Debit(_ context.Context, _ *sql.Tx, id uuid.UUID, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bikes[id]
	if !ok {
		return fmt.Errorf("%w: bike %s", domain.ErrNotFound, id)
	}
	if b.Quantity < amount {
		return fmt.Errorf("%w: bike %s", domain.ErrInsufficientStock, id)
	}
	b.Quantity -= amount
	if b.Quantity == 0 {
		b.InStock = false
	}
	r.bikes[id] = b
	r.debits++
	return nil
}

func (r memBikes) List(_ context.Context, b *query.Builder) ([]domain.Bike, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastList = b
	out := make([]domain.Bike, 0, len(r.bikes))
	for _, bike := range r.bikes {
		out = append(out, bike)
	}
	return out, len(out), nil
}

// user repo

type memUsers struct{ *memStore }

func (r memUsers) Create(_ context.Context, _ *sql.Tx, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = *u
	return nil
}

func (r memUsers) FindById(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return &u, nil
}

// order repo

type memOrders struct{ *memStore }

func (r memOrders) CreateOrder(_ context.Context, _ *sql.Tx, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r memOrders) FindById(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r memOrders) LockById(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Order, error) {
	return r.FindById(ctx, tx, id)
}

func (r memOrders) LockByReference(_ context.Context, _ *sql.Tx, reference string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Transaction != nil && o.Transaction.GatewayReference == reference {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, reference)
}

func (r memOrders) AttachSession(_ context.Context, _ *sql.Tx, id uuid.UUID, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attachErr != nil {
		return r.attachErr
	}
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	if o.Transaction == nil {
		o.Transaction = &domain.Transaction{}
	}
	if o.Transaction.GatewayReference == "" {
		o.Transaction.GatewayReference = s.GatewayReference
	}
	o.Transaction.TransactionStatus = s.TransactionStatus
	o.Version++
	r.orders[id] = o
	return nil
}

func (r memOrders) UpdateOrder(_ context.Context, _ *sql.Tx, o *domain.Order, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok || cur.Version != expectedVersion {
		return fmt.Errorf("%w: order %s", domain.ErrConflict, o.ID)
	}
	o.Version = expectedVersion + 1
	o.UpdatedAt = time.Now().UTC()
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r memOrders) FindStuckOrders(_ context.Context, _ time.Duration, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.Status == domain.OrderPending && o.Transaction != nil && len(out) < limit {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r memOrders) List(_ context.Context, b *query.Builder) ([]domain.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastList = b
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, cloneOrder(o))
	}
	return out, len(out), nil
}

// payment repo

type memPayments struct {
	*memStore
	fail bool
}

func (r *memPayments) RecordAttempt(_ context.Context, _ *sql.Tx, a *domain.PaymentAttempt) error {
	if r.fail {
		return errors.New("audit table unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *memPayments) ListByOrder(_ context.Context, id uuid.UUID) ([]domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentAttempt
	for _, a := range r.attempts {
		if a.OrderID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
