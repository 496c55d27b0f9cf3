package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bike-storefront/internal/ctxmanage"
	"bike-storefront/internal/domain"
	"bike-storefront/internal/infrastructure/events"
	"bike-storefront/internal/infrastructure/payment"
	"bike-storefront/internal/logkey"
	"bike-storefront/internal/query"
	"bike-storefront/internal/repo"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Checkout is the result of placing an order.
type Checkout struct {
	OrderID     uuid.UUID   `json:"orderId"`
	CheckoutURL string      `json:"checkoutUrl,omitempty"`
	Dropped     []uuid.UUID `json:"dropped,omitempty"`
}

// Verification reports one reconciliation attempt. Verdict is nil when the
// gateway could not be asked or had nothing to say yet.
type Verification struct {
	Order    *domain.Order    `json:"order,omitempty"`
	Verdict  *domain.Verdict  `json:"verdict,omitempty"`
	Verdicts []domain.Verdict `json:"verdicts"`
	Applied  bool             `json:"applied"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, buyerID uuid.UUID, lines []domain.OrderLine, clientIP string) (*Checkout, error)
	VerifyPayment(ctx context.Context, reference string) (*Verification, error)
	UpdateOrderStatus(ctx context.Context, orderId uuid.UUID, target domain.OrderStatus) (*domain.Order, error)
	ListOrders(ctx context.Context, requester domain.Principal, params map[string]string) (*Page[domain.Order], error)
	GetOrder(ctx context.Context, requester domain.Principal, orderId uuid.UUID) (*domain.Order, error)
	Payments(ctx context.Context, requester domain.Principal, orderId uuid.UUID) ([]domain.PaymentAttempt, error)
}

type OrderOptions struct {
	Currency       string
	GatewayTimeout time.Duration
	// ResolveWorkers bounds concurrent catalog lookups per order.
	ResolveWorkers int
}

type orderService struct {
	txm         repo.TxManager
	orderRepo   repo.OrderRepo
	bikeRepo    repo.BikeRepo
	userRepo    repo.UserRepo
	paymentRepo repo.PaymentRepo
	paymentGtw  payment.PaymentGateway
	publisher   events.Publisher
	opts        OrderOptions
}

func NewOrderService(
	txm repo.TxManager,
	orderRepo repo.OrderRepo,
	bikeRepo repo.BikeRepo,
	userRepo repo.UserRepo,
	paymentRepo repo.PaymentRepo,
	paymentGtw payment.PaymentGateway,
	publisher events.Publisher,
	opts OrderOptions,
) OrderService {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.ResolveWorkers <= 0 {
		opts.ResolveWorkers = 8
	}
	if opts.Currency == "" {
		opts.Currency = "BDT"
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &orderService{
		txm:         txm,
		orderRepo:   orderRepo,
		bikeRepo:    bikeRepo,
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		paymentGtw:  paymentGtw,
		publisher:   publisher,
		opts:        opts,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, buyerID uuid.UUID, lines []domain.OrderLine, clientIP string) (*Checkout, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no products", domain.ErrInvalidOrder)
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", domain.ErrInvalidOrder, l.ProductID)
		}
	}

	buyer, err := s.userRepo.FindById(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	items, dropped, err := s.resolve(ctx, lines)
	if err != nil {
		return nil, err
	}
	for _, id := range dropped {
		slog.WarnContext(ctx, "product not found, dropped from order",
			slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.UserID, buyerID.String()),
			slog.String(logkey.ProductID, id.String()))
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: none of the products exist", domain.ErrInvalidOrder)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:         uuid.New(),
		UserID:     buyer.ID,
		Items:      items,
		TotalPrice: domain.PriceLines(items),
		Status:     domain.OrderPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.txm.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.orderRepo.CreateOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderCreated, order, "")

	checkout := &Checkout{OrderID: order.ID, Dropped: dropped}

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	session, err := s.paymentGtw.CreateSession(gctx, domain.SessionRequest{
		Amount:   order.TotalPrice,
		Currency: s.opts.Currency,
		OrderRef: order.ID.String(),
		Buyer:    buyer.Buyer(),
		ClientIP: clientIP,
	})
	attempt := &domain.PaymentAttempt{
		OrderID: order.ID,
		Kind:    domain.AttemptSession,
		Amount:  order.TotalPrice,
	}
	if err != nil {
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		attempt.Error = err.Error()
		s.record(ctx, attempt)
		slog.ErrorContext(ctx, "checkout session failed, order left pending",
			slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.OrderID, order.ID.String()),
			slog.String(logkey.ERROR, err.Error()))
		return checkout, fmt.Errorf("order %s placed: %w", order.ID, err)
	}

	attempt.GatewayReference = session.GatewayReference
	attempt.TransactionStatus = session.TransactionStatus
	s.record(ctx, attempt)

	checkout.CheckoutURL = session.CheckoutURL
	if session.GatewayReference != "" || session.TransactionStatus != "" {
		if err := s.orderRepo.AttachSession(ctx, nil, order.ID, session); err != nil {
			// Reconciliation recovers the reference from the session attempt.
			slog.ErrorContext(ctx, "checkout session opened but not stored on the order",
				slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
				slog.String(logkey.OrderID, order.ID.String()),
				slog.String(logkey.Reference, session.GatewayReference),
				slog.String(logkey.ERROR, err.Error()))
			return checkout, fmt.Errorf("order %s placed: %w: session %s not stored: %v",
				order.ID, domain.ErrGatewayUnavailable, session.GatewayReference, err)
		}
	}
	return checkout, nil
}

// resolve prices lines against the catalog concurrently. Unknown products are
// returned in dropped; order of the remaining lines is kept.
func (s *orderService) resolve(ctx context.Context, lines []domain.OrderLine) ([]domain.LineItem, []uuid.UUID, error) {
	resolved := make([]*domain.LineItem, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ResolveWorkers)
	for i, l := range lines {
		g.Go(func() error {
			stock, err := s.bikeRepo.GetStock(gctx, nil, l.ProductID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("resolve product %s: %w", l.ProductID, err)
			}
			resolved[i] = &domain.LineItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: stock.Price}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var items []domain.LineItem
	var dropped []uuid.UUID
	for i, it := range resolved {
		if it == nil {
			dropped = append(dropped, lines[i].ProductID)
			continue
		}
		items = append(items, *it)
	}
	return items, dropped, nil
}

func (s *orderService) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: order_id is required", domain.ErrValidation)
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	verdicts, err := s.paymentGtw.Verify(gctx, reference)
	if err != nil {
		slog.WarnContext(ctx, "verification unavailable, will retry later",
			slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.Reference, reference),
			slog.String(logkey.ERROR, err.Error()))
		return &Verification{Verdicts: []domain.Verdict{}}, nil
	}
	if len(verdicts) == 0 {
		return &Verification{Verdicts: verdicts}, nil
	}

	v := verdicts[0]
	result := &Verification{Verdict: &v, Verdicts: verdicts}
	var previous domain.OrderStatus

	err = s.txm.WithinTx(ctx, func(tx *sql.Tx) error {
		order, err := s.lockForVerdict(ctx, tx, reference, v)
		if err != nil {
			return err
		}
		result.Order = order
		previous = order.Status
		if order.Status != domain.OrderPending {
			return nil
		}

		target, decided := domain.StatusFor(v.BankStatus)
		if decided && target == domain.OrderPaid {
			for _, it := range order.Items {
				if err := s.bikeRepo.Debit(ctx, tx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
		}
		if decided {
			order.Status = target
		}
		txn := v.Transaction(reference)
		order.Transaction = &txn
		if err := s.orderRepo.UpdateOrder(ctx, tx, order, order.Version); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})

	if result.Order != nil {
		attempt := &domain.PaymentAttempt{
			OrderID:           result.Order.ID,
			Kind:              domain.AttemptVerification,
			GatewayReference:  reference,
			Amount:            result.Order.TotalPrice,
			TransactionStatus: v.TransactionStatus,
			BankStatus:        v.BankStatus,
		}
		if err != nil {
			attempt.Error = err.Error()
		}
		s.record(ctx, attempt)
	}
	if err != nil {
		slog.ErrorContext(ctx, "verdict not applied",
			slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.Reference, reference),
			slog.String(logkey.ERROR, err.Error()))
		return nil, err
	}

	if result.Applied && result.Order.Status != previous {
		kind := events.OrderStatusChanged
		if result.Order.Status == domain.OrderPaid {
			kind = events.OrderPaid
		}
		s.publish(ctx, kind, result.Order, previous)
	}
	slog.InfoContext(ctx, "payment verified",
		slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
		slog.String(logkey.OrderID, result.Order.ID.String()),
		slog.String(logkey.Reference, reference),
		slog.String("bank_status", v.BankStatus),
		slog.String(logkey.Status, string(result.Order.Status)),
		slog.Bool("applied", result.Applied))
	return result, nil
}

// lockForVerdict finds the order by gateway reference and falls back to the
// order id the gateway echoes back.
func (s *orderService) lockForVerdict(ctx context.Context, tx *sql.Tx, reference string, v domain.Verdict) (*domain.Order, error) {
	order, err := s.orderRepo.LockByReference(ctx, tx, reference)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return order, err
	}
	id, perr := uuid.Parse(v.CustomerOrderID)
	if perr != nil {
		return nil, err
	}
	return s.orderRepo.LockById(ctx, tx, id)
}

// predecessor is the only status an admin may move an order from to reach
// the key status.
var predecessor = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderShipped:   domain.OrderPaid,
	domain.OrderDelivered: domain.OrderShipped,
	domain.OrderCancelled: domain.OrderPending,
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, orderId uuid.UUID, target domain.OrderStatus) (*domain.Order, error) {
	order, err := s.orderRepo.FindById(ctx, nil, orderId)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: Order already %s", domain.ErrTerminalState, order.Status)
	}
	from, ok := predecessor[target]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, target)
	}
	if order.Status != from {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, target)
	}

	previous := order.Status
	order.Status = target
	if err := s.orderRepo.UpdateOrder(ctx, nil, order, order.Version); err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderStatusChanged, order, previous)
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, requester domain.Principal, params map[string]string) (*Page[domain.Order], error) {
	b := query.NewBuilder(repo.OrderResource, params)
	if !requester.Elevated() {
		b.Scope("user_id = ?", requester.UserID)
	}
	b.Apply()

	orders, total, err := s.orderRepo.List(ctx, b)
	if err != nil {
		return nil, err
	}
	logWarnings(ctx, repo.OrderResource.Table, b.Warnings())
	return &Page[domain.Order]{Items: orders, Meta: b.Meta(total), Warnings: b.Warnings(), Fields: b.Selected()}, nil
}

func (s *orderService) GetOrder(ctx context.Context, requester domain.Principal, orderId uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindById(ctx, nil, orderId)
	if err != nil {
		return nil, err
	}
	if !requester.Elevated() && order.UserID != requester.UserID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", domain.ErrForbidden, orderId)
	}
	return order, nil
}

func (s *orderService) Payments(ctx context.Context, requester domain.Principal, orderId uuid.UUID) ([]domain.PaymentAttempt, error) {
	if _, err := s.GetOrder(ctx, requester, orderId); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByOrder(ctx, orderId)
}

func (s *orderService) record(ctx context.Context, attempt *domain.PaymentAttempt) {
	if err := s.paymentRepo.RecordAttempt(ctx, nil, attempt); err != nil {
		slog.WarnContext(ctx, "payment attempt not recorded",
			slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.OrderID, attempt.OrderID.String()),
			slog.String(logkey.ERROR, err.Error()))
	}
}

func (s *orderService) publish(ctx context.Context, kind string, order *domain.Order, previous domain.OrderStatus) {
	if err := s.publisher.Publish(ctx, events.NewEvent(kind, order, previous)); err != nil {
		slog.WarnContext(ctx, "order event not published",
			slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.OrderID, order.ID.String()),
			slog.String("event", kind),
			slog.String(logkey.ERROR, err.Error()))
	}
}
