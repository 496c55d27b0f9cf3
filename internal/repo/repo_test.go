package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bike-storefront/internal/database"
	"bike-storefront/internal/domain"
	"bike-storefront/internal/query"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type RepoSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sql.DB

	tx       TxManager
	bikes    BikeRepo
	users    UserRepo
	orders   OrderRepo
	payments PaymentRepo
}

func TestRepoSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	suite.Run(t, new(RepoSuite))
}

func (s *RepoSuite) SetupSuite() {
	s.ctx = context.Background()

	ctr, err := postgres.Run(s.ctx, "postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = ctr

	dsn, err := ctr.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sql.Open("pgx", dsn)
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(s.ctx, s.db))

	s.tx = NewTxManager(s.db)
	s.bikes = NewBikeRepo(s.db)
	s.users = NewUserRepo(s.db)
	s.orders = NewOrderRepo(s.db)
	s.payments = NewPaymentRepo(s.db)
}

func (s *RepoSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.Require().NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *RepoSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, `TRUNCATE payment_attempts, order_items, orders, bikes, users CASCADE`)
	s.Require().NoError(err)
}

func (s *RepoSuite) seedBike(name string, price string, qty int) *domain.Bike {
	b := &domain.Bike{
		Name:      name,
		Brand:     "Trek",
		Model:     name + "-1",
		Category:  "Road",
		RiderType: "Men",
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
	}
	s.Require().NoError(s.bikes.Create(s.ctx, nil, b))
	return b
}

func (s *RepoSuite) seedUser() *domain.User {
	u := &domain.User{Name: "Rider", Email: uuid.NewString() + "@example.com"}
	s.Require().NoError(s.users.Create(s.ctx, nil, u))
	return u
}

func (s *RepoSuite) seedOrder(user *domain.User, bike *domain.Bike, qty int) *domain.Order {
	now := time.Now().UTC()
	items := []domain.LineItem{{ProductID: bike.ID, Quantity: qty, UnitPrice: bike.Price}}
	o := &domain.Order{
		ID:         uuid.New(),
		UserID:     user.ID,
		Items:      items,
		TotalPrice: domain.PriceLines(items),
		Status:     domain.OrderPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.Require().NoError(s.tx.WithinTx(s.ctx, func(tx *sql.Tx) error {
		return s.orders.CreateOrder(s.ctx, tx, o)
	}))
	return o
}

func (s *RepoSuite) TestDebit_ReachesZeroAndClearsInStock() {
	bike := s.seedBike("Domane", "1200.00", 3)

	s.Require().NoError(s.bikes.Debit(s.ctx, nil, bike.ID, 2))
	stock, err := s.bikes.GetStock(s.ctx, nil, bike.ID)
	s.Require().NoError(err)
	s.Equal(1, stock.Quantity)
	s.True(stock.InStock)

	s.Require().NoError(s.bikes.Debit(s.ctx, nil, bike.ID, 1))
	stock, err = s.bikes.GetStock(s.ctx, nil, bike.ID)
	s.Require().NoError(err)
	s.Equal(0, stock.Quantity)
	s.False(stock.InStock)
}

func (s *RepoSuite) TestDebit_Insufficient() {
	bike := s.seedBike("Marlin", "800.00", 1)

	err := s.bikes.Debit(s.ctx, nil, bike.ID, 2)
	s.ErrorIs(err, domain.ErrInsufficientStock)

	stock, err := s.bikes.GetStock(s.ctx, nil, bike.ID)
	s.Require().NoError(err)
	s.Equal(1, stock.Quantity)
	s.True(stock.InStock)

	s.ErrorIs(s.bikes.Debit(s.ctx, nil, uuid.New(), 1), domain.ErrNotFound)
}

func (s *RepoSuite) TestDebit_ConcurrentNeverOversells() {
	bike := s.seedBike("Fuel", "4000.00", 5)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.bikes.Debit(s.ctx, nil, bike.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				refused++
			}
		}()
	}
	wg.Wait()

	s.Equal(5, ok)
	s.Equal(7, refused)
	stock, err := s.bikes.GetStock(s.ctx, nil, bike.ID)
	s.Require().NoError(err)
	s.Equal(0, stock.Quantity)
	s.False(stock.InStock)
}

func (s *RepoSuite) TestDebit_RolledBackWithTransaction() {
	a := s.seedBike("A", "10.00", 5)
	b := s.seedBike("B", "10.00", 1)

	err := s.tx.WithinTx(s.ctx, func(tx *sql.Tx) error {
		if err := s.bikes.Debit(s.ctx, tx, a.ID, 2); err != nil {
			return err
		}
		return s.bikes.Debit(s.ctx, tx, b.ID, 3)
	})
	s.ErrorIs(err, domain.ErrInsufficientStock)

	stock, err := s.bikes.GetStock(s.ctx, nil, a.ID)
	s.Require().NoError(err)
	s.Equal(5, stock.Quantity)
}

func (s *RepoSuite) TestOrder_CreateAndFind() {
	user := s.seedUser()
	bike := s.seedBike("Checkpoint", "1999.99", 4)
	o := s.seedOrder(user, bike, 2)

	got, err := s.orders.FindById(s.ctx, nil, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPending, got.Status)
	s.True(decimal.RequireFromString("3999.98").Equal(got.TotalPrice))
	s.Require().Len(got.Items, 1)
	s.Equal(bike.ID, got.Items[0].ProductID)
	s.Nil(got.Transaction)

	_, err = s.orders.FindById(s.ctx, nil, uuid.New())
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *RepoSuite) TestOrder_AttachSessionAndLockByReference() {
	user := s.seedUser()
	bike := s.seedBike("Émonda", "3000.00", 2)
	o := s.seedOrder(user, bike, 1)

	s.Require().NoError(s.orders.AttachSession(s.ctx, nil, o.ID, domain.Session{
		GatewayReference:  "SP-1",
		TransactionStatus: "Initiated",
	}))
	// A second session never replaces the first reference.
	s.Require().NoError(s.orders.AttachSession(s.ctx, nil, o.ID, domain.Session{GatewayReference: "SP-2"}))

	err := s.tx.WithinTx(s.ctx, func(tx *sql.Tx) error {
		got, err := s.orders.LockByReference(s.ctx, tx, "SP-1")
		if err != nil {
			return err
		}
		s.Equal(o.ID, got.ID)
		s.Equal(2, got.Version)
		return nil
	})
	s.Require().NoError(err)

	err = s.tx.WithinTx(s.ctx, func(tx *sql.Tx) error {
		_, err := s.orders.LockByReference(s.ctx, tx, "SP-2")
		return err
	})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *RepoSuite) TestOrder_UpdateVersionCAS() {
	user := s.seedUser()
	bike := s.seedBike("Rail", "5000.00", 2)
	o := s.seedOrder(user, bike, 1)

	o.Status = domain.OrderPaid
	o.Transaction = &domain.Transaction{GatewayReference: "SP-9", BankStatus: domain.BankSuccess, Method: "bKash"}
	s.Require().NoError(s.orders.UpdateOrder(s.ctx, nil, o, 0))
	s.Equal(1, o.Version)

	stale := *o
	stale.Status = domain.OrderCancelled
	err := s.orders.UpdateOrder(s.ctx, nil, &stale, 0)
	s.ErrorIs(err, domain.ErrConflict)

	got, err := s.orders.FindById(s.ctx, nil, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPaid, got.Status)
	s.Require().NotNil(got.Transaction)
	s.Equal("SP-9", got.Transaction.GatewayReference)
	s.Equal(domain.BankSuccess, got.Transaction.BankStatus)
	s.Equal("bKash", got.Transaction.Method)
}

func (s *RepoSuite) TestOrder_FindStuckOrders() {
	user := s.seedUser()
	bike := s.seedBike("Powerfly", "6000.00", 9)

	stuck := s.seedOrder(user, bike, 1)
	s.Require().NoError(s.orders.AttachSession(s.ctx, nil, stuck.ID, domain.Session{GatewayReference: "SP-stuck"}))
	fresh := s.seedOrder(user, bike, 1)
	s.Require().NoError(s.orders.AttachSession(s.ctx, nil, fresh.ID, domain.Session{GatewayReference: "SP-fresh"}))
	s.seedOrder(user, bike, 1) // no session yet

	_, err := s.db.ExecContext(s.ctx, `UPDATE orders SET updated_at = now() - interval '10 minutes' WHERE id = $1`, stuck.ID)
	s.Require().NoError(err)

	got, err := s.orders.FindStuckOrders(s.ctx, 5*time.Minute, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(stuck.ID, got[0].ID)
	s.Equal("SP-stuck", got[0].Transaction.GatewayReference)
}

func (s *RepoSuite) TestOrder_FindStuckOrdersRotatesThroughBacklog() {
	user := s.seedUser()
	bike := s.seedBike("Checkpoint", "3000.00", 9)

	var ids []uuid.UUID
	for i := range 3 {
		o := s.seedOrder(user, bike, 1)
		s.Require().NoError(s.orders.AttachSession(s.ctx, nil, o.ID, domain.Session{GatewayReference: fmt.Sprintf("SP-%d", i)}))
		ids = append(ids, o.ID)
	}

	first, err := s.orders.FindStuckOrders(s.ctx, 0, 2)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Equal(ids[0], first[0].ID)
	s.Equal(ids[1], first[1].ID)

	second, err := s.orders.FindStuckOrders(s.ctx, 0, 2)
	s.Require().NoError(err)
	s.Require().Len(second, 2)
	s.Equal(ids[2], second[1].ID, "never checked order comes first")

	var version int
	s.Require().NoError(s.db.QueryRowContext(s.ctx, `SELECT version FROM orders WHERE id = $1`, ids[0]).Scan(&version))
	s.Equal(1, version, "claiming does not bump the version")
}

func (s *RepoSuite) TestOrder_FindStuckOrdersUsesRecordedSession() {
	user := s.seedUser()
	bike := s.seedBike("Fuel", "4000.00", 3)
	o := s.seedOrder(user, bike, 1)
	s.Require().NoError(s.payments.RecordAttempt(s.ctx, nil, &domain.PaymentAttempt{
		OrderID: o.ID, Kind: domain.AttemptSession, GatewayReference: "SP-lost", Amount: o.TotalPrice,
	}))

	got, err := s.orders.FindStuckOrders(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Require().NotNil(got[0].Transaction)
	s.Equal("SP-lost", got[0].Transaction.GatewayReference)
}

func (s *RepoSuite) TestOrder_ListProjection() {
	user := s.seedUser()
	bike := s.seedBike("Domane", "2100.00", 5)
	s.seedOrder(user, bike, 1)

	b := query.NewBuilder(OrderResource, map[string]string{"fields": "status"}).Apply()
	orders, total, err := s.orders.List(s.ctx, b)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(orders, 1)
	s.Nil(orders[0].Items)

	row, err := query.Project(orders[0], b.Selected())
	s.Require().NoError(err)
	s.Equal(map[string]any{"_id": orders[0].ID.String(), "status": "Pending"}, row)
}

func (s *RepoSuite) TestOrder_ListWithComposer() {
	user := s.seedUser()
	other := s.seedUser()
	bike := s.seedBike("Verve", "700.00", 50)
	for i := 0; i < 12; i++ {
		s.seedOrder(user, bike, 1)
	}
	s.seedOrder(other, bike, 1)

	b := query.NewBuilder(OrderResource, map[string]string{"page": "2", "limit": "5"}).
		Scope("user_id = ?", user.ID).
		Apply()
	orders, total, err := s.orders.List(s.ctx, b)
	s.Require().NoError(err)
	s.Equal(12, total)
	s.Len(orders, 5)
	s.Equal(query.Meta{Page: 2, Limit: 5, Total: 12, TotalPage: 3}, b.Meta(total))
	for _, o := range orders {
		s.Equal(user.ID, o.UserID)
		s.Len(o.Items, 1)
		s.Zero(o.Version)
	}
}

func (s *RepoSuite) TestBike_ListDropsInvalidRiderType() {
	s.seedBike("Kids Roscoe", "300.00", 2)
	s.seedBike("Road Pro", "2500.00", 2)

	b := query.NewBuilder(BikeResource, map[string]string{"riderType": "Aliens", "minPrice": "1000"}).Apply()
	bikes, total, err := s.bikes.List(s.ctx, b)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(bikes, 1)
	s.Equal("Road Pro", bikes[0].Name)
	s.Len(b.Warnings(), 1)
}

func (s *RepoSuite) TestPayments_RecordAndList() {
	user := s.seedUser()
	bike := s.seedBike("Dual Sport", "900.00", 1)
	o := s.seedOrder(user, bike, 1)

	s.Require().NoError(s.payments.RecordAttempt(s.ctx, nil, &domain.PaymentAttempt{
		OrderID: o.ID, Kind: domain.AttemptSession, GatewayReference: "SP-1", Amount: o.TotalPrice,
	}))
	s.Require().NoError(s.payments.RecordAttempt(s.ctx, nil, &domain.PaymentAttempt{
		OrderID: o.ID, Kind: domain.AttemptVerification, GatewayReference: "SP-1", BankStatus: domain.BankFailed,
	}))

	got, err := s.payments.ListByOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(domain.AttemptSession, got[0].Kind)
	s.Equal(domain.BankFailed, got[1].BankStatus)
}

func (s *RepoSuite) TestUser_DuplicateEmail() {
	u := s.seedUser()
	dup := &domain.User{Name: "Again", Email: u.Email}
	s.ErrorIs(s.users.Create(s.ctx, nil, dup), domain.ErrConflict)

	got, err := s.users.FindById(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(domain.RoleCustomer, got.Role)
}
