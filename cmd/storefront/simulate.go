package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"bike-storefront/internal/database"
	"bike-storefront/internal/domain"
	"bike-storefront/internal/infrastructure/payment"
	"bike-storefront/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func simulateCmd() *cobra.Command {
	var (
		orders    int
		downEvery int
		latency   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Place orders against the mock gateway and reconcile them",
		Long: `Seeds a customer and a few bikes, places orders through the mock
gateway, settles each session at random (70% Success, 20% Failed, 10% Cancel)
and finally runs one reconciliation sweep over everything still Pending.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gw := payment.NewPaymentGateway()
			gw.SetLatency(latency)

			a, err := newApp(ctx, gw)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := database.Migrate(ctx, a.db.DB()); err != nil {
				return err
			}

			buyer, bikes, err := seed(ctx, a)
			if err != nil {
				return err
			}

			fmt.Printf("--- STARTING SIMULATION (%d ORDERS) ---\n", orders)
			placed := make([]uuid.UUID, 0, orders)
			for i := range orders {
				gw.SetDown(downEvery > 0 && (i+1)%downEvery == 0)
				lines := []domain.OrderLine{{ProductID: bikes[rand.IntN(len(bikes))], Quantity: 1 + rand.IntN(2)}}

				fmt.Printf("[%d] placing order ... ", i+1)
				checkout, err := a.orders.CreateOrder(ctx, buyer, lines, "127.0.0.1")
				switch {
				case errors.Is(err, domain.ErrGatewayUnavailable) && checkout != nil:
					fmt.Printf("GATEWAY DOWN, order %s left Pending\n", checkout.OrderID)
					placed = append(placed, checkout.OrderID)
					continue
				case err != nil:
					fmt.Printf("FAILED: %v\n", err)
					continue
				}
				placed = append(placed, checkout.OrderID)

				order, err := a.orderRepo.FindById(ctx, nil, checkout.OrderID)
				if err != nil || order.Transaction == nil {
					fmt.Printf("created %s without a session\n", checkout.OrderID)
					continue
				}
				bank, err := gw.SettleRandom(order.Transaction.GatewayReference)
				if err != nil {
					fmt.Printf("settle failed: %v\n", err)
					continue
				}
				fmt.Printf("order %s settled by bank as %s\n", order.ID, bank)
			}
			gw.SetDown(false)

			w := worker.NewReconciliationWorker(a.orderRepo, a.orders, a.metrics.Reconcile, worker.Options{
				BatchSize: max(orders, 1),
			})
			sum, err := w.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("--- RECONCILED: found %d, applied %d, unsettled %d, failed %d ---\n",
				sum.Found, sum.Applied, sum.Unsettled, sum.Failed)

			for _, id := range placed {
				order, err := a.orderRepo.FindById(ctx, nil, id)
				if err != nil {
					fmt.Printf("%s: %v\n", id, err)
					continue
				}
				fmt.Printf("%s  %-9s  %s\n", order.ID, order.Status, order.TotalPrice.StringFixed(2))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&orders, "orders", "n", 20, "number of orders to place")
	cmd.Flags().IntVar(&downEvery, "down-every", 0, "take the gateway down for every Nth order")
	cmd.Flags().DurationVar(&latency, "latency", 0, "artificial gateway latency")
	return cmd
}

func seed(ctx context.Context, a *app) (uuid.UUID, []uuid.UUID, error) {
	suffix := uuid.NewString()[:8]
	buyer := &domain.User{
		Name:    "Simulated Rider",
		Email:   fmt.Sprintf("rider-%s@example.com", suffix),
		Phone:   "01700000000",
		Address: "Dhaka",
		Role:    domain.RoleCustomer,
	}
	if err := a.userRepo.Create(ctx, nil, buyer); err != nil {
		return uuid.Nil, nil, err
	}

	stock := []*domain.Bike{
		{Name: "Trail Blazer", Brand: "Veloce", Model: "TB-29", Category: "Mountain", RiderType: "Men", Price: decimal.NewFromInt(850), Quantity: 10},
		{Name: "City Glide", Brand: "Urbano", Model: "CG-3", Category: "Hybrid", RiderType: "Women", Price: decimal.RequireFromString("499.99"), Quantity: 6},
		{Name: "Sprout", Brand: "Pedalo", Model: "K-16", Category: "Road", RiderType: "Kids", Price: decimal.NewFromInt(180), Quantity: 4},
	}
	ids := make([]uuid.UUID, 0, len(stock))
	for _, b := range stock {
		b.Name += " " + suffix
		if err := a.bikeRepo.Create(ctx, nil, b); err != nil {
			return uuid.Nil, nil, err
		}
		ids = append(ids, b.ID)
	}
	return buyer.ID, ids, nil
}
