package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"fitpay/internal/infrastructure/payment"
	"fitpay/internal/repo"
	"fitpay/internal/service"
	"fitpay/internal/worker"
)

// Drives the lifecycle against the mock gateway and the in-memory store:
// some orders settle via callback, some get abandoned, some lose their
// callback entirely and are only rescued by the sweeper.
func main() {
	log := logrus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders := repo.NewMemoryRepo()
	mock := payment.NewMock("simulate-secret")
	gateways := payment.NewRegistry(mock)
	orderService := service.NewOrderService(orders, gateways, log)

	sweeper := worker.NewSweeper(orders, gateways, orderService, 500*time.Millisecond, 2*time.Second, log)
	go sweeper.Run(ctx)

	fmt.Println("--- STARTING SIMULATION (20 ORDERS) ---")
	var ids []string
	for i := 0; i < 20; i++ {
		result, err := orderService.Create(ctx, int64(i+1), "membership:2", 500000, "mock")
		if err != nil {
			log.WithError(err).Error("create failed")
			continue
		}
		id := result.Order.OrderID
		ids = append(ids, id)

		switch chance := rand.IntN(100); {
		case chance < 60:
			// User pays, callback arrives.
			mock.SettlePaid(id)
			ack := orderService.ApplyCallback(ctx, "mock", mock.Callback(id, true, 500000))
			fmt.Printf("[%d] %s paid, callback ack %+v\n", i+1, id, ack)
		case chance < 80:
			// User pays but the callback is lost; only the sweeper will see it.
			mock.SettlePaid(id)
			fmt.Printf("[%d] %s paid, callback LOST\n", i+1, id)
		default:
			// Abandoned at the checkout page.
			fmt.Printf("[%d] %s abandoned\n", i+1, id)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Let the sweeper catch everything past the deadline.
	time.Sleep(4 * time.Second)

	fmt.Println("--- FINAL STATES ---")
	for _, id := range ids {
		order, err := orders.FindByOrderID(ctx, id)
		if err != nil {
			continue
		}
		fmt.Printf("%s -> %s\n", id, order.Status)
	}
}
