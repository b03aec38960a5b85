package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fitpay/internal/config"
	"fitpay/internal/database"
	"fitpay/internal/handler"
	"fitpay/internal/infrastructure/payment"
	"fitpay/internal/repo"
	"fitpay/internal/service"
	"fitpay/internal/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	db, err := database.NewPostgres()
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	dbService := database.New(db, log)
	defer dbService.Close()

	orderRepo := repo.NewOrderRepo(db)
	gateways := payment.NewRegistry(
		payment.NewZaloPay(cfg.ZaloPay, log),
		payment.NewMoMo(cfg.MoMo, log),
	)

	orderService := service.NewOrderService(orderRepo, gateways, log)
	reconcileService := service.NewReconcileService(orderRepo, gateways, orderService, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewSweeper(orderRepo, gateways, orderService, cfg.SweepInterval, cfg.PendingDeadline, log)
	go sweeper.Run(ctx)

	r := gin.Default()
	r.Use(cors.Default())
	handler.NewPaymentHandler(orderService, reconcileService, dbService, log).Register(r)

	srv := &http.Server{Addr: cfg.ServerAddr, Handler: r}
	go func() {
		log.WithField("addr", cfg.ServerAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}
