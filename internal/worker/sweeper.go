package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fitpay/internal/domain"
	"fitpay/internal/infrastructure/payment"
	"fitpay/internal/repo"
	"fitpay/internal/service"
)

// Sweeper guarantees every order eventually leaves pending, even when the
// gateway callback is lost and nobody polls. Each tick it pulls orders that
// have sat pending past the deadline and force-resolves them against the
// gateway's status API. Running several sweepers concurrently is safe; the
// store's conditional update lets only one resolution stick.
type Sweeper struct {
	orders   repo.OrderRepo
	gateways *payment.Registry
	life     *service.OrderService
	interval time.Duration
	deadline time.Duration
	log      *logrus.Logger
}

func NewSweeper(
	orders repo.OrderRepo,
	gateways *payment.Registry,
	life *service.OrderService,
	interval, deadline time.Duration,
	log *logrus.Logger,
) *Sweeper {
	return &Sweeper{
		orders:   orders,
		gateways: gateways,
		life:     life,
		interval: interval,
		deadline: deadline,
		log:      log,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithFields(logrus.Fields{
		"interval": s.interval,
		"deadline": s.deadline,
	}).Info("timeout sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Error("sweep failed")
			}
		}
	}
}

// Sweep runs one pass. Exported so tests and admin tooling can trigger a
// tick without the ticker.
func (s *Sweeper) Sweep(ctx context.Context) error {
	stale, err := s.orders.FindStalePending(ctx, time.Now().Add(-s.deadline))
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	log := s.log.WithField("sweep_id", uuid.NewString())
	log.WithField("count", len(stale)).Info("resolving stale pending orders")

	for _, order := range stale {
		s.resolve(ctx, log, &order)
	}
	return nil
}

func (s *Sweeper) resolve(ctx context.Context, log *logrus.Entry, order *domain.Order) {
	olog := log.WithField("order_id", order.OrderID)

	gw, err := s.gateways.Get(order.PaymentMethod)
	if err != nil {
		// Method no gateway claims; fail closed rather than strand it.
		olog.WithError(err).Error("no gateway for stale order, expiring")
		s.expire(ctx, olog, order)
		return
	}

	status, err := gw.QueryStatus(ctx, order.OrderID, order.CreatedAt)
	if err != nil {
		// Past the deadline and unverifiable: presumed failed, never
		// presumed succeeded.
		olog.WithError(err).Warn("status query failed after deadline, expiring")
		s.expire(ctx, olog, order)
		return
	}

	if status.IsPending {
		olog.WithField("code", status.Code).Info("still pending past deadline, expiring")
		s.expire(ctx, olog, order)
		return
	}

	fresh, err := s.life.ApplyQueryResult(ctx, order.OrderID, status)
	if err != nil {
		olog.WithError(err).Error("sweep transition failed")
		return
	}
	olog.WithField("status", fresh.Status).Info("stale order resolved")
}

func (s *Sweeper) expire(ctx context.Context, log *logrus.Entry, order *domain.Order) {
	if _, err := s.life.Expire(ctx, order.OrderID); err != nil {
		log.WithError(err).Error("expire failed")
	}
}
