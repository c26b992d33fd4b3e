package usecase

import (
	"time"

	"parking-booking/internal/cache"
	"parking-booking/internal/data/repository"
	"parking-booking/internal/events"
	"parking-booking/internal/gateway"
	"parking-booking/internal/lifecycle"
	"parking-booking/internal/pricing"
	cachesvc "parking-booking/pkg/cache"
	"parking-booking/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Reservation ReservationService
	Payment     PaymentService
}

// Deps are the collaborators shared by the booking and payment services.
// Cache and Events may be nil.
type Deps struct {
	UOW     repository.UnitOfWork
	Repo    *repository.Repository
	Pricing *pricing.Engine
	Machine *lifecycle.Machine
	Gateway gateway.Gateway
	Cache   cachesvc.Service
	Events  *events.Dispatcher
	Config  *utils.Config
	Clock   func() time.Time
	Log     *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.Events == nil {
		d.Events = events.NewDispatcher(d.Log)
	}

	core := &core{
		uow:         d.UOW,
		repo:        d.Repo,
		machine:     d.Machine,
		cache:       d.Cache,
		invalidator: cache.NewCoordinator(d.Cache, d.Log),
		events:      d.Events,
		cfg:         d.Config,
		now:         d.Clock,
	}

	payments := NewPaymentService(core, d.Gateway, d.Log)
	return &Service{
		Reservation: NewReservationService(core, d.Pricing, payments, d.Log),
		Payment:     payments,
	}
}
