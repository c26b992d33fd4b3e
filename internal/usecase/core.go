package usecase

import (
	"context"
	"time"

	"parking-booking/internal/cache"
	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/repository"
	"parking-booking/internal/events"
	"parking-booking/internal/lifecycle"
	"parking-booking/pkg/apperror"
	cachesvc "parking-booking/pkg/cache"
	"parking-booking/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("parking-booking/usecase")

// core holds what both services need to load, mutate and publish bookings.
type core struct {
	uow         repository.UnitOfWork
	repo        *repository.Repository
	machine     *lifecycle.Machine
	cache       cachesvc.Service
	invalidator *cache.Coordinator
	events      *events.Dispatcher
	cfg         *utils.Config
	now         func() time.Time
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperror.KindOf(err)))
	}
	span.End()
}

// withTimeout bounds a command by the configured operation timeout.
func (c *core) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg == nil || c.cfg.Booking.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Booking.OperationTimeout)
}

func (c *core) cacheTTL() time.Duration {
	if c.cfg == nil {
		return 0
	}
	return c.cfg.Redis.DefaultTTL
}

// afterCommit invalidates caches and dispatches events. It runs on a context
// detached from the caller so a cancelled request still cleans up.
func (c *core) afterCommit(ctx context.Context, b *entity.Booking, ownerID uuid.UUID, evs ...events.Event) {
	detached := context.WithoutCancel(ctx)
	c.invalidator.Invalidate(detached, cache.KeysForBooking(b, ownerID))
	c.events.Dispatch(detached, evs...)
}

type authorizeFunc func(b *entity.Booking, spot *entity.Spot) error

func ownerOf(callerID uuid.UUID, action string) authorizeFunc {
	return func(_ *entity.Booking, spot *entity.Spot) error {
		if spot.OwnerID != callerID {
			return apperror.Unauthorized("only the spot owner can %s this booking", action)
		}
		return nil
	}
}

func userOf(callerID uuid.UUID, action string) authorizeFunc {
	return func(b *entity.Booking, _ *entity.Spot) error {
		if b.UserID != callerID {
			return apperror.Unauthorized("only the booking's user can %s this booking", action)
		}
		return nil
	}
}

func participantOf(callerID uuid.UUID, action string) authorizeFunc {
	return func(b *entity.Booking, spot *entity.Spot) error {
		if !b.IsParticipant(callerID, spot) {
			return apperror.Unauthorized("you are not allowed to %s this booking", action)
		}
		return nil
	}
}

func anyone(*entity.Booking, *entity.Spot) error { return nil }

// loadBooking reads a booking and its spot outside a transaction.
func (c *core) loadBooking(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, *entity.Spot, error) {
	b, err := c.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if b == nil {
		return nil, nil, apperror.NotFound("booking %s not found", bookingID)
	}
	spot, err := c.repo.Spot.FindByID(ctx, b.SpotID)
	if err != nil {
		return nil, nil, err
	}
	if spot == nil {
		return nil, nil, apperror.NotFound("spot %s not found", b.SpotID)
	}
	return b, spot, nil
}

// mutateBooking locks the booking row, authorizes the caller, applies fn and
// persists the result in one transaction. fn sees the locked row, so a
// transition that lost a race fails in the state machine.
func (c *core) mutateBooking(ctx context.Context, bookingID uuid.UUID, authorize authorizeFunc,
	fn func(tx *repository.Repository, b *entity.Booking, spot *entity.Spot, now time.Time) error,
) (*entity.Booking, *entity.Spot, error) {
	var (
		booking *entity.Booking
		spot    *entity.Spot
	)

	err := c.uow.RunInTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFound("booking %s not found", bookingID)
		}

		sp, err := tx.Spot.FindByID(ctx, b.SpotID)
		if err != nil {
			return err
		}
		if sp == nil {
			return apperror.NotFound("spot %s not found", b.SpotID)
		}

		if err := authorize(b, sp); err != nil {
			return err
		}
		if err := fn(tx, b, sp, c.now()); err != nil {
			return err
		}
		if err := tx.Booking.Update(ctx, b); err != nil {
			return err
		}

		booking, spot = b, sp
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, spot, nil
}

// readThrough serves key from the cache, falling back to load and
// repopulating. Cache failures degrade to a plain load.
func readThrough[T any](ctx context.Context, c *core, log *zap.Logger, key string, load func() (T, error)) (T, error) {
	var cached T
	if c.cache != nil {
		hit, err := c.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, value, c.cacheTTL()); err != nil {
			log.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return value, nil
}
