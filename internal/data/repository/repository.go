package repository

import (
	"context"
	"errors"
	"fmt"

	"parking-booking/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrConflict is returned by stores that detect a lost write race at commit.
var ErrConflict = errors.New("repository: write conflict")

type Repository struct {
	Booking BookingRepository
	Spot    SpotRepository
	Payment PaymentRepository
}

func NewRepository(db database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		Booking: NewBookingRepository(db, log),
		Spot:    NewSpotRepository(db, log),
		Payment: NewPaymentRepository(db, log),
	}
}

// UnitOfWork runs fn against repositories bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise, including
// when ctx is cancelled.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(tx *Repository) error) error
}

// IsConflict reports whether err means the transaction lost a race and may be retried.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || database.IsRetryable(err)
}

type pgUnitOfWork struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewUnitOfWork(db database.PgxIface, log *zap.Logger) UnitOfWork {
	return &pgUnitOfWork{
		db:  db,
		log: log.With(zap.String("repository", "uow")),
	}
}

func (u *pgUnitOfWork) RunInTx(ctx context.Context, fn func(tx *Repository) error) (err error) {
	tx, err := u.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				u.log.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(NewRepository(tx, u.log)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
