package pointrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-points/internal/domain"
	"github.com/go-petr/pet-points/internal/pointservice"
	"github.com/go-petr/pet-points/pkg/dbpkg"
	"github.com/go-petr/pet-points/pkg/errorspkg"
)

// RepoPGS facilitates point repository layer logic on PostgreSQL.
//
// A balance write and a history append issued from ExecTx commit together or not at all.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns RepoPGS bound to an existing transaction or connection.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

const createQuery = `
INSERT INTO
    user_points (id)
VALUES
    ($1)
RETURNING id, point, updated_at
`

// Create stores a zero balance for the user.
func (r *RepoPGS) Create(ctx context.Context, userID int64) (domain.UserPoint, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, userID)

	var up domain.UserPoint

	err := row.Scan(
		&up.ID,
		&up.Point,
		&up.UpdatedAt,
	)

	if err != nil {
		l.Error().Err(err).Int64("user_id", userID).Send()

		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "user_points_pkey":
				return domain.UserPoint{}, domain.ErrUserAlreadyExists
			case "user_points_id_check":
				return domain.UserPoint{}, domain.ErrInvalidUserID
			}
		}

		return domain.UserPoint{}, errorspkg.ErrStoreUnavailable
	}

	return up, nil
}

const getQuery = `
SELECT
    id, point, updated_at
FROM user_points
WHERE id = $1
`

// Get returns the current balance of the user.
func (r *RepoPGS) Get(ctx context.Context, userID int64) (domain.UserPoint, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getQuery, userID)

	var up domain.UserPoint

	err := row.Scan(
		&up.ID,
		&up.Point,
		&up.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserPoint{}, domain.ErrUserNotFound
		}

		l.Error().Err(err).Int64("user_id", userID).Send()

		return domain.UserPoint{}, errorspkg.ErrStoreUnavailable
	}

	return up, nil
}

const updatePointQuery = `
UPDATE user_points
SET point = $1, updated_at = $2
WHERE id = $3
RETURNING id, point, updated_at
`

// UpdatePoint overwrites the balance of an existing user.
func (r *RepoPGS) UpdatePoint(ctx context.Context, userID, point int64, updatedAt time.Time) (domain.UserPoint, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, updatePointQuery, point, updatedAt, userID)

	var up domain.UserPoint

	err := row.Scan(
		&up.ID,
		&up.Point,
		&up.UpdatedAt,
	)

	if err != nil {
		l.Error().Err(err).Int64("user_id", userID).Int64("point", point).Send()

		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserPoint{}, domain.ErrUserNotFound
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "user_points_point_check" {
			return domain.UserPoint{}, domain.ErrInsufficientBalance
		}

		return domain.UserPoint{}, errorspkg.ErrStoreUnavailable
	}

	return up, nil
}

const appendHistoryQuery = `
INSERT INTO
    point_histories (user_id, amount, type, created_at)
VALUES
    ($1, $2, $3, $4)
RETURNING id, user_id, amount, type, created_at
`

// AppendHistory appends a record to the user history.
func (r *RepoPGS) AppendHistory(ctx context.Context, arg domain.CreateHistoryParams) (domain.PointHistory, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, appendHistoryQuery, arg.UserID, arg.Amount, arg.Type, arg.CreatedAt)

	var h domain.PointHistory

	err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.Amount,
		&h.Type,
		&h.CreatedAt,
	)

	if err != nil {
		l.Error().Err(err).Msgf("AppendHistory(ctx, %+v)", arg)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "point_histories_user_id_fkey" {
			return domain.PointHistory{}, domain.ErrUserNotFound
		}

		return domain.PointHistory{}, errorspkg.ErrStoreUnavailable
	}

	return h, nil
}

const listHistoryQuery = `
SELECT
    id, user_id, amount, type, created_at
FROM point_histories
WHERE user_id = $1
ORDER BY id
`

// ListHistory returns the user history in append order.
func (r *RepoPGS) ListHistory(ctx context.Context, userID int64) ([]domain.PointHistory, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listHistoryQuery, userID)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}
	defer rows.Close()

	items := []domain.PointHistory{}

	for rows.Next() {
		var h domain.PointHistory
		if err := rows.Scan(
			&h.ID,
			&h.UserID,
			&h.Amount,
			&h.Type,
			&h.CreatedAt,
		); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrStoreUnavailable
		}

		items = append(items, h)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}

	return items, nil
}

// ExecTx runs fn against a repository bound to a single database transaction.
//
// The transaction is committed when fn returns nil and rolled back otherwise; the
// error of fn is returned unchanged.
func (r *RepoPGS) ExecTx(ctx context.Context, fn func(pointservice.Repo) error) error {
	l := zerolog.Ctx(ctx)

	if r.conn == nil {
		return fn(r)
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrStoreUnavailable
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	if err := fn(NewTxRepoPGS(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrStoreUnavailable
	}

	return nil
}

var _ pointservice.TxRepo = (*RepoPGS)(nil)
