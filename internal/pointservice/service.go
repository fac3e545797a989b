// Package pointservice manages business logic layer of user points.
//
// Charge and Use run a read-modify-write against the Repo inside a per-user exclusive
// section provided by a Locker. Operations for different users never wait for each
// other; operations for the same user commit in the order they acquired the section.
package pointservice

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-points/internal/domain"
	"github.com/go-petr/pet-points/pkg/errorspkg"
)

// Repo provides data access layer interface needed by point service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package pointservice
type Repo interface {
	Create(ctx context.Context, userID int64) (domain.UserPoint, error)
	Get(ctx context.Context, userID int64) (domain.UserPoint, error)
	UpdatePoint(ctx context.Context, userID, point int64, updatedAt time.Time) (domain.UserPoint, error)
	AppendHistory(ctx context.Context, arg domain.CreateHistoryParams) (domain.PointHistory, error)
	ListHistory(ctx context.Context, userID int64) ([]domain.PointHistory, error)
}

// TxRepo is a Repo that can commit several writes as one unit.
//
// When the Repo given to New implements TxRepo, the balance write and the history
// append of a mutation are executed inside ExecTx. Otherwise the service restores the
// previous balance itself if the append fails.
type TxRepo interface {
	Repo
	ExecTx(ctx context.Context, fn func(Repo) error) error
}

// Locker serializes balance mutations of a single user.
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

// Publisher receives committed balance changes.
type Publisher interface {
	Publish(ctx context.Context, event domain.PointEvent) error
}

// Service facilitates point service layer logic.
type Service struct {
	repo      Repo
	locker    Locker
	publisher Publisher
	now       func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithPublisher makes the service publish every committed change.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithClock replaces the time source used for history records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New returns point service struct to manage point bussines logic.
func New(repo Repo, locker Locker, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open registers the user with a zero balance.
func (s *Service) Open(ctx context.Context, userID int64) (domain.UserPoint, error) {
	if userID <= 0 {
		return domain.UserPoint{}, domain.ErrInvalidUserID
	}

	return s.repo.Create(ctx, userID)
}

// Get returns the current point balance of the user.
//
// The read does not wait for in-flight mutations of the same user.
func (s *Service) Get(ctx context.Context, userID int64) (domain.UserPoint, error) {
	return s.validUser(ctx, userID)
}

// History returns all balance changes of the user in commit order.
func (s *Service) History(ctx context.Context, userID int64) ([]domain.PointHistory, error) {
	if _, err := s.validUser(ctx, userID); err != nil {
		return nil, err
	}

	return s.repo.ListHistory(ctx, userID)
}

// Charge adds amount to the user balance and records a CHARGE history entry.
func (s *Service) Charge(ctx context.Context, userID, amount int64) (domain.UserPoint, error) {
	if amount <= 0 {
		return domain.UserPoint{}, domain.ErrInvalidAmount
	}

	if _, err := s.validUser(ctx, userID); err != nil {
		return domain.UserPoint{}, err
	}

	return s.apply(ctx, userID, domain.Charge, amount)
}

// Use subtracts amount from the user balance and records a USE history entry.
//
// The balance check is made against the balance read inside the exclusive section.
func (s *Service) Use(ctx context.Context, userID, amount int64) (domain.UserPoint, error) {
	if amount <= 0 {
		return domain.UserPoint{}, domain.ErrInvalidAmount
	}

	if _, err := s.validUser(ctx, userID); err != nil {
		return domain.UserPoint{}, err
	}

	return s.apply(ctx, userID, domain.Use, amount)
}

func (s *Service) validUser(ctx context.Context, userID int64) (domain.UserPoint, error) {
	if userID <= 0 {
		return domain.UserPoint{}, domain.ErrInvalidUserID
	}

	return s.repo.Get(ctx, userID)
}

func (s *Service) apply(ctx context.Context, userID int64, txType domain.TransactionType, amount int64) (domain.UserPoint, error) {
	l := zerolog.Ctx(ctx)

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.Info().Err(err).Int64("user_id", userID).Msg("gave up waiting for user lock")
			return domain.UserPoint{}, err
		}

		l.Error().Err(err).Int64("user_id", userID).Msg("cannot acquire user lock")

		return domain.UserPoint{}, errorspkg.ErrStoreUnavailable
	}
	defer unlock()

	// A Locker may grant a free section to a caller that already gave up.
	if err := ctx.Err(); err != nil {
		l.Info().Err(err).Int64("user_id", userID).Msg("request canceled before user lock was held")
		return domain.UserPoint{}, err
	}

	// Once the section is held the sequence is never abandoned halfway.
	ctx = context.WithoutCancel(ctx)

	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.UserPoint{}, err
	}

	delta := amount

	switch txType {
	case domain.Charge:
		if current.Point > math.MaxInt64-amount {
			l.Warn().Int64("user_id", userID).Int64("point", current.Point).Int64("amount", amount).Send()
			return domain.UserPoint{}, domain.ErrBalanceOverflow
		}
	case domain.Use:
		if current.Point < amount {
			return domain.UserPoint{}, domain.ErrInsufficientBalance
		}

		delta = -amount
	}

	now := s.now()
	arg := domain.CreateHistoryParams{
		UserID:    userID,
		Amount:    delta,
		Type:      txType,
		CreatedAt: now,
	}

	var (
		updated domain.UserPoint
		history domain.PointHistory
	)

	if txRepo, ok := s.repo.(TxRepo); ok {
		err = txRepo.ExecTx(ctx, func(r Repo) error {
			var err error

			updated, err = r.UpdatePoint(ctx, userID, current.Point+delta, now)
			if err != nil {
				return err
			}

			history, err = r.AppendHistory(ctx, arg)

			return err
		})
	} else {
		updated, history, err = s.commit(ctx, current, current.Point+delta, arg)
	}

	if err != nil {
		return domain.UserPoint{}, err
	}

	s.publish(ctx, domain.PointEvent{History: history, UserPoint: updated})

	return updated, nil
}

// commit writes the balance and then appends the history record. History is
// append-only, so a failed append is undone by writing the previous balance back.
func (s *Service) commit(ctx context.Context, current domain.UserPoint, point int64, arg domain.CreateHistoryParams) (domain.UserPoint, domain.PointHistory, error) {
	l := zerolog.Ctx(ctx)

	updated, err := s.repo.UpdatePoint(ctx, current.ID, point, arg.CreatedAt)
	if err != nil {
		return domain.UserPoint{}, domain.PointHistory{}, err
	}

	history, err := s.repo.AppendHistory(ctx, arg)
	if err != nil {
		if _, restoreErr := s.repo.UpdatePoint(ctx, current.ID, current.Point, current.UpdatedAt); restoreErr != nil {
			l.Error().Err(restoreErr).
				Int64("user_id", current.ID).
				Int64("point", current.Point).
				Msg("cannot restore point after failed history append")
		}

		return domain.UserPoint{}, domain.PointHistory{}, err
	}

	return updated, history, nil
}

func (s *Service) publish(ctx context.Context, event domain.PointEvent) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Int64("user_id", event.History.UserID).
			Int64("history_id", event.History.ID).
			Msg("cannot publish point event")
	}
}
