// Package pointrepo manages repository layer of user points and their histories.
package pointrepo

import (
	"context"
	"sync"
	"time"

	"github.com/go-petr/pet-points/internal/domain"
)

// RepoMem keeps user points and histories in process memory.
//
// Each method is atomic on its own. RepoMem does not implement ExecTx: a balance write
// and a history append are two independent steps and pairing them is left to the caller.
type RepoMem struct {
	mu        sync.RWMutex
	points    map[int64]domain.UserPoint
	histories map[int64][]domain.PointHistory
	cursor    int64
	now       func() time.Time
}

// NewRepoMem returns an empty RepoMem.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		points:    make(map[int64]domain.UserPoint),
		histories: make(map[int64][]domain.PointHistory),
		now:       time.Now,
	}
}

// Create stores a zero balance for the user.
func (r *RepoMem) Create(ctx context.Context, userID int64) (domain.UserPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.points[userID]; ok {
		return domain.UserPoint{}, domain.ErrUserAlreadyExists
	}

	up := domain.UserPoint{ID: userID, UpdatedAt: r.now().UTC()}
	r.points[userID] = up

	return up, nil
}

// Get returns the current balance of the user.
func (r *RepoMem) Get(ctx context.Context, userID int64) (domain.UserPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	up, ok := r.points[userID]
	if !ok {
		return domain.UserPoint{}, domain.ErrUserNotFound
	}

	return up, nil
}

// UpdatePoint overwrites the balance of an existing user.
func (r *RepoMem) UpdatePoint(ctx context.Context, userID, point int64, updatedAt time.Time) (domain.UserPoint, error) {
	if point < 0 {
		return domain.UserPoint{}, domain.ErrInsufficientBalance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.points[userID]; !ok {
		return domain.UserPoint{}, domain.ErrUserNotFound
	}

	up := domain.UserPoint{ID: userID, Point: point, UpdatedAt: updatedAt.UTC()}
	r.points[userID] = up

	return up, nil
}

// AppendHistory appends a record to the user history and assigns it the next id.
func (r *RepoMem) AppendHistory(ctx context.Context, arg domain.CreateHistoryParams) (domain.PointHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.points[arg.UserID]; !ok {
		return domain.PointHistory{}, domain.ErrUserNotFound
	}

	r.cursor++

	h := domain.PointHistory{
		ID:        r.cursor,
		UserID:    arg.UserID,
		Amount:    arg.Amount,
		Type:      arg.Type,
		CreatedAt: arg.CreatedAt.UTC(),
	}
	r.histories[arg.UserID] = append(r.histories[arg.UserID], h)

	return h, nil
}

// ListHistory returns a copy of the user history in append order.
func (r *RepoMem) ListHistory(ctx context.Context, userID int64) ([]domain.PointHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.PointHistory, len(r.histories[userID]))
	copy(items, r.histories[userID])

	return items, nil
}
