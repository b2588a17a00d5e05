package job

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrJobNotFound     = errors.New("transfer job not found")
	ErrAccountNotFound = errors.New("account not found")
)

// Store is the persistence contract the scheduler relies on. Jobs returned by
// the store carry their source and target accounts.
type Store interface {
	// FindNext returns the eligible job with the lowest rank, or nil when
	// there is none. dayInstant is only used for DAILY_WINDOW scheduling.
	// Jobs whose id is in exclude are skipped.
	FindNext(ctx context.Context, status Status, scheduling Scheduling, dayInstant int64, exclude ...uint) (*Job, error)
	Save(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uint) (*Job, error)
	// MaxRank returns false when no job exists.
	MaxRank(ctx context.Context) (int64, bool, error)
	DeleteByStatus(ctx context.Context, status Status) (int64, error)
	List(ctx context.Context, status Status) ([]Job, error)
}

type AccountStore interface {
	GetAccountByID(ctx context.Context, id uint) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
	ListAccounts(ctx context.Context) ([]Account, error)
}
