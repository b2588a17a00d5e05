package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yarkm13/fetchopusd/internal/job"
)

// Service applies the job lifecycle rules on top of the stores.
type Service struct {
	jobs     job.Store
	accounts job.AccountStore

	// maxAttempts is the number of failed attempts after which a job is
	// set to ERROR.
	maxAttempts       int
	errorLogMaxLength int
	now               func() time.Time
}

func NewService(jobs job.Store, accounts job.AccountStore, maxAttempts, errorLogMaxLength int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		jobs:              jobs,
		accounts:          accounts,
		maxAttempts:       maxAttempts,
		errorLogMaxLength: errorLogMaxLength,
		now:               time.Now,
	}
}

// FindNextToPerform resumes in-flight work before starting new jobs. Jobs
// listed in skip are never returned.
func (s *Service) FindNextToPerform(ctx context.Context, skip ...uint) (*job.Job, error) {
	j, err := s.findNext(ctx, job.StatusDoing, skip)
	if err != nil || j != nil {
		return j, err
	}
	return s.findNext(ctx, job.StatusCreated, skip)
}

func (s *Service) findNext(ctx context.Context, status job.Status, skip []uint) (*job.Job, error) {
	log.Debugf("Searching next transfer with status '%s' to perform...", status)
	j, err := s.jobs.FindNext(ctx, status, job.SchedulingImmediate, 0, skip...)
	if err != nil {
		return nil, err
	}
	if j == nil {
		log.Debugf("No immediate transfer with status %s. Searching windowed transfers...", status)
		j, err = s.jobs.FindNext(ctx, status, job.SchedulingDailyWindow, job.InstantOfDay(s.now()), skip...)
		if err != nil {
			return nil, err
		}
	}
	if j == nil {
		log.Debugf("No transfer to perform found with status %s.", status)
	} else {
		log.Debugf("Transfer to perform found with status %s: %d", status, j.ID)
	}
	return j, nil
}

// Started moves j to DOING and records its first start time.
func (s *Service) Started(ctx context.Context, j *job.Job) error {
	changed := false
	if j.Status != job.StatusDoing {
		log.WithField("job", j.ID).Infof("Change to DOING status of transfer (was %s)", j.Status)
		j.Status = job.StatusDoing
		changed = true
	}
	if j.StartedAt == nil {
		now := s.now()
		j.StartedAt = &now
		changed = true
	}
	if !changed {
		return nil
	}
	return s.jobs.Save(ctx, j)
}

func (s *Service) Finished(ctx context.Context, j *job.Job) error {
	log.WithField("job", j.ID).Info("Change to DONE status of transfer")
	now := s.now()
	j.Status = job.StatusDone
	j.EndedAt = &now
	return s.jobs.Save(ctx, j)
}

// OnError records a failed attempt and reports whether the job reached the
// ERROR status.
func (s *Service) OnError(ctx context.Context, j *job.Job, message string) (bool, error) {
	j.AppendError(message, s.errorLogMaxLength)
	terminal := j.ErrorCount >= s.maxAttempts
	if terminal {
		log.WithField("job", j.ID).Errorf("Change to ERROR status of transfer after %d attempts", j.ErrorCount)
		j.Status = job.StatusError
	}
	return terminal, s.jobs.Save(ctx, j)
}

// Update persists progress fields.
func (s *Service) Update(ctx context.Context, j *job.Job) error {
	return s.jobs.Save(ctx, j)
}

// Create resolves the account references of jobs and saves them as CREATED.
// Jobs with rank 0 are queued after every existing job.
func (s *Service) Create(ctx context.Context, jobs []*job.Job) error {
	next, found, err := s.jobs.MaxRank(ctx)
	if err != nil {
		return err
	}
	if found {
		next++
	} else {
		next = 1
	}

	for _, j := range jobs {
		if j.SourceAccount, err = s.resolveAccount(ctx, j.SourceAccount, j.SourceAccountID); err != nil {
			return errors.WithMessage(err, "source")
		}
		if j.TargetAccount, err = s.resolveAccount(ctx, j.TargetAccount, j.TargetAccountID); err != nil {
			return errors.WithMessage(err, "target")
		}
		if j.Scheduling == "" {
			j.Scheduling = job.SchedulingImmediate
		}
		if j.Rank == 0 {
			j.Rank = next
			next++
		}
		j.Status = job.StatusCreated
		log.Infof("Create transfer from %s to %s", j.Source(), j.Target())
	}

	for _, j := range jobs {
		if err := s.jobs.Save(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) resolveAccount(ctx context.Context, ref *job.Account, id *uint) (*job.Account, error) {
	switch {
	case ref != nil && ref.ID != 0:
		return s.accounts.GetAccountByID(ctx, ref.ID)
	case id != nil:
		return s.accounts.GetAccountByID(ctx, *id)
	}
	return nil, errors.Wrap(job.ErrAccountNotFound, "no account reference")
}

func (s *Service) Get(ctx context.Context, id uint) (*job.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status job.Status) ([]job.Job, error) {
	return s.jobs.List(ctx, status)
}

// Purge deletes every job with the given status.
func (s *Service) Purge(ctx context.Context, status job.Status) (int64, error) {
	n, err := s.jobs.DeleteByStatus(ctx, status)
	if err != nil {
		return 0, err
	}
	log.Infof("Deleted %d transfers with status %s", n, status)
	return n, nil
}
