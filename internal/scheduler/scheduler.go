package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/yarkm13/fetchopusd/internal/driver"
	"github.com/yarkm13/fetchopusd/internal/job"
)

var (
	// ErrPassRunning is returned when a scheduling pass is requested while
	// another one is active. The request is dropped.
	ErrPassRunning = errors.New("a scheduling pass is already running")
	// ErrJobRunning is returned when a job is already being executed.
	ErrJobRunning = errors.New("transfer job is already running")
)

type Config struct {
	Interval     time.Duration
	InitialDelay time.Duration
	// TempDir holds staging copies of remote to remote transfers. A process
	// temporary directory is created on first use when empty.
	TempDir string
}

// Scheduler executes persisted transfer jobs one at a time.
type Scheduler struct {
	svc     *Service
	drivers *driver.Registry
	fs      afero.Fs
	cfg     Config

	running sync.Mutex

	claimsMu sync.Mutex
	claims   map[uint]struct{}

	tempMu  sync.Mutex
	tempDir string
}

func New(svc *Service, drivers *driver.Registry, fs afero.Fs, cfg Config) *Scheduler {
	return &Scheduler{
		svc:     svc,
		drivers: drivers,
		fs:      fs,
		cfg:     cfg,
		claims:  make(map[uint]struct{}),
		tempDir: cfg.TempDir,
	}
}

// Run performs a scheduling pass after the initial delay, then again each
// time Interval has elapsed since the end of the previous pass.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Infof("Scheduler starting in %s, polling every %s", s.cfg.InitialDelay, s.cfg.Interval)
	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduler stopped")
			return nil
		case <-timer.C:
		}
		if err := s.RunScheduledPass(ctx); err != nil && !errors.Is(err, ErrPassRunning) {
			log.Errorf("Scheduling pass failed: %v", err)
		}
		timer.Reset(s.cfg.Interval)
	}
}

// RunScheduledPass executes eligible jobs until none remain. Each job gets at
// most one attempt per pass; a failed job is retried on a later pass while
// the jobs queued behind it still run.
func (s *Scheduler) RunScheduledPass(ctx context.Context) error {
	if !s.running.TryLock() {
		log.Warn("Transfers are already running, pass skipped")
		skippedPasses.Inc()
		return ErrPassRunning
	}
	defer s.running.Unlock()

	start := time.Now()
	defer func() { passDuration.Observe(time.Since(start).Seconds()) }()

	log.Debug("Lookup transfers to perform")
	var seen []uint
	for ctx.Err() == nil {
		j, err := s.svc.FindNextToPerform(ctx, seen...)
		if err != nil {
			return err
		}
		if j == nil {
			return nil
		}
		seen = append(seen, j.ID)
		if !s.claim(j.ID) {
			log.WithField("job", j.ID).Info("Transfer is running on demand, skipped")
			continue
		}
		err = s.perform(ctx, j)
		s.release(j.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// RunJob executes the job with the given id right away, whatever its status.
// Transfer failures are recorded in the returned job.
func (s *Scheduler) RunJob(ctx context.Context, id uint) (*job.Job, error) {
	if !s.claim(id) {
		return nil, errors.Wrapf(ErrJobRunning, "id %d", id)
	}
	defer s.release(id)

	j, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.perform(ctx, j); err != nil {
		return j, err
	}
	return j, nil
}

func (s *Scheduler) claim(id uint) bool {
	s.claimsMu.Lock()
	defer s.claimsMu.Unlock()
	if _, ok := s.claims[id]; ok {
		return false
	}
	s.claims[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id uint) {
	s.claimsMu.Lock()
	defer s.claimsMu.Unlock()
	delete(s.claims, id)
}

// perform runs one attempt of j and records its outcome. Only store failures
// are returned.
func (s *Scheduler) perform(ctx context.Context, j *job.Job) error {
	logger := log.WithField("job", j.ID)
	storeCtx := context.WithoutCancel(ctx)
	if err := s.svc.Started(storeCtx, j); err != nil {
		return err
	}

	err := s.transfer(ctx, j)
	switch {
	case err == nil:
		jobsTotal.WithLabelValues("done").Inc()
		return s.svc.Finished(storeCtx, j)
	case ctx.Err() != nil && errors.Is(err, driver.ErrCancelled):
		logger.Infof("Transfer interrupted: %v", err)
		return s.svc.Update(storeCtx, j)
	}

	kind := driver.KindOf(err)
	if kind == "" {
		kind = "unknown"
	}
	jobFailures.WithLabelValues(kind).Inc()
	logger.WithField("kind", kind).Warnf("Error during transfer: %v", err)
	terminal, serr := s.svc.OnError(storeCtx, j, err.Error())
	if terminal {
		jobsTotal.WithLabelValues("error").Inc()
	} else {
		jobsTotal.WithLabelValues("retry").Inc()
	}
	return serr
}

func validate(j *job.Job) error {
	switch {
	case j.SourceAccount == nil:
		return errors.Wrapf(driver.ErrValidation, "transfer(%d).source.account field is null", j.ID)
	case j.SourcePath == "":
		return errors.Wrapf(driver.ErrValidation, "transfer(%d).source.path field is empty", j.ID)
	case j.TargetAccount == nil:
		return errors.Wrapf(driver.ErrValidation, "transfer(%d).target.account field is null", j.ID)
	case j.TargetPath == "":
		return errors.Wrapf(driver.ErrValidation, "transfer(%d).target.path field is empty", j.ID)
	}
	return nil
}

func (s *Scheduler) transfer(ctx context.Context, j *job.Job) error {
	if err := validate(j); err != nil {
		return err
	}
	source, target := j.Source(), j.Target()
	logger := log.WithField("job", j.ID)
	logger.Infof("Perform transfer between %s and %s", source, target)

	sink := newJobProgress(ctx, j, s.svc.Update)
	begin := time.Now()
	var err error
	switch {
	case source.Account.Protocol == job.ProtocolLocal:
		err = s.upload(ctx, source.Path, target, sink)
	case target.Account.Protocol == job.ProtocolLocal:
		err = s.download(ctx, source, target.Path, sink)
	default:
		err = s.transferViaLocal(ctx, j, sink)
	}
	if err != nil {
		return err
	}
	logger.WithField("duration", time.Since(begin).Round(time.Second)).
		Infof("Transfer performed with success between %s and %s", source, target)
	return nil
}

func (s *Scheduler) upload(ctx context.Context, localPath string, target job.FileLocation, sink driver.ProgressSink) error {
	d, err := s.drivers.For(target.Account.Protocol)
	if err != nil {
		return err
	}
	sess, err := d.Connect(ctx, target.Account)
	if err != nil {
		return err
	}
	defer sess.RequestClose()
	return driver.Upload(d, sess, localPath, target, sink)
}

func (s *Scheduler) download(ctx context.Context, source job.FileLocation, localPath string, sink driver.ProgressSink) error {
	d, err := s.drivers.For(source.Account.Protocol)
	if err != nil {
		return err
	}
	sess, err := d.Connect(ctx, source.Account)
	if err != nil {
		return err
	}
	defer sess.RequestClose()
	return driver.Download(d, sess, source, localPath, sink)
}

// transferViaLocal copies between two remote endpoints through a local
// staging directory, removed once the attempt is over.
func (s *Scheduler) transferViaLocal(ctx context.Context, j *job.Job, sink driver.ProgressSink) error {
	staging, err := s.stagingPath(j.ID)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.fs.RemoveAll(staging); err != nil {
			log.WithField("job", j.ID).Warnf("Failed to remove staging directory %s: %v", staging, err)
		}
	}()
	logger := log.WithField("job", j.ID)

	begin := time.Now()
	logger.Debugf("Perform 1st transfer part between %s and %s", j.Source(), staging)
	if err := s.download(ctx, j.Source(), staging, sink); err != nil {
		return err
	}
	logger.WithField("duration", time.Since(begin).Round(time.Second)).
		Infof("1st transfer part performed with success between %s and %s", j.Source(), staging)

	staged := filepath.Join(staging, driver.LastSegment(j.SourcePath))
	logger.Debugf("Perform 2nd transfer part between %s and %s", staged, j.Target())
	return s.upload(ctx, staged, j.Target(), sink)
}

func (s *Scheduler) stagingPath(id uint) (string, error) {
	s.tempMu.Lock()
	defer s.tempMu.Unlock()
	if s.tempDir == "" {
		dir, err := afero.TempDir(s.fs, "", "fetchopus")
		if err != nil {
			return "", errors.Wrapf(driver.ErrIO, "cannot create temporary directory: %v", err)
		}
		s.tempDir = dir
	}
	return filepath.Join(s.tempDir, fmt.Sprintf("%d_%d", id, time.Now().Unix())), nil
}
