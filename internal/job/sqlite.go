package job

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite" // It doesn't require CGO
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore persists jobs and accounts in SQLite through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the database at dbPath. The special path
// ":memory:" opens a private in-memory database.
func OpenSQLite(dbPath string) (*GormStore, error) {
	if dbPath == "" {
		return nil, errors.New("SQLite database path is empty")
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory for SQLite database at %s", dbPath)
		}
		if len(filepath.Ext(dbPath)) == 0 {
			dbPath += ".sqlite"
		}
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	gormLogger := logger.New(log.StandardLogger(), logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  ormLevel(),
		IgnoreRecordNotFoundError: true,
	})

	log.Debugln("Opening connection to sqlite DB", dsn)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open the database with path: %s", dbPath)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers on file databases.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Account{}, &Job{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate the database schema")
	}
	return &GormStore{db: db}, nil
}

func ormLevel() logger.LogLevel {
	switch log.GetLevel() {
	case log.TraceLevel:
		return logger.Info
	case log.DebugLevel, log.InfoLevel, log.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) withAccounts(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("SourceAccount").Preload("TargetAccount")
}

func (s *GormStore) FindNext(ctx context.Context, status Status, scheduling Scheduling, dayInstant int64, exclude ...uint) (*Job, error) {
	q := s.withAccounts(ctx).Where("status = ? AND scheduling = ?", status, scheduling)
	if scheduling == SchedulingDailyWindow {
		q = q.Where("day_begin <= ? AND day_end >= ?", dayInstant, dayInstant)
	}
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var jobs []Job
	if err := q.Order("job_rank ASC").Order("id ASC").Limit(1).Find(&jobs).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to look up next %s job with status %s", scheduling, status)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

func (s *GormStore) Save(ctx context.Context, j *Job) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(j).Error; err != nil {
		return errors.Wrapf(err, "failed to save transfer job %d", j.ID)
	}
	return nil
}

func (s *GormStore) GetByID(ctx context.Context, id uint) (*Job, error) {
	var j Job
	err := s.withAccounts(ctx).First(&j, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrJobNotFound, "id %d", id)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to load transfer job %d", id)
	}
	return &j, nil
}

func (s *GormStore) MaxRank(ctx context.Context) (int64, bool, error) {
	var rank sql.NullInt64
	if err := s.db.WithContext(ctx).Model(&Job{}).Select("MAX(job_rank)").Row().Scan(&rank); err != nil {
		return 0, false, errors.Wrap(err, "failed to compute the max rank")
	}
	return rank.Int64, rank.Valid, nil
}

func (s *GormStore) DeleteByStatus(ctx context.Context, status Status) (int64, error) {
	res := s.db.WithContext(ctx).Where("status = ?", status).Delete(&Job{})
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "failed to delete %s jobs", status)
	}
	return res.RowsAffected, nil
}

// List returns the jobs with the given status in rank order; an empty status
// lists every job.
func (s *GormStore) List(ctx context.Context, status Status) ([]Job, error) {
	q := s.withAccounts(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []Job
	if err := q.Order("job_rank ASC").Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list transfer jobs")
	}
	return jobs, nil
}

func (s *GormStore) GetAccountByID(ctx context.Context, id uint) (*Account, error) {
	var a Account
	err := s.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrAccountNotFound, "id %d", id)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to load account %d", id)
	}
	return &a, nil
}

func (s *GormStore) SaveAccount(ctx context.Context, a *Account) error {
	if a.PathSeparator == "" {
		a.PathSeparator = "/"
	}
	if a.DefaultPath == "" {
		a.DefaultPath = "."
	}
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return errors.Wrapf(err, "failed to save account %s", a.Name)
	}
	return nil
}

func (s *GormStore) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list accounts")
	}
	return accounts, nil
}
