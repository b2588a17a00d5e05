package job

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Protocol tags the endpoint family of an account.
type Protocol string

const (
	ProtocolLocal Protocol = "LOCAL"
	ProtocolFTP   Protocol = "FTP"
	ProtocolSSH   Protocol = "SSH"
)

type Status string

const (
	StatusCreated Status = "CREATED"
	StatusDoing   Status = "DOING"
	StatusDone    Status = "DONE"
	StatusError   Status = "ERROR"
)

// Scheduling controls when a job becomes eligible.
type Scheduling string

const (
	SchedulingImmediate   Scheduling = "IMMEDIATE"
	SchedulingDailyWindow Scheduling = "DAILY_WINDOW"
)

// Account identifies a local or remote endpoint.
type Account struct {
	ID            uint     `gorm:"primaryKey" json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Host          string   `json:"host" yaml:"host"`
	Port          int      `json:"port" yaml:"port"`
	User          string   `json:"user" yaml:"user"`
	Credential    string   `json:"-" yaml:"credential"`
	Protocol      Protocol `gorm:"not null" json:"protocol" yaml:"protocol"`
	PathSeparator string   `gorm:"default:/" json:"pathSeparator" yaml:"pathSeparator"`
	DefaultPath   string   `gorm:"default:." json:"defaultPath" yaml:"defaultPath"`
}

func (Account) TableName() string { return "accounts" }

// Address returns host:port, falling back to the protocol's well-known port.
func (a *Account) Address() string {
	port := a.Port
	if port == 0 {
		switch a.Protocol {
		case ProtocolFTP:
			port = 21
		case ProtocolSSH:
			port = 22
		}
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(port))
}

func (a *Account) String() string {
	if a.Protocol == ProtocolLocal {
		return "local"
	}
	return fmt.Sprintf("%s://%s@%s", a.Protocol, a.User, a.Address())
}

// FileLocation is one side of a job: a path on an account.
type FileLocation struct {
	Path    string
	Account *Account
}

func (l FileLocation) String() string {
	if l.Account == nil {
		return l.Path
	}
	return l.Account.String() + ":" + l.Path
}

// Job is a persisted request to move a file or directory tree.
type Job struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Status     Status     `gorm:"not null;index" json:"status"`
	Scheduling Scheduling `gorm:"not null" json:"scheduling"`
	// Seconds since local midnight, only meaningful for DAILY_WINDOW jobs.
	DayBegin *int64 `json:"dayBegin,omitempty"`
	DayEnd   *int64 `json:"dayEnd,omitempty"`
	Rank     int64  `gorm:"column:job_rank;index" json:"rank"`

	SourcePath      string   `json:"sourcePath"`
	SourceAccountID *uint    `json:"sourceAccountId"`
	SourceAccount   *Account `gorm:"foreignKey:SourceAccountID" json:"sourceAccount,omitempty"`
	TargetPath      string   `json:"targetPath"`
	TargetAccountID *uint    `json:"targetAccountId"`
	TargetAccount   *Account `gorm:"foreignKey:TargetAccountID" json:"targetAccount,omitempty"`

	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	Errors          string `json:"errors"`
	ErrorCount      int    `json:"errorCount"`
	FileSize        int64  `json:"fileSize"`
	Downloaded      int64  `json:"downloaded"`
	DownloadedFiles string `json:"downloadedFiles"`
}

func (Job) TableName() string { return "transfer_jobs" }

// BeforeSave keeps the account foreign keys in line with loaded accounts.
func (j *Job) BeforeSave(tx *gorm.DB) error {
	if j.SourceAccount != nil && j.SourceAccount.ID != 0 {
		id := j.SourceAccount.ID
		j.SourceAccountID = &id
	}
	if j.TargetAccount != nil && j.TargetAccount.ID != 0 {
		id := j.TargetAccount.ID
		j.TargetAccountID = &id
	}
	return nil
}

func (j *Job) Source() FileLocation {
	return FileLocation{Path: j.SourcePath, Account: j.SourceAccount}
}

func (j *Job) Target() FileLocation {
	return FileLocation{Path: j.TargetPath, Account: j.TargetAccount}
}

// AppendError records a failed attempt. The log is newest first, each entry
// prefixed with its sequence number, and cut to maxLen from the tail.
func (j *Job) AppendError(message string, maxLen int) {
	j.ErrorCount++
	entry := fmt.Sprintf("%d:%s", j.ErrorCount, message)
	if j.Errors == "" {
		j.Errors = entry
	} else {
		j.Errors = entry + "\n" + j.Errors
	}
	if maxLen > 0 && len(j.Errors) > maxLen {
		j.Errors = j.Errors[:maxLen]
	}
}

// AddStartedFile appends name to the list of files already started.
func (j *Job) AddStartedFile(name string) {
	if j.DownloadedFiles == "" {
		j.DownloadedFiles = name
		return
	}
	j.DownloadedFiles += ", " + name
}

// InWindow reports whether instant falls into the job's daily window.
func (j *Job) InWindow(instant int64) bool {
	if j.DayBegin == nil || j.DayEnd == nil {
		return false
	}
	return *j.DayBegin <= instant && instant <= *j.DayEnd
}

// InstantOfDay returns the number of seconds elapsed since midnight of t.
func InstantOfDay(t time.Time) int64 {
	return int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
}
