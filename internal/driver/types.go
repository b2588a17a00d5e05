package driver

import (
	"context"
	"time"

	"github.com/spf13/afero"

	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/session"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// ProgressSink receives per-file progress. Bytes gets the cumulative count
// for the current file; returning false asks the driver to stop.
type ProgressSink interface {
	Start(name string, total int64)
	Bytes(transferred int64) bool
	Done()
}

// Driver implements the file-level operations of one protocol family. The
// local side of uploads and downloads is read from and written to Fs.
type Driver interface {
	Accept(p job.Protocol) bool
	Name() string
	Fs() afero.Fs

	Connect(ctx context.Context, account *job.Account) (*session.Session, error)
	List(s *session.Session, path string, directoriesOnly bool) ([]Entry, error)
	// MakeDirectory creates path and its parents; an existing directory is
	// not an error.
	MakeDirectory(s *session.Session, path string) error
	ChangeDirectory(s *session.Session, path string) (bool, error)
	UploadFile(s *session.Session, localFile, remoteDir string, sink ProgressSink) error
	DownloadFile(s *session.Session, remotePath, localDir string, sink ProgressSink) error
}

type nopSink struct{}

func (nopSink) Start(string, int64) {}
func (nopSink) Bytes(int64) bool    { return true }
func (nopSink) Done()               {}

func sinkOrNop(sink ProgressSink) ProgressSink {
	if sink == nil {
		return nopSink{}
	}
	return sink
}
