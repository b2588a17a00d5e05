package driver

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/session"
)

// LocalDriver treats the local filesystem as an endpoint. Uploads and
// downloads are plain copies within the same filesystem.
type LocalDriver struct {
	fs afero.Fs
}

func NewLocalDriver(fs afero.Fs) *LocalDriver {
	return &LocalDriver{fs: fs}
}

func (d *LocalDriver) Accept(p job.Protocol) bool { return p == job.ProtocolLocal }

func (d *LocalDriver) Name() string { return "local" }

func (d *LocalDriver) Fs() afero.Fs { return d.fs }

type localConn struct{}

func (localConn) Close() error { return nil }

func (d *LocalDriver) Connect(_ context.Context, _ *job.Account) (*session.Session, error) {
	return session.New("local", localConn{}), nil
}

func (d *LocalDriver) List(_ *session.Session, path string, directoriesOnly bool) ([]Entry, error) {
	log.Debugf("Listing local directory content: %s", path)
	info, err := d.fs.Stat(path)
	if os.IsNotExist(err) {
		return nil, newError(ErrNotFound, err, "local path %s", path)
	} else if err != nil {
		return nil, newError(ErrIO, err, "cannot stat local path %s", path)
	}
	if !info.IsDir() {
		if directoriesOnly {
			return nil, nil
		}
		return []Entry{fileInfoEntry(info)}, nil
	}

	infos, err := afero.ReadDir(d.fs, path)
	if err != nil {
		return nil, newError(ErrIO, err, "cannot list local directory %s", path)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		if directoriesOnly && !fi.IsDir() {
			continue
		}
		entries = append(entries, fileInfoEntry(fi))
	}
	return entries, nil
}

func (d *LocalDriver) MakeDirectory(_ *session.Session, path string) error {
	if err := d.fs.MkdirAll(path, 0755); err != nil {
		return newError(ErrIO, err, "cannot create local directory %s", path)
	}
	return nil
}

func (d *LocalDriver) ChangeDirectory(_ *session.Session, path string) (bool, error) {
	return afero.DirExists(d.fs, path)
}

func (d *LocalDriver) UploadFile(_ *session.Session, localFile, remoteDir string, sink ProgressSink) error {
	return d.copyFile(localFile, remoteDir, true, sinkOrNop(sink))
}

func (d *LocalDriver) DownloadFile(_ *session.Session, remotePath, localDir string, sink ProgressSink) error {
	if _, err := d.fs.Stat(remotePath); os.IsNotExist(err) {
		return newError(ErrNotFound, err, "local file %s", remotePath)
	}
	return d.copyFile(remotePath, localDir, false, sinkOrNop(sink))
}

// copyFile copies src into dstDir. An empty src only counts as an error when
// allowEmpty is false.
func (d *LocalDriver) copyFile(src, dstDir string, allowEmpty bool, sink ProgressSink) error {
	log.Debugf("Copying local file '%s' into '%s'", src, dstDir)
	in, size, err := openLocalFile(d.fs, src)
	if err != nil {
		return err
	}
	defer in.Close()
	return saveLocalFile(d.fs, dstDir, filepath.Base(src), in, size, allowEmpty, sink)
}

func fileInfoEntry(fi os.FileInfo) Entry {
	return Entry{Name: fi.Name(), IsDir: fi.IsDir(), Size: fi.Size(), ModTime: fi.ModTime()}
}
