package driver

import (
	"context"
	"io"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/session"
)

// ftpConn is the part of *ftp.ServerConn the driver relies on.
type ftpConn interface {
	CurrentDir() (string, error)
	List(path string) ([]*ftp.Entry, error)
	FileSize(path string) (int64, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	MakeDir(path string) error
	ChangeDir(path string) error
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ftpSession is the session payload: the control connection plus the login
// directory used to resolve relative paths.
type ftpSession struct {
	conn ftpConn
	home string
}

func (s *ftpSession) Close() error {
	return s.conn.Quit()
}

func (s *ftpSession) abs(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return path.Join(s.home, p)
}

type FTPDriver struct {
	fs      afero.Fs
	timeout time.Duration
	dial    func(ctx context.Context, account *job.Account, timeout time.Duration) (ftpConn, error)
}

func NewFTPDriver(fs afero.Fs, timeout time.Duration) *FTPDriver {
	return &FTPDriver{fs: fs, timeout: timeout, dial: dialFTP}
}

func (d *FTPDriver) Accept(p job.Protocol) bool { return p == job.ProtocolFTP }

func (d *FTPDriver) Name() string { return "ftp" }

func (d *FTPDriver) Fs() afero.Fs { return d.fs }

func dialFTP(ctx context.Context, account *job.Account, timeout time.Duration) (ftpConn, error) {
	// Plain LIST: MLSD rejects file paths, which single-file downloads list.
	opts := []ftp.DialOption{ftp.DialWithContext(ctx), ftp.DialWithDisabledMLSD(true)}
	if timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(timeout))
	}
	c, err := ftp.Dial(account.Address(), opts...)
	if err != nil {
		return nil, err
	}

	if err = c.Login(account.User, account.Credential); err != nil {
		_ = c.Quit() // Close connection on login failure
		return nil, errors.Wrapf(err, "fail to log on FTP server '%s' as '%s'", account.Host, account.User)
	}
	return serverConn{c}, nil
}

func (d *FTPDriver) Connect(ctx context.Context, account *job.Account) (*session.Session, error) {
	log.Debugf("Connecting on FTP server '%s'...", account.Address())
	c, err := d.dial(ctx, account, d.timeout)
	if err != nil {
		return nil, newError(ErrConnection, err, "cannot connect to %s", account)
	}

	home, err := c.CurrentDir()
	if err != nil {
		_ = c.Quit()
		return nil, newError(ErrConnection, err, "cannot read login directory on %s", account)
	}
	log.Debugf("Logged on FTP server '%s' as '%s'", account.Host, account.User)
	return session.New(account.String(), &ftpSession{conn: c, home: home}), nil
}

func ftpSessionOf(s *session.Session) (*ftpSession, error) {
	fc, ok := s.Conn().(*ftpSession)
	if !ok {
		return nil, errors.Wrapf(ErrValidation, "session %s is not an FTP session", s.Name())
	}
	return fc, nil
}

// isFileUnavailable reports a 550 reply, which servers use for missing paths.
func isFileUnavailable(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

func (d *FTPDriver) List(s *session.Session, p string, directoriesOnly bool) ([]Entry, error) {
	fc, err := ftpSessionOf(s)
	if err != nil {
		return nil, err
	}
	log.Debugf("Listing remote directory content '%s'...", p)
	ftpEntries, err := fc.conn.List(fc.abs(p))
	if isFileUnavailable(err) {
		return nil, newError(ErrNotFound, err, "remote path %s", p)
	} else if err != nil {
		if entry, ok := fileEntry(fc, p, err); ok {
			return []Entry{entry}, nil
		}
		return nil, newError(ErrIO, err, "cannot list remote path %s", p)
	}

	entries := make([]Entry, 0, len(ftpEntries))
	for _, e := range ftpEntries {
		isDir := e.Type == ftp.EntryTypeFolder
		if directoriesOnly && !isDir {
			continue
		}
		entries = append(entries, Entry{Name: e.Name, IsDir: isDir, Size: int64(e.Size), ModTime: e.Time})
	}
	return entries, nil
}

// fileEntry describes p as a single file when the server refused to list it
// (501 for a file path, as MLSD does) but can report its size.
func fileEntry(fc *ftpSession, p string, listErr error) (Entry, bool) {
	var tpErr *textproto.Error
	if !errors.As(listErr, &tpErr) {
		return Entry{}, false
	}
	size, err := fc.conn.FileSize(fc.abs(p))
	if err != nil {
		log.Debugf("'%s' is not a file either: %v", p, err)
		return Entry{}, false
	}
	return Entry{Name: LastSegment(p), Size: size}, true
}

func (d *FTPDriver) MakeDirectory(s *session.Session, p string) error {
	fc, err := ftpSessionOf(s)
	if err != nil {
		return err
	}
	target := path.Clean(fc.abs(p))
	log.Debugf("Creating remote FTP directory '%s'", target)

	// Create every missing level; failures on existing levels are expected.
	current := ""
	for _, part := range strings.Split(strings.TrimPrefix(target, "/"), "/") {
		if part == "" {
			continue
		}
		current += "/" + part
		if err := fc.conn.MakeDir(current); err != nil {
			log.Debugf("Directory '%s' not created: %v", current, err)
		}
	}

	if err := fc.conn.ChangeDir(target); err != nil {
		return newError(ErrTransfer, err, "cannot create remote directory %s", target)
	}
	return nil
}

func (d *FTPDriver) ChangeDirectory(s *session.Session, p string) (bool, error) {
	fc, err := ftpSessionOf(s)
	if err != nil {
		return false, err
	}
	if err := fc.conn.ChangeDir(fc.abs(p)); err != nil {
		if isFileUnavailable(err) {
			return false, nil
		}
		return false, newError(ErrIO, err, "cannot enter remote directory %s", p)
	}
	return true, nil
}

func (d *FTPDriver) UploadFile(s *session.Session, localFile, remoteDir string, sink ProgressSink) error {
	fc, err := ftpSessionOf(s)
	if err != nil {
		return err
	}
	sink = sinkOrNop(sink)
	log.Debugf("Send local file '%s' into remote directory '%s'", localFile, remoteDir)

	in, size, err := openLocalFile(d.fs, localFile)
	if err != nil {
		return err
	}
	defer in.Close()

	name := path.Base(localFile)
	remotePath := JoinPath(fc.abs(remoteDir), name)
	sink.Start(name, size)
	pr := &progressReader{r: in, sink: sink}
	if err := fc.conn.Stor(remotePath, pr); err != nil {
		if pr.cancelled {
			return newError(ErrTransfer, ErrCancelled, "upload of %s stopped", localFile)
		}
		return newError(ErrTransfer, err, "upload of local file '%s' into the remote directory '%s' failed", localFile, remoteDir)
	}
	sink.Done()
	log.Debugf("File '%s' transferred to FTP server with success.", localFile)
	return nil
}

func (d *FTPDriver) DownloadFile(s *session.Session, remotePath, localDir string, sink ProgressSink) error {
	fc, err := ftpSessionOf(s)
	if err != nil {
		return err
	}
	abs := fc.abs(remotePath)
	size, err := fc.conn.FileSize(abs)
	if err != nil {
		// SIZE is optional; the transfer still detects empty files.
		size = -1
	}

	r, err := fc.conn.Retr(abs)
	if isFileUnavailable(err) {
		return newError(ErrNotFound, err, "remote file %s", remotePath)
	} else if err != nil {
		return newError(ErrIO, err, "cannot retrieve remote file %s", remotePath)
	}

	err = saveLocalFile(d.fs, localDir, LastSegment(remotePath), r, size, false, sinkOrNop(sink))
	if closeErr := r.Close(); closeErr != nil && err == nil {
		err = newError(ErrIO, closeErr, "transfer of %s not confirmed by server", remotePath)
	}
	if err != nil {
		return err
	}
	log.Debugf("File '%s' transferred from FTP server with success.", remotePath)
	return nil
}
