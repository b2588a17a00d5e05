package driver

import (
	"context"
	"encoding/base64"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/session"
)

// sftpSession holds the SFTP channel and the SSH connection carrying it.
type sftpSession struct {
	client    *sftp.Client
	transport io.Closer
}

func (s *sftpSession) Close() error {
	err := s.client.Close()
	if s.transport != nil {
		if terr := s.transport.Close(); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}

// SSHDriver reaches SSH servers through their SFTP subsystem.
type SSHDriver struct {
	fs      afero.Fs
	timeout time.Duration
	hostKey ssh.HostKeyCallback
	dial    func(ctx context.Context, account *job.Account) (*sftp.Client, io.Closer, error)
}

func NewSSHDriver(fs afero.Fs, timeout time.Duration, knownHostsFile string) (*SSHDriver, error) {
	cb, err := hostKeyCallback(knownHostsFile)
	if err != nil {
		return nil, err
	}
	d := &SSHDriver{fs: fs, timeout: timeout, hostKey: cb}
	d.dial = d.dialSSH
	return d, nil
}

func (d *SSHDriver) Accept(p job.Protocol) bool { return p == job.ProtocolSSH }

func (d *SSHDriver) Name() string { return "ssh" }

func (d *SSHDriver) Fs() afero.Fs { return d.fs }

// authMethods accepts either a base64 encoded private key or a password as
// the account credential.
func authMethods(account *job.Account) []ssh.AuthMethod {
	if privateKeyBytes, err := base64.StdEncoding.DecodeString(account.Credential); err == nil {
		if signer, err := ssh.ParsePrivateKey(privateKeyBytes); err == nil {
			log.Debugf("Using private key authentication for %s", account)
			return []ssh.AuthMethod{ssh.PublicKeys(signer)}
		}
	}
	password := account.Credential
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}
}

func (d *SSHDriver) dialSSH(ctx context.Context, account *job.Account) (*sftp.Client, io.Closer, error) {
	config := &ssh.ClientConfig{
		User:            account.User,
		Auth:            authMethods(account),
		HostKeyCallback: d.hostKey,
		Timeout:         d.timeout,
	}

	addr := account.Address()
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to dial")
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "ssh handshake failed")
	}
	client := ssh.NewClient(c, chans, reqs)

	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "failed to open sftp channel")
	}
	return sc, client, nil
}

func (d *SSHDriver) Connect(ctx context.Context, account *job.Account) (*session.Session, error) {
	log.Debugf("Connecting to %s ...", account)
	client, transport, err := d.dial(ctx, account)
	if err != nil {
		return nil, newError(ErrConnection, err, "cannot connect to %s", account)
	}
	return session.New(account.String(), &sftpSession{client: client, transport: transport}), nil
}

func sftpClientOf(s *session.Session) (*sftp.Client, error) {
	ss, ok := s.Conn().(*sftpSession)
	if !ok {
		return nil, errors.Wrapf(ErrValidation, "session %s is not an SFTP session", s.Name())
	}
	return ss.client, nil
}

func (d *SSHDriver) stat(c *sftp.Client, p string) (os.FileInfo, error) {
	info, err := c.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, newError(ErrNotFound, err, "remote path %s", p)
	} else if err != nil {
		return nil, newError(ErrIO, err, "cannot stat remote path %s", p)
	}
	return info, nil
}

func (d *SSHDriver) List(s *session.Session, p string, directoriesOnly bool) ([]Entry, error) {
	c, err := sftpClientOf(s)
	if err != nil {
		return nil, err
	}
	info, err := d.stat(c, p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if directoriesOnly {
			return nil, nil
		}
		return []Entry{{Name: LastSegment(p), Size: info.Size(), ModTime: info.ModTime()}}, nil
	}

	infos, err := c.ReadDir(p)
	if err != nil {
		return nil, newError(ErrIO, err, "cannot list remote directory %s", p)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		if directoriesOnly && !fi.IsDir() {
			log.Debugf("File entry rejected: %s", fi.Name())
			continue
		}
		entries = append(entries, fileInfoEntry(fi))
	}
	return entries, nil
}

func (d *SSHDriver) MakeDirectory(s *session.Session, p string) error {
	c, err := sftpClientOf(s)
	if err != nil {
		return err
	}
	if err := c.MkdirAll(p); err != nil {
		return newError(ErrTransfer, err, "cannot create remote directory %s", p)
	}
	return nil
}

// ChangeDirectory only checks the directory: SFTP has no working directory
// and every path is sent in full.
func (d *SSHDriver) ChangeDirectory(s *session.Session, p string) (bool, error) {
	c, err := sftpClientOf(s)
	if err != nil {
		return false, err
	}
	info, err := c.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, newError(ErrIO, err, "cannot stat remote directory %s", p)
	}
	return info.IsDir(), nil
}

func (d *SSHDriver) UploadFile(s *session.Session, localFile, remoteDir string, sink ProgressSink) (err error) {
	c, err := sftpClientOf(s)
	if err != nil {
		return err
	}
	sink = sinkOrNop(sink)

	in, size, err := openLocalFile(d.fs, localFile)
	if err != nil {
		return err
	}
	defer in.Close()

	name := path.Base(localFile)
	remotePath := JoinPath(remoteDir, name)
	log.Debugf("Upload the local file '%s' into the SFTP remote file '%s'.", localFile, remotePath)
	out, err := c.Create(remotePath)
	if err != nil {
		return newError(ErrTransfer, err, "cannot create remote file %s", remotePath)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = newError(ErrTransfer, cerr, "cannot complete remote file %s", remotePath)
		}
	}()

	sink.Start(name, size)
	pr := &progressReader{r: in, sink: sink}
	if _, err := io.Copy(out, pr); err != nil {
		if pr.cancelled {
			return newError(ErrTransfer, ErrCancelled, "upload of %s stopped", localFile)
		}
		return newError(ErrTransfer, err, "upload of %s to %s failed", localFile, remotePath)
	}
	sink.Done()
	return nil
}

func (d *SSHDriver) DownloadFile(s *session.Session, remotePath, localDir string, sink ProgressSink) error {
	c, err := sftpClientOf(s)
	if err != nil {
		return err
	}
	info, err := d.stat(c, remotePath)
	if err != nil {
		return err
	}

	log.Debugf("Download from the SFTP remote file '%s' to the local directory '%s'", remotePath, localDir)
	r, err := c.Open(remotePath)
	if err != nil {
		return newError(ErrIO, err, "cannot open remote file %s", remotePath)
	}
	defer r.Close()
	return saveLocalFile(d.fs, localDir, LastSegment(remotePath), r, info.Size(), false, sinkOrNop(sink))
}
