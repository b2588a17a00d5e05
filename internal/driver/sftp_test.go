package driver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/session"
)

// newInMemorySSHDriver returns a driver whose connections all reach the same
// in-memory SFTP server.
func newInMemorySSHDriver(t *testing.T, local afero.Fs) *SSHDriver {
	d, err := NewSSHDriver(local, time.Second, "")
	require.NoError(t, err)

	handlers := sftp.InMemHandler()
	d.dial = func(_ context.Context, _ *job.Account) (*sftp.Client, io.Closer, error) {
		serverConn, clientConn := net.Pipe()
		server := sftp.NewRequestServer(serverConn, handlers)
		go func() { _ = server.Serve() }()
		client, err := sftp.NewClientPipe(clientConn, clientConn)
		if err != nil {
			_ = server.Close()
			return nil, nil, err
		}
		return client, server, nil
	}
	return d
}

func sshSession(t *testing.T, d Driver) *session.Session {
	s, err := d.Connect(context.Background(), &job.Account{Host: "sftp.test", User: "alice", Protocol: job.ProtocolSSH})
	require.NoError(t, err)
	t.Cleanup(s.RequestClose)
	return s
}

func TestSSHRoundTrip(t *testing.T) {
	local := afero.NewMemMapFs()
	d := newInMemorySSHDriver(t, local)

	require.NoError(t, local.MkdirAll("/src/tree/sub", 0755))
	writeFile(t, local, "/src/tree/a.txt", 50)
	writeFile(t, local, "/src/tree/sub/b.txt", 30)

	up := sshSession(t, d)
	require.NoError(t, Upload(d, up, "/src/tree", job.FileLocation{Path: "/upload"}, nil))

	entries, err := d.List(up, "/upload/tree", false)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub"}, names)

	down := sshSession(t, d)
	sink := &recordingSink{}
	require.NoError(t, Download(d, down, job.FileLocation{Path: "/upload/tree"}, "/back", sink))
	assert.EqualValues(t, 50, fileSize(t, local, "/back/tree/a.txt"))
	assert.EqualValues(t, 30, fileSize(t, local, "/back/tree/sub/b.txt"))
	assert.ElementsMatch(t, []int64{50, 30}, sink.totals)
}

func TestSSHListFileAndMissing(t *testing.T) {
	local := afero.NewMemMapFs()
	d := newInMemorySSHDriver(t, local)
	s := sshSession(t, d)

	writeFile(t, local, "/src/report.csv", 10)
	require.NoError(t, Upload(d, s, "/src/report.csv", job.FileLocation{Path: "/data"}, nil))

	entries, err := d.List(s, "/data/report.csv", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.csv", entries[0].Name)
	assert.False(t, entries[0].IsDir)
	assert.EqualValues(t, 10, entries[0].Size)

	dirs, err := d.List(s, "/", true)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "data", dirs[0].Name)

	_, err = d.List(s, "/nope", false)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	err = d.DownloadFile(s, "/nope.bin", "/out", nil)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestSSHMakeDirectoryIsIdempotent(t *testing.T) {
	d := newInMemorySSHDriver(t, afero.NewMemMapFs())
	s := sshSession(t, d)

	require.NoError(t, d.MakeDirectory(s, "/a/b/c"))
	require.NoError(t, d.MakeDirectory(s, "/a/b/c"))

	ok, err := d.ChangeDirectory(s, "/a/b/c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.ChangeDirectory(s, "/a/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSSHConnectFailure(t *testing.T) {
	d, err := NewSSHDriver(afero.NewMemMapFs(), time.Second, "")
	require.NoError(t, err)
	d.dial = func(context.Context, *job.Account) (*sftp.Client, io.Closer, error) {
		return nil, nil, errors.New("ssh: handshake failed: unable to authenticate")
	}

	_, err = d.Connect(context.Background(), &job.Account{Host: "h", Protocol: job.ProtocolSSH})
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestTrustOnFirstUse(t *testing.T) {
	newKey := func() ssh.PublicKey {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		key, err := ssh.NewPublicKey(pub)
		require.NoError(t, err)
		return key
	}
	first, second := newKey(), newKey()
	tofu := newTrustOnFirstUse()

	assert.NoError(t, tofu.check("host:22", nil, first))
	assert.NoError(t, tofu.check("host:22", nil, first))
	assert.Error(t, tofu.check("host:22", nil, second))
	assert.NoError(t, tofu.check("other:22", nil, second))
}
