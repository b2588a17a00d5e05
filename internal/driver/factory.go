package driver

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/yarkm13/fetchopusd/internal/job"
)

type Options struct {
	FTPTimeout time.Duration
	SSHTimeout time.Duration
	// KnownHosts is an OpenSSH known_hosts file. When empty, host keys are
	// trusted on first use for the lifetime of the process.
	KnownHosts string
}

// Registry maps protocol tags to drivers sharing one local filesystem.
type Registry struct {
	drivers []Driver
}

func NewRegistry(fs afero.Fs, opts Options) (*Registry, error) {
	sshDriver, err := NewSSHDriver(fs, opts.SSHTimeout, opts.KnownHosts)
	if err != nil {
		return nil, err
	}
	return NewRegistryOf(
		NewLocalDriver(fs),
		NewFTPDriver(fs, opts.FTPTimeout),
		sshDriver,
		// add more
	), nil
}

// NewRegistryOf builds a registry from explicit drivers.
func NewRegistryOf(drivers ...Driver) *Registry {
	return &Registry{drivers: drivers}
}

func (r *Registry) For(p job.Protocol) (Driver, error) {
	for _, d := range r.drivers {
		if d.Accept(p) {
			return d, nil
		}
	}
	return nil, errors.Wrapf(ErrValidation, "no driver available for protocol %q", p)
}
