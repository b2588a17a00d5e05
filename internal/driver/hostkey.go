package driver

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// trustOnFirstUse remembers the fingerprint each host presented first and
// rejects a different key later in the process lifetime.
type trustOnFirstUse struct {
	mu          sync.Mutex
	fingerprint map[string]string
}

func newTrustOnFirstUse() *trustOnFirstUse {
	return &trustOnFirstUse{fingerprint: make(map[string]string)}
}

func (t *trustOnFirstUse) check(hostname string, _ net.Addr, key ssh.PublicKey) error {
	fingerprint := ssh.FingerprintSHA256(key)

	t.mu.Lock()
	defer t.mu.Unlock()
	stored, exists := t.fingerprint[hostname]
	if !exists {
		log.Infof("Trusting %s key %s for host '%s'", key.Type(), fingerprint, hostname)
		t.fingerprint[hostname] = fingerprint
		return nil
	}
	if stored != fingerprint {
		return errors.Errorf("host key for '%s' changed: was %s, now %s", hostname, stored, fingerprint)
	}
	return nil
}

// hostKeyCallback verifies against a known_hosts file when one is given.
func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return newTrustOnFirstUse().check, nil
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load known hosts from %s", knownHostsFile)
	}
	return cb, nil
}
