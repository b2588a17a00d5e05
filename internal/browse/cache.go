package browse

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/yarkm13/fetchopusd/internal/driver"
	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/session"
)

var cachedSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "fetchopus_browse_sessions",
	Help: "Sessions held by the browse cache",
})

// Cache keeps one session per account for interactive browsing. An entry
// unused for longer than maxIdle is closed by the next EvictIdle.
type Cache struct {
	drivers  *driver.Registry
	sessions *ttlcache.Cache[uint, *session.Session]

	// connecting serializes cache misses so an account never gets two
	// sessions.
	connecting sync.Mutex
	// listing holds one *sync.Mutex per account; a session runs one listing
	// at a time.
	listing sync.Map
}

func NewCache(drivers *driver.Registry, maxIdle time.Duration) *Cache {
	sessions := ttlcache.New[uint, *session.Session](
		ttlcache.WithTTL[uint, *session.Session](maxIdle),
	)
	sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint, *session.Session]) {
		cachedSessions.Dec()
		log.WithField("account", item.Key()).Infof("Cache entry cleaned (%s)", evictionReason(reason))
		// Deferred until the session is released when a browse still holds it.
		item.Value().RequestClose()
	})
	return &Cache{drivers: drivers, sessions: sessions}
}

func evictionReason(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonExpired:
		return "idle"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	}
	return "removed"
}

// GetOrConnect returns the cached session of account, connecting on a miss.
// A hit refreshes the entry's idle timer.
func (c *Cache) GetOrConnect(ctx context.Context, account *job.Account) (*session.Session, error) {
	if item := c.sessions.Get(account.ID); item != nil {
		log.Debug("Connection session fetched.")
		return item.Value(), nil
	}

	c.connecting.Lock()
	defer c.connecting.Unlock()
	if item := c.sessions.Get(account.ID); item != nil {
		return item.Value(), nil
	}

	d, err := c.drivers.For(account.Protocol)
	if err != nil {
		return nil, err
	}
	log.Debugf("Establish a new connection session to %s", account)
	s, err := d.Connect(ctx, account)
	if err != nil {
		return nil, err
	}
	// An expired entry may still be stored; drop it so it gets closed.
	c.sessions.Delete(account.ID)
	c.sessions.Set(account.ID, s, ttlcache.DefaultTTL)
	cachedSessions.Inc()
	return s, nil
}

// Connect opens or refreshes the session of account.
func (c *Cache) Connect(ctx context.Context, account *job.Account) error {
	_, err := c.GetOrConnect(ctx, account)
	return err
}

// Disconnect forgets the session of account and closes it once unused.
func (c *Cache) Disconnect(account *job.Account) {
	c.sessions.Delete(account.ID)
}

// Browse lists path on account. An empty path lists the account's default
// path. A session that fails a listing is evicted and closed.
func (c *Cache) Browse(ctx context.Context, account *job.Account, path string, directoriesOnly bool) ([]driver.Entry, error) {
	if path == "" {
		path = account.DefaultPath
	}
	d, err := c.drivers.For(account.Protocol)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		s, err := c.GetOrConnect(ctx, account)
		if err != nil {
			return nil, err
		}
		lock := c.accountLock(account.ID)
		lock.Lock()
		if err := s.MarkInUse(); err != nil {
			lock.Unlock()
			if !errors.Is(err, session.ErrClosed) {
				return nil, err
			}
			// Evicted between lookup and use.
			c.evict(account.ID, s)
			if attempt == 0 {
				continue
			}
			return nil, err
		}

		log.Debugf("Listing files in path %s", path)
		entries, err := d.List(s, path, directoriesOnly)
		s.MarkNotInUse()
		lock.Unlock()
		if err != nil {
			log.WithField("account", account.ID).Warnf("Browse failed, dropping session: %v", err)
			c.evict(account.ID, s)
			return nil, err
		}
		log.Debugf("%d files found.", len(entries))
		return entries, nil
	}
}

// evict drops the entry of id only while it still holds s, so a session
// connected concurrently survives.
func (c *Cache) evict(id uint, s *session.Session) {
	c.connecting.Lock()
	defer c.connecting.Unlock()
	item := c.sessions.Get(id, ttlcache.WithDisableTouchOnHit[uint, *session.Session]())
	if item != nil && item.Value() != s {
		return
	}
	c.sessions.Delete(id)
}

func (c *Cache) accountLock(id uint) *sync.Mutex {
	lock, _ := c.listing.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// EvictIdle closes every session unused for longer than the idle limit.
func (c *Cache) EvictIdle() {
	c.sessions.DeleteExpired()
}

// Run calls EvictIdle every interval until ctx is done, then closes every
// cached session.
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case <-ticker.C:
			c.EvictIdle()
		}
	}
}

// Close drops every cached session.
func (c *Cache) Close() {
	c.sessions.DeleteAll()
}

// Len returns the number of cached entries, including idle ones not swept
// yet.
func (c *Cache) Len() int {
	return c.sessions.Len()
}
