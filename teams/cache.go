// Package teams caches the Chatwoot team directory by lower-cased name.
package teams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 24 * time.Hour

type Lister interface {
	ListTeams(ctx context.Context) ([]chatwoot.Team, error)
}

type snapshot struct {
	byName      map[string]int
	refreshedAt time.Time
}

// Cache resolves team names to ids. Reads use the last published snapshot;
// refreshes are single-flight so concurrent callers share one ListTeams call.
type Cache struct {
	lister Lister
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	current atomic.Pointer[snapshot]
	flight  singleflight.Group

	cronMu sync.Mutex
	cron   *cron.Cron
}

func New(lister Lister, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lister: lister,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "team_cache"),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (c *Cache) stale(s *snapshot) bool {
	return s == nil || c.now().Sub(s.refreshedAt) > c.ttl
}

// Resolve returns the id of the named team, refreshing first when the cache
// is empty or older than the TTL. Only the caller whose refresh failed gets
// the error; callers that joined it read the previous snapshot.
func (c *Cache) Resolve(ctx context.Context, name string) (int, bool, error) {
	snap := c.current.Load()
	if c.stale(snap) {
		leader, err := c.refresh(ctx, false)
		if err != nil && leader {
			return 0, false, err
		}
		snap = c.current.Load()
	}
	if snap == nil {
		return 0, false, nil
	}
	id, ok := snap.byName[normalize(name)]
	return id, ok, nil
}

// ForceRefresh reloads the team list regardless of age and returns the number of teams.
func (c *Cache) ForceRefresh(ctx context.Context) (int, error) {
	if _, err := c.refresh(ctx, true); err != nil {
		return 0, err
	}
	return len(c.Names()), nil
}

// Names returns the cached team names, sorted.
func (c *Cache) Names() []string {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	names := make([]string, 0, len(snap.byName))
	for name := range snap.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RefreshedAt is the zero time until the first successful refresh.
func (c *Cache) RefreshedAt() time.Time {
	if snap := c.current.Load(); snap != nil {
		return snap.refreshedAt
	}
	return time.Time{}
}

func (c *Cache) refresh(ctx context.Context, force bool) (leader bool, err error) {
	// Forced refreshes get their own flight so they never settle for a
	// concurrent age-checked refresh that may skip the reload.
	key := "teams"
	if force {
		key = "teams:force"
	}
	_, err, _ = c.flight.Do(key, func() (any, error) {
		leader = true
		if !force && !c.stale(c.current.Load()) {
			return nil, nil
		}
		teams, err := c.lister.ListTeams(ctx)
		if err != nil {
			c.logger.Warn("team refresh failed, keeping previous cache", "error", err)
			return nil, fmt.Errorf("refresh teams: %w", err)
		}
		byName := make(map[string]int, len(teams))
		for _, t := range teams {
			if key := normalize(t.Name); key != "" {
				byName[key] = t.ID
			}
		}
		c.current.Store(&snapshot{byName: byName, refreshedAt: c.now()})
		c.logger.Info("team cache refreshed", "teams", len(byName))
		return nil, nil
	})
	return leader, err
}

// Start refreshes the cache in the background on a cron schedule such as "@every 6h".
func (c *Cache) Start(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron != nil {
		return errors.New("team cache refresh already scheduled")
	}

	cr := cron.New()
	_, err := cr.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := c.ForceRefresh(ctx); err != nil {
			c.logger.Warn("scheduled team refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("team refresh schedule %q: %w", spec, err)
	}
	cr.Start()
	c.cron = cr
	return nil
}

func (c *Cache) Stop() {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron != nil {
		<-c.cron.Stop().Done()
		c.cron = nil
	}
}
