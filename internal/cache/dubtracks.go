package cache

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
	"golang.org/x/sync/singleflight"
)

// DubTrackLister is the authoritative dub track source, normally the database.
type DubTrackLister interface {
	ListDubTracks(ctx context.Context, sectionID string) ([]models.DubTrack, error)
}

// CachedDubTracks is a read-through cache in front of a DubTrackLister.
// Concurrent misses for the same section share one backend read.
type CachedDubTracks struct {
	cache   *Cache
	backend DubTrackLister
	ttl     time.Duration
	logger  *logging.Logger
	group   singleflight.Group
}

// NewCachedDubTracks creates a read-through dub track source
func NewCachedDubTracks(cache *Cache, backend DubTrackLister, ttl time.Duration, logger *logging.Logger) *CachedDubTracks {
	return &CachedDubTracks{
		cache:   cache,
		backend: backend,
		ttl:     ttl,
		logger:  logger,
	}
}

// ListDubTracks returns cached tracks, filling the cache from the backend on a miss.
// Redis errors fall through to the backend.
func (c *CachedDubTracks) ListDubTracks(ctx context.Context, sectionID string) ([]models.DubTrack, error) {
	tracks, ok, err := c.cache.GetDubTracks(ctx, sectionID)
	if err != nil {
		c.logger.WithSectionID(sectionID).ErrorWithErr("Dub track cache read failed", err)
	}
	if ok {
		metrics.RecordCacheAccess("dub_tracks", true)
		return tracks, nil
	}
	metrics.RecordCacheAccess("dub_tracks", false)

	v, err, _ := c.group.Do(sectionID, func() (interface{}, error) {
		tracks, err := c.backend.ListDubTracks(ctx, sectionID)
		if err != nil {
			return nil, err
		}
		if err := c.cache.SetDubTracks(ctx, sectionID, tracks, c.ttl); err != nil {
			c.logger.WithSectionID(sectionID).ErrorWithErr("Dub track cache fill failed", err)
		}
		return tracks, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]models.DubTrack), nil
}

// Invalidate drops the cached list so the next read sees the backend.
func (c *CachedDubTracks) Invalidate(ctx context.Context, sectionID string) error {
	return c.cache.DeleteDubTracks(ctx, sectionID)
}
