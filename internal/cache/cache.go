package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Language Preference Operations

func preferenceKey(viewerID, sectionID string) string {
	return fmt.Sprintf("pref:lang:%s:%s", viewerID, sectionID)
}

// SetLanguagePreference remembers the language a viewer picked for a section
func (c *Cache) SetLanguagePreference(ctx context.Context, viewerID, sectionID, lang string, ttl time.Duration) error {
	if err := c.client.Set(ctx, preferenceKey(viewerID, sectionID), lang, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set language preference: %w", err)
	}
	return nil
}

// GetLanguagePreference returns the remembered language, or "" if none
func (c *Cache) GetLanguagePreference(ctx context.Context, viewerID, sectionID string) (string, error) {
	lang, err := c.client.Get(ctx, preferenceKey(viewerID, sectionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil // Cache miss
		}
		return "", fmt.Errorf("failed to get language preference: %w", err)
	}
	return lang, nil
}

// Dub Track Operations

func dubTracksKey(sectionID string) string {
	return fmt.Sprintf("dubtracks:%s", sectionID)
}

// SetDubTracks caches the ready dub tracks of a section
func (c *Cache) SetDubTracks(ctx context.Context, sectionID string, tracks []models.DubTrack, ttl time.Duration) error {
	if tracks == nil {
		tracks = []models.DubTrack{}
	}
	return c.SetWithJSON(ctx, dubTracksKey(sectionID), tracks, ttl)
}

// GetDubTracks returns the cached dub tracks. ok is false on a cache miss;
// an empty list is a valid cached value.
func (c *Cache) GetDubTracks(ctx context.Context, sectionID string) ([]models.DubTrack, bool, error) {
	data, err := c.client.Get(ctx, dubTracksKey(sectionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get dub tracks from cache: %w", err)
	}

	var tracks []models.DubTrack
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal dub tracks: %w", err)
	}

	return tracks, true, nil
}

// DeleteDubTracks drops the cached dub tracks of a section
func (c *Cache) DeleteDubTracks(ctx context.Context, sectionID string) error {
	return c.client.Del(ctx, dubTracksKey(sectionID)).Err()
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock. Locks are never
// released; they lapse after ttl.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
