package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/models"
)

const (
	recentScansMax = 20
	recentScansTTL = 24 * time.Hour
)

// Cache keeps a short list of recent scans per event so the operator
// dashboard doesn't hit the database on every poll. It is a read
// accelerator only: the database remains the source of truth.
type Cache struct {
	Client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{Client: client}
}

func key(eventID string) string {
	return "recent_scans:" + eventID
}

// PushRecentScan prepends a check-in to the event's recent-scan list.
func (c *Cache) PushRecentScan(ctx context.Context, eventID string, checkin models.CheckIn) error {
	data, err := json.Marshal(checkin)
	if err != nil {
		return err
	}

	pipe := c.Client.TxPipeline()
	pipe.LPush(ctx, key(eventID), data)
	pipe.LTrim(ctx, key(eventID), 0, recentScansMax-1)
	pipe.Expire(ctx, key(eventID), recentScansTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentScans returns up to limit cached check-ins for an event, newest
// first. An empty result with nil error means a cache miss.
func (c *Cache) RecentScans(ctx context.Context, eventID string, limit int) ([]models.CheckIn, error) {
	if limit > recentScansMax {
		limit = recentScansMax
	}
	values, err := c.Client.LRange(ctx, key(eventID), 0, int64(limit-1)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	checkins := make([]models.CheckIn, 0, len(values))
	for _, v := range values {
		var checkin models.CheckIn
		if err := json.Unmarshal([]byte(v), &checkin); err != nil {
			continue
		}
		checkins = append(checkins, checkin)
	}
	return checkins, nil
}
