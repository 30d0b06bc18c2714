package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dumpKeyPrefix  = "deckexport:dump:"
	defaultDumpTTL = 24 * time.Hour
)

// DumpKey returns the key a session's diagnostic dump is stored under
func DumpKey(sessionID string) string {
	return dumpKeyPrefix + sessionID
}

// StoreDump stores an encoded diagnostic dump; zero ttl uses the default
func (c *Client) StoreDump(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = defaultDumpTTL
	}
	return c.rdb.Set(ctx, DumpKey(sessionID), data, ttl).Err()
}

// GetDump returns nil without error when no dump exists
func (c *Client) GetDump(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, DumpKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) DeleteDump(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, DumpKey(sessionID)).Err()
}
