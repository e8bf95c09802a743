package member

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "refahi/pkg/domain"
)

const profileKeyPrefix = "member:profile:"

// CachedDirectory is a Redis read-through cache in front of another
// Directory. Cache failures degrade to the inner lookup; a broken cache
// never blocks eligibility checks.
type CachedDirectory struct {
	inner  Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(inner Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) Profile(ctx context.Context, memberID id.MemberID) (*Profile, error) {
	key := profileKeyPrefix + memberID.String()

	data, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Profile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		d.logger.Warn("corrupt cached profile, falling through", "member", memberID.String())
	case !errors.Is(err, redis.Nil):
		d.logger.Warn("profile cache read failed, falling through", "member", memberID.String(), "error", err)
	}

	p, err := d.inner.Profile(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(p); err == nil {
		if err := d.client.Set(ctx, key, encoded, d.ttl).Err(); err != nil {
			d.logger.Warn("profile cache write failed", "member", memberID.String(), "error", err)
		}
	}
	return p, nil
}

// Invalidate drops a cached profile after a registry update.
func (d *CachedDirectory) Invalidate(ctx context.Context, memberID id.MemberID) error {
	return d.client.Del(ctx, profileKeyPrefix+memberID.String()).Err()
}
