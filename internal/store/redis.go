// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/extension"
)

// DefaultRedisKey is the hash holding install records.
const DefaultRedisKey = "extmgr:installed"

// OpenRedis parses a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code(CodeStoreFailed).With("operation", "parse redis url").Wrap(err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code(CodeStoreFailed).With("operation", "connect redis").Wrap(err)
	}
	return client, nil
}

// Redis implements InstallStore as one Redis hash keyed by extension id.
type Redis struct {
	client redis.UniversalClient
	key    string
}

// NewRedis creates a Redis install store. An empty key selects DefaultRedisKey.
func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

// Get implements InstallStore.
func (r *Redis) Get(ctx context.Context, id string) (*extension.Installable, error) {
	data, err := r.client.HGet(ctx, r.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, oops.Code(CodeStoreFailed).With("operation", "get install record").With("extension", id).Wrap(err)
	}
	return decode(id, data)
}

// Upsert implements InstallStore.
func (r *Redis) Upsert(ctx context.Context, ext *extension.Installable) error {
	data, err := encode(ext)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key, ext.ID, data).Err(); err != nil {
		return oops.Code(CodeStoreFailed).With("operation", "upsert install record").With("extension", ext.ID).Wrap(err)
	}
	return nil
}

// Delete implements InstallStore.
func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.key, id).Err(); err != nil {
		return oops.Code(CodeStoreFailed).With("operation", "delete install record").With("extension", id).Wrap(err)
	}
	return nil
}

// List implements InstallStore. Records are ordered by id.
func (r *Redis) List(ctx context.Context) ([]*extension.Installable, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, oops.Code(CodeStoreFailed).With("operation", "list install records").Wrap(err)
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*extension.Installable, 0, len(ids))
	for _, id := range ids {
		ext, err := decode(id, []byte(all[id]))
		if err != nil {
			return nil, err
		}
		out = append(out, ext)
	}
	return out, nil
}
