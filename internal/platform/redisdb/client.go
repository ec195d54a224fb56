package redisdb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/biopath-backend/internal/platform/envutil"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

// NewFromEnv returns nil (no error) when REDIS_ADDR is unset: the cache
// tier is optional and callers treat a nil client as disabled.
func NewFromEnv(log *logger.Logger) (*redis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("redisdb: logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envutil.Int("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisdb: ping: %w", err)
	}

	log.With("client", "RedisDB").Info("Connected to Redis", "addr", addr)
	return client, nil
}
