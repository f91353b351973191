package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Service is the shared redis connection behind the session store.
type Service interface {
	GetClient() *redis.Client
	Health() map[string]string
	Close() error
}

type service struct {
	client *redis.Client
}

const (
	PING_TIMEOUT   = 5 * time.Second
	HEALTH_TIMEOUT = time.Second
	// upper bound on keys walked when counting saved sessions for /health
	HEALTH_SCAN_LIMIT = 1000
)

var (
	REDIS_URL      = getEnv("REDIS_URL", "localhost:6379")
	REDIS_PASSWORD = getEnv("REDIS_PASSWORD", "")
	REDIS_DB       = getEnvAsInt("REDIS_DB", 0)
	cacheInstance  *service
)

// redisOptions accepts either a redis:// URL or a bare host:port. An explicit password
// or db overrides what the URL carries.
func redisOptions(addr, password string, db int) (*redis.Options, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse REDIS_URL %q", addr)
		}
		opts = parsed
	}
	if password != "" {
		opts.Password = password
	}
	if db != 0 {
		opts.DB = db
	}

	opts.PoolSize = 4
	opts.MaxRetries = 3
	opts.DialTimeout = PING_TIMEOUT
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return opts, nil
}

// New connects to Redis. It returns nil when Redis is unreachable so the game can run
// without session resume.
func New() Service {
	if cacheInstance != nil {
		return cacheInstance
	}

	opts, err := redisOptions(REDIS_URL, REDIS_PASSWORD, REDIS_DB)
	if err != nil {
		log.Printf("[CACHE] %v", err)
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), PING_TIMEOUT)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[CACHE] Redis at %s unreachable, session resume disabled: %v", opts.Addr, err)
		client.Close()
		return nil
	}

	log.Printf("[CACHE] Connected to %s db=%d", opts.Addr, opts.DB)
	cacheInstance = &service{client: client}
	return cacheInstance
}

func (s *service) GetClient() *redis.Client {
	return s.client
}

// Health pings redis and reports how many saved sessions it holds.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), HEALTH_TIMEOUT)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return map[string]string{
			"status": "down",
			"error":  fmt.Sprintf("redis down: %v", err),
		}
	}

	stats := map[string]string{
		"status":  "up",
		"message": "Redis is healthy",
	}

	sessions, err := countSessions(ctx, s.client)
	if err != nil {
		stats["sessions_error"] = err.Error()
	} else {
		stats["saved_sessions"] = strconv.Itoa(sessions)
	}

	pool := s.client.PoolStats()
	stats["total_conns"] = strconv.FormatUint(uint64(pool.TotalConns), 10)
	stats["idle_conns"] = strconv.FormatUint(uint64(pool.IdleConns), 10)
	return stats
}

func countSessions(ctx context.Context, client redis.Cmdable) (int, error) {
	n := 0
	iter := client.Scan(ctx, 0, SESSION_KEY_PREFIX+"*", 100).Iterator()
	for iter.Next(ctx) && n < HEALTH_SCAN_LIMIT {
		n++
	}
	return n, errors.Wrap(iter.Err(), "scan sessions")
}

func (s *service) Close() error {
	log.Println("[CACHE] Disconnecting from Redis")
	cacheInstance = nil
	return s.client.Close()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
