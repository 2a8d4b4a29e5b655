package realtime

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TimestampStore 记录每个限流键最近一次调用的时间
type TimestampStore interface {
	// Last 返回最近一次记录，不存在时 ok 为 false
	Last(ctx context.Context, key string) (t time.Time, ok bool, err error)
	// Record 记录一次调用
	Record(ctx context.Context, key string, t time.Time) error
}

// MemoryStore 进程内存储
type MemoryStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]time.Time)}
}

// Last 实现 TimestampStore
func (s *MemoryStore) Last(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[key]
	return t, ok, nil
}

// Record 实现 TimestampStore
func (s *MemoryStore) Record(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	s.last[key] = t
	s.mu.Unlock()
	return nil
}

// RedisMode Redis 部署模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// RedisConfig 多进程共享限流时使用的 Redis 配置
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`  // 单机地址
	Addrs      []string      `mapstructure:"addrs"` // 集群/哨兵地址
	Mode       RedisMode     `mapstructure:"mode"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	MasterName string        `mapstructure:"master_name"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	TTL        time.Duration `mapstructure:"ttl"` // 时间戳保留时长，需大于限流间隔
}

// Validate 校验 Redis 配置
func (c *RedisConfig) Validate() error {
	switch c.Mode {
	case RedisStandalone, "":
		if c.Addr == "" {
			return fmt.Errorf("realtime: redis addr is required")
		}
	case RedisCluster:
		if len(c.Addrs) == 0 {
			return fmt.Errorf("realtime: redis cluster mode requires addrs")
		}
	case RedisSentinel:
		if len(c.Addrs) == 0 || c.MasterName == "" {
			return fmt.Errorf("realtime: redis sentinel mode requires addrs and master_name")
		}
	default:
		return fmt.Errorf("realtime: unsupported redis mode: %s", c.Mode)
	}
	return nil
}

// RedisStore 基于 Redis 的存储，多个进程共享同一限流窗口
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore 使用已有客户端创建存储
func NewRedisStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "tablesplit:realtime:rate:"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// OpenRedisStore 按配置建立连接并创建存储
func OpenRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch cfg.Mode {
	case RedisCluster:
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	case RedisSentinel:
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
		})
	default:
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realtime: redis ping: %w", err)
	}

	return NewRedisStore(client, cfg.KeyPrefix, cfg.TTL), nil
}

// Last 实现 TimestampStore
func (s *RedisStore) Last(ctx context.Context, key string) (time.Time, bool, error) {
	v, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("realtime: corrupt rate limit entry %q: %w", key, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Record 实现 TimestampStore
func (s *RedisStore) Record(ctx context.Context, key string, t time.Time) error {
	return s.client.Set(ctx, s.keyPrefix+key, t.UnixMilli(), s.ttl).Err()
}

// Close 关闭底层连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
