package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementIfBelow - 읽기/비교/증가를 서버에서 한 번에 수행
var incrementIfBelow = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return {current, 0}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {current, 1}
`)

// ValkeyConfig - Valkey/Redis 접속 정보
type ValkeyConfig struct {
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ValkeyStore - 여러 인스턴스가 공유하는 카운터 저장소
type ValkeyStore struct {
	client redis.UniversalClient
}

func NewValkeyStore(ctx context.Context, cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}
	return &ValkeyStore{client: client}, nil
}

// NewValkeyStoreFromClient - 이미 생성된 클라이언트 사용
func NewValkeyStoreFromClient(client redis.UniversalClient) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) IncrementIfBelow(ctx context.Context, key string, max int, ttl time.Duration) (int, bool, error) {
	vals, err := incrementIfBelow.Run(ctx, s.client, []string{key}, max, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply: %v", vals)
	}
	return int(vals[0]), vals[1] == 1, nil
}

func (s *ValkeyStore) Close() error {
	return s.client.Close()
}
