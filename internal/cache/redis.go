package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crashgame/internal/config"
	"crashgame/internal/game"
)

const (
	balanceKeyPrefix = "crash:balance:"
	historyKey       = "crash:history"
)

// Service is the Redis-backed balance and history store.
type Service interface {
	game.Store
	Health() map[string]string
	Close() error
}

type service struct {
	client          *redis.Client
	historyCapacity int
	log             *zap.Logger
}

var _ Service = (*service)(nil)

// New connects to Redis and fails if it cannot be reached.
func New(ctx context.Context, cfg config.RedisConfig, historyCapacity int, log *zap.Logger) (Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}

	s := newService(client, historyCapacity, log)
	s.log.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return s, nil
}

func newService(client *redis.Client, historyCapacity int, log *zap.Logger) *service {
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		client:          client,
		historyCapacity: historyCapacity,
		log:             log.Named("cache"),
	}
}

func balanceKey(playerID string) string {
	return balanceKeyPrefix + playerID
}

// Balances are stored as decimal strings so no precision is lost.
func (s *service) GetBalance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	val, err := s.client.Get(ctx, balanceKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, game.ErrPlayerNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for %s: %w", playerID, err)
	}
	return balance, nil
}

func (s *service) SetBalance(ctx context.Context, playerID string, balance decimal.Decimal) error {
	if err := s.client.Set(ctx, balanceKey(playerID), balance.StringFixed(2), 0).Err(); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

// AppendHistory pushes a crash point and trims the list to capacity in
// one transaction.
func (s *service) AppendHistory(ctx context.Context, crashPoint float64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, historyKey, strconv.FormatFloat(crashPoint, 'f', 2, 64))
		if s.historyCapacity > 0 {
			pipe.LTrim(ctx, historyKey, int64(-s.historyCapacity), -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *service) LoadHistory(ctx context.Context, limit int) ([]float64, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := s.client.LRange(ctx, historyKey, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return parseHistory(vals, s.log), nil
}

// parseHistory skips entries that are not numbers.
func parseHistory(vals []string, log *zap.Logger) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Warn("skipping corrupt history entry", zap.String("value", v))
			continue
		}
		out = append(out, f)
	}
	return out
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.client.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "Redis is healthy"

	poolStats := s.client.PoolStats()
	stats["hits"] = strconv.FormatUint(uint64(poolStats.Hits), 10)
	stats["misses"] = strconv.FormatUint(uint64(poolStats.Misses), 10)
	stats["timeouts"] = strconv.FormatUint(uint64(poolStats.Timeouts), 10)
	stats["total_conns"] = strconv.FormatUint(uint64(poolStats.TotalConns), 10)
	stats["idle_conns"] = strconv.FormatUint(uint64(poolStats.IdleConns), 10)
	stats["stale_conns"] = strconv.FormatUint(uint64(poolStats.StaleConns), 10)

	return stats
}

func (s *service) Close() error {
	s.log.Info("disconnecting from redis")
	return s.client.Close()
}
