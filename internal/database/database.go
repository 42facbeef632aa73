package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"crashgame/internal/config"
	"crashgame/internal/game"
)

// Service archives settled rounds in Postgres.
type Service interface {
	game.RoundRecorder
	RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error)
	Health() map[string]string
	Close()
}

// RoundRecord is an archived round with its bet totals.
type RoundRecord struct {
	RoundNumber uint64    `json:"round_id"`
	CrashPoint  float64   `json:"crash_point"`
	ServerSeed  string    `json:"server_seed"`
	ClientSeed  string    `json:"client_seed"`
	Nonce       int       `json:"nonce"`
	Commitment  string    `json:"commitment"`
	StartedAt   time.Time `json:"started_at"`
	CrashedAt   time.Time `json:"crashed_at"`
	Bets        int64     `json:"bets"`
	Staked      float64   `json:"staked"`
	PaidOut     float64   `json:"paid_out"`
}

type service struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (Service, error) {
	if log == nil {
		log = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	log = log.Named("database")
	log.Info("database connected", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return &service{pool: pool, log: log}, nil
}

const insertRound = `
INSERT INTO rounds (round_number, crash_point, server_seed, client_seed, nonce, commitment, started_at, crashed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

const insertBet = `
INSERT INTO bets (round_id, bet_id, player_id, stake, cashout_multiplier, payout, placed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// RecordRound writes a round and all of its bets in one transaction.
func (s *service) RecordRound(ctx context.Context, result game.RoundResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, insertRound,
		int64(result.RoundID),
		result.CrashPoint,
		result.Seed.ServerSeed,
		result.Seed.ClientSeed,
		result.Seed.Nonce,
		result.Commitment,
		result.StartedAt,
		result.CrashedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert round %d: %w", result.RoundID, err)
	}

	if len(result.Bets) > 0 {
		batch := &pgx.Batch{}
		for _, b := range result.Bets {
			var multiplier *float64
			if b.CashoutMultiplier > 0 {
				m := b.CashoutMultiplier
				multiplier = &m
			}
			batch.Queue(insertBet, id, b.BetID, b.PlayerID, b.Stake.String(), multiplier, b.Payout.String(), b.PlacedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert bets for round %d: %w", result.RoundID, err)
		}
	}

	return tx.Commit(ctx)
}

const recentRounds = `
SELECT r.round_number, r.crash_point::float8, r.server_seed, r.client_seed, r.nonce, r.commitment,
       r.started_at, r.crashed_at,
       COUNT(b.id), COALESCE(SUM(b.stake), 0)::float8, COALESCE(SUM(b.payout), 0)::float8
FROM rounds r
LEFT JOIN bets b ON b.round_id = r.id
GROUP BY r.id
ORDER BY r.id DESC
LIMIT $1`

// RecentRounds returns the newest archived rounds first.
func (s *service) RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error) {
	rows, err := s.pool.Query(ctx, recentRounds, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var (
			r      RoundRecord
			number int64
		)
		if err := rows.Scan(&number, &r.CrashPoint, &r.ServerSeed, &r.ClientSeed, &r.Nonce, &r.Commitment,
			&r.StartedAt, &r.CrashedAt, &r.Bets, &r.Staked, &r.PaidOut); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.RoundNumber = uint64(number)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		s.log.Warn("database health check failed", zap.Error(err))
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	st := s.pool.Stat()
	stats["total_conns"] = strconv.Itoa(int(st.TotalConns()))
	stats["acquired_conns"] = strconv.Itoa(int(st.AcquiredConns()))
	stats["idle_conns"] = strconv.Itoa(int(st.IdleConns()))
	stats["acquire_count"] = strconv.FormatInt(st.AcquireCount(), 10)
	stats["acquire_duration"] = st.AcquireDuration().String()
	stats["empty_acquire_count"] = strconv.FormatInt(st.EmptyAcquireCount(), 10)

	if st.TotalConns() >= st.MaxConns() {
		stats["message"] = "The database is experiencing heavy load."
	}

	return stats
}

func (s *service) Close() {
	s.log.Info("disconnecting from database")
	s.pool.Close()
}
