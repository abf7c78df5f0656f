package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newthinker/marketlens/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id           TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	action       TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	price        DOUBLE PRECISION NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	strategy     TEXT NOT NULL DEFAULT '',
	metadata     JSONB,
	generated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS signals_symbol_generated_at ON signals (symbol, generated_at DESC);
`

const selectColumns = `id, symbol, action, confidence, price, reason, strategy, metadata, generated_at`

// PostgresStore keeps signals in a Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("parse dsn: %w", err))
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return p, nil
}

// NewPostgresStore creates the signals table if needed.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate signals: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Save(ctx context.Context, signal core.Signal) (string, error) {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}
	var meta []byte
	if len(signal.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(signal.Metadata); err != nil {
			return "", fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO signals (`+selectColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO NOTHING`,
		signal.ID, signal.Symbol, string(signal.Action), signal.Confidence, signal.Price,
		signal.Reason, signal.Strategy, meta, signal.GeneratedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert signal: %w", err)
	}
	return signal.ID, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*core.Signal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM signals WHERE id = $1`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("signal %s", id))
	}
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]core.Signal, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + selectColumns + ` FROM signals` + where + ` ORDER BY generated_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	out := []core.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := buildWhere(filter)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signals`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE generated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune signals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// buildWhere renders the filter as a WHERE clause with positional args.
func buildWhere(filter ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}
	if filter.Symbol != "" {
		add("symbol = $%d", filter.Symbol)
	}
	if filter.Strategy != "" {
		add("strategy = $%d", filter.Strategy)
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if filter.MinConfidence > 0 {
		add("confidence >= $%d", filter.MinConfidence)
	}
	if !filter.From.IsZero() {
		add("generated_at >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("generated_at <= $%d", filter.To.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanSignal(row pgx.Row) (core.Signal, error) {
	var (
		sig    core.Signal
		action string
		meta   []byte
	)
	err := row.Scan(&sig.ID, &sig.Symbol, &action, &sig.Confidence, &sig.Price,
		&sig.Reason, &sig.Strategy, &meta, &sig.GeneratedAt)
	if err != nil {
		return core.Signal{}, err
	}
	sig.Action = core.Action(action)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &sig.Metadata); err != nil {
			return core.Signal{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return sig, nil
}
