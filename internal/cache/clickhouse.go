package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/classify"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// ClickHouseStore is the durable AggregateStore. Rows live in
// ReplacingMergeTree tables versioned by updated_at, so re-inserting the
// merged row for a key is an idempotent upsert and duplicate raw events
// collapse to a single row.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

// ClickHouseConfig holds connection settings for the aggregate store
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

func NewClickHouseStore(cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	store := &ClickHouseStore{conn: conn, logger: cfg.Logger}
	if err := store.createTables(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	cfg.Logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")
	return store, nil
}

func (c *ClickHouseStore) createTables(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			address          String,
			swap_count       UInt64,
			volume           Float64,
			fees             Float64,
			total_positions  UInt64,
			active_positions UInt64,
			pool_count       UInt64,
			first_action_at  DateTime,
			last_action_at   DateTime,
			updated_at       DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY address`,

		`CREATE TABLE IF NOT EXISTS positions (
			token_id   String,
			owner      String,
			pool       String,
			liquidity  String,
			tick_lower Int32,
			tick_upper Int32,
			active     UInt8,
			subscribed UInt8,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY token_id`,

		`CREATE TABLE IF NOT EXISTS position_events (
			tx_hash   String,
			action    String,
			from_addr String,
			to_addr   String,
			token_id  String,
			height    UInt64,
			timestamp DateTime
		) ENGINE = ReplacingMergeTree()
		ORDER BY tx_hash`,

		`CREATE TABLE IF NOT EXISTS wallet_timeline (
			wallet    String,
			action    String,
			pool      String,
			tx_hash   String,
			height    UInt64,
			timestamp DateTime
		) ENGINE = ReplacingMergeTree()
		ORDER BY (wallet, tx_hash, action)`,

		`CREATE TABLE IF NOT EXISTS indexer_cursor (
			id         UInt8,
			height     UInt64,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id`,
	}

	for _, stmt := range ddl {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWallet merges the mutation into the stored row and writes a new
// version. Pipeline writes are serialized per range, so read-modify-write
// is safe here; the merge rules match storage.MemoryStore.
func (c *ClickHouseStore) UpsertWallet(ctx context.Context, mut *models.WalletMutation) error {
	addr := classify.NormalizeAddress(mut.Address)

	w, err := c.GetWallet(ctx, addr)
	if err != nil {
		return err
	}
	if w == nil {
		w = &models.Wallet{Address: addr}
	}

	w.TotalPositions = applyDelta(w.TotalPositions, mut.TotalDelta)
	w.ActivePositions = applyDelta(w.ActivePositions, mut.ActiveDelta)

	if mut.SwapCount != nil {
		w.SwapCount = *mut.SwapCount
	}
	if mut.Volume != nil {
		w.Volume = *mut.Volume
	}
	if mut.Fees != nil {
		w.Fees = *mut.Fees
	}
	if mut.PoolCount != nil {
		w.PoolCount = *mut.PoolCount
	}

	if !mut.SeenAt.IsZero() {
		if w.FirstActionAt.IsZero() || mut.SeenAt.Before(w.FirstActionAt) {
			w.FirstActionAt = mut.SeenAt
		}
		if mut.SeenAt.After(w.LastActionAt) {
			w.LastActionAt = mut.SeenAt
		}
	}

	query := `
		INSERT INTO wallets (
			address, swap_count, volume, fees, total_positions,
			active_positions, pool_count, first_action_at, last_action_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = c.conn.Exec(ctx, query,
		w.Address, w.SwapCount, w.Volume, w.Fees, w.TotalPositions,
		w.ActivePositions, w.PoolCount, w.FirstActionAt, w.LastActionAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return nil
}

// UpsertPosition merges the mutation into the stored row keyed by token id.
func (c *ClickHouseStore) UpsertPosition(ctx context.Context, mut *models.PositionMutation) error {
	p, err := c.GetPosition(ctx, mut.TokenID)
	if err != nil {
		return err
	}
	if p == nil {
		p = &models.Position{TokenID: mut.TokenID}
	}

	if mut.Owner != nil {
		p.Owner = classify.NormalizeAddress(*mut.Owner)
	}
	if mut.Pool != nil {
		p.Pool = *mut.Pool
	}
	if mut.Liquidity != nil {
		p.Liquidity = *mut.Liquidity
	}
	if mut.TickLower != nil {
		p.TickLower = *mut.TickLower
	}
	if mut.TickUpper != nil {
		p.TickUpper = *mut.TickUpper
	}
	if mut.Active != nil {
		p.Active = *mut.Active
	}
	if mut.Subscribed != nil {
		p.Subscribed = *mut.Subscribed
	}

	query := `
		INSERT INTO positions (
			token_id, owner, pool, liquidity, tick_lower, tick_upper,
			active, subscribed, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = c.conn.Exec(ctx, query,
		p.TokenID, p.Owner, p.Pool, p.Liquidity, p.TickLower, p.TickUpper,
		boolToUInt8(p.Active), boolToUInt8(p.Subscribed), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) InsertRawEvent(ctx context.Context, ev *models.RawEvent) (bool, error) {
	seen, err := c.HasRawEvent(ctx, ev.TxHash)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	query := `
		INSERT INTO position_events (
			tx_hash, action, from_addr, to_addr, token_id, height, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err = c.conn.Exec(ctx, query,
		ev.TxHash, string(ev.Action), ev.From, ev.To, ev.TokenID, ev.Height, ev.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	return true, nil
}

func (c *ClickHouseStore) InsertTimelineEntry(ctx context.Context, entry *models.TimelineEntry) error {
	query := `
		INSERT INTO wallet_timeline (
			wallet, action, pool, tx_hash, height, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	err := c.conn.Exec(ctx, query,
		classify.NormalizeAddress(entry.Wallet), string(entry.Action),
		entry.Pool, entry.TxHash, entry.Height, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert timeline entry: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) HasRawEvent(ctx context.Context, txHash string) (bool, error) {
	var count uint64
	row := c.conn.QueryRow(ctx, `SELECT count() FROM position_events WHERE tx_hash = ?`, txHash)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return count > 0, nil
}

func (c *ClickHouseStore) GetWallet(ctx context.Context, address string) (*models.Wallet, error) {
	query := `
		SELECT address, swap_count, volume, fees, total_positions,
		       active_positions, pool_count, first_action_at, last_action_at
		FROM wallets FINAL
		WHERE address = ?
	`
	var w models.Wallet
	row := c.conn.QueryRow(ctx, query, classify.NormalizeAddress(address))
	err := row.Scan(
		&w.Address, &w.SwapCount, &w.Volume, &w.Fees, &w.TotalPositions,
		&w.ActivePositions, &w.PoolCount, &w.FirstActionAt, &w.LastActionAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (c *ClickHouseStore) GetPosition(ctx context.Context, tokenID string) (*models.Position, error) {
	query := `
		SELECT token_id, owner, pool, liquidity, tick_lower, tick_upper,
		       active, subscribed, updated_at
		FROM positions FINAL
		WHERE token_id = ?
	`
	var (
		p                  models.Position
		active, subscribed uint8
	)
	row := c.conn.QueryRow(ctx, query, tokenID)
	err := row.Scan(
		&p.TokenID, &p.Owner, &p.Pool, &p.Liquidity, &p.TickLower, &p.TickUpper,
		&active, &subscribed, &p.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	p.Active = active != 0
	p.Subscribed = subscribed != 0
	return &p, nil
}

func (c *ClickHouseStore) GetTimeline(ctx context.Context, address string, limit int) ([]*models.TimelineEntry, error) {
	query := `
		SELECT wallet, action, pool, tx_hash, height, timestamp
		FROM wallet_timeline FINAL
		WHERE wallet = ?
		ORDER BY height DESC, timestamp DESC
		LIMIT ?
	`
	rows, err := c.conn.Query(ctx, query, classify.NormalizeAddress(address), uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var out []*models.TimelineEntry
	for rows.Next() {
		var (
			e      models.TimelineEntry
			action string
		)
		if err := rows.Scan(&e.Wallet, &action, &e.Pool, &e.TxHash, &e.Height, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		e.Action = models.ActionKind(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (c *ClickHouseStore) LoadCursor(ctx context.Context) (uint64, bool, error) {
	var height uint64
	row := c.conn.QueryRow(ctx, `SELECT height FROM indexer_cursor FINAL WHERE id = 1`)
	if err := row.Scan(&height); err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to load cursor: %w", err)
	}
	return height, true, nil
}

func (c *ClickHouseStore) SaveCursor(ctx context.Context, height uint64) error {
	err := c.conn.Exec(ctx,
		`INSERT INTO indexer_cursor (id, height, updated_at) VALUES (1, ?, ?)`,
		height, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}

func applyDelta(v uint64, delta int64) uint64 {
	if delta >= 0 {
		return v + uint64(delta)
	}
	dec := uint64(-delta)
	if dec >= v {
		return 0
	}
	return v - dec
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, io.EOF)
}
