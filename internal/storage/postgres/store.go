package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cdpHistory/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cdp_events (
	cdp_id      NUMERIC(78, 0) NOT NULL,
	block       BIGINT NOT NULL,
	tx_hash     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	ordinal     INT NOT NULL,
	ilk         TEXT NOT NULL,
	gem         TEXT,
	adapter     TEXT,
	amount      NUMERIC,
	proxy       TEXT,
	recipient   TEXT,
	prev_owner  TEXT,
	new_owner   TEXT,
	block_ts    BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (cdp_id, block, tx_hash, kind, ordinal)
)`

// Store provides Postgres persistence for CDP histories.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the cdp_events table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutHistory upserts the records of one position. Reruns over the same
// history overwrite rows in place.
func (s *Store) PutHistory(ctx context.Context, _ model.Position, records []model.EventRecord) error {
	return s.UpsertEvents(ctx, records)
}

// UpsertEvents inserts or updates event rows.
func (s *Store) UpsertEvents(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	ordinals := Ordinals(records)
	batch := &pgx.Batch{}
	for i, r := range records {
		if r.CdpID == nil {
			return fmt.Errorf("record %d has no cdp id", i)
		}
		var amount *string
		if r.Amount != nil {
			v := r.Amount.String()
			amount = &v
		}
		batch.Queue(`
			INSERT INTO cdp_events (
				cdp_id, block, tx_hash, kind, ordinal, ilk, gem, adapter, amount,
				proxy, recipient, prev_owner, new_owner, block_ts, created_at, updated_at
			) VALUES ($1::text::numeric,$2,$3,$4,$5,$6,$7,$8,$9::text::numeric,$10,$11,$12,$13,$14,now(),now())
			ON CONFLICT (cdp_id, block, tx_hash, kind, ordinal)
			DO UPDATE SET
				ilk = EXCLUDED.ilk,
				gem = EXCLUDED.gem,
				adapter = EXCLUDED.adapter,
				amount = EXCLUDED.amount,
				proxy = EXCLUDED.proxy,
				recipient = EXCLUDED.recipient,
				prev_owner = EXCLUDED.prev_owner,
				new_owner = EXCLUDED.new_owner,
				block_ts = EXCLUDED.block_ts,
				updated_at = now()
		`,
			r.CdpID.String(),
			int64(r.Block),
			r.TxHash.Hex(),
			string(r.Kind),
			ordinals[i],
			r.Ilk,
			nullable(r.Gem),
			nullable(r.Adapter),
			amount,
			nullable(r.Proxy),
			nullable(r.Recipient),
			nullable(r.PrevOwner),
			nullable(r.NewOwner),
			int64(r.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Ordinals numbers records sharing (cdp, block, tx, kind) in slice order, so
// a transaction with two moves of the same kind keeps both rows.
func Ordinals(records []model.EventRecord) []int {
	seen := make(map[string]int, len(records))
	out := make([]int, len(records))
	for i, r := range records {
		key := fmt.Sprintf("%v:%d:%s:%s", r.CdpID, r.Block, r.TxHash.Hex(), r.Kind)
		out[i] = seen[key]
		seen[key]++
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
