package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/safwentrabelsi/staking-aggregator/config"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "store")

type PostgresStore struct {
	db *sql.DB
}

type Storer interface {
	SaveRefresh(ctx context.Context, result *types.RefreshResult) error
	GetChainMetadata(ctx context.Context, chain string) (*types.ChainStakingMetadata, error)
	GetCandidates(ctx context.Context, chain string) ([]types.CandidateInfo, error)
	GetNominatorMetadata(ctx context.Context, chain, address string) (*types.NominatorMetadata, error)
}

// NewPostgresStore creates a new instance of PostgresStore
func NewPostgresStore(cfg *config.DBConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.GetPostgresqlDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	store := &PostgresStore{
		db: db,
	}

	if err := store.init(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// init is called to initialize necessary tables in the database
func (s *PostgresStore) init() error {
	tables := []struct{ name, query string }{
		{"chain_staking_metadata", `
			CREATE TABLE IF NOT EXISTS chain_staking_metadata (
				chain TEXT PRIMARY KEY,
				era BIGINT NOT NULL,
				payload JSONB NOT NULL,
				refreshed_at TIMESTAMPTZ NOT NULL
			);
		`},
		{"candidate_directory", `
			CREATE TABLE IF NOT EXISTS candidate_directory (
				chain TEXT PRIMARY KEY,
				payload JSONB NOT NULL,
				refreshed_at TIMESTAMPTZ NOT NULL
			);
		`},
		{"nominator_metadata", `
			CREATE TABLE IF NOT EXISTS nominator_metadata (
				chain TEXT NOT NULL,
				address TEXT NOT NULL,
				payload JSONB,
				error TEXT NOT NULL DEFAULT '',
				refreshed_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (chain, address)
			);
		`},
	}
	for _, t := range tables {
		if _, err := s.db.Exec(t.query); err != nil {
			return fmt.Errorf("failed to create %s table: %v", t.name, err)
		}
	}
	return nil
}

const (
	upsertChainMetadata = `
        INSERT INTO chain_staking_metadata (chain, era, payload, refreshed_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (chain) DO UPDATE SET era = EXCLUDED.era, payload = EXCLUDED.payload, refreshed_at = EXCLUDED.refreshed_at
    `
	upsertCandidates = `
        INSERT INTO candidate_directory (chain, payload, refreshed_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (chain) DO UPDATE SET payload = EXCLUDED.payload, refreshed_at = EXCLUDED.refreshed_at
    `
	upsertNominator = `
        INSERT INTO nominator_metadata (chain, address, payload, error, refreshed_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (chain, address) DO UPDATE SET payload = EXCLUDED.payload, error = EXCLUDED.error, refreshed_at = EXCLUDED.refreshed_at
    `
)

// SaveRefresh replaces everything stored for the chain of result in one
// transaction. Accounts that failed are stored without payload.
func (s *PostgresStore) SaveRefresh(ctx context.Context, result *types.RefreshResult) error {
	if result == nil || result.Metadata == nil {
		return nil
	}
	refreshedAt := result.RefreshedAt
	if refreshedAt.IsZero() {
		refreshedAt = time.Now().UTC()
	}

	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode chain metadata: %w", err)
	}
	candidates := result.Candidates
	if candidates == nil {
		candidates = []types.CandidateInfo{}
	}
	directory, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertChainMetadata, result.Chain, result.Metadata.Era, string(metadata), refreshedAt); err != nil {
		return fmt.Errorf("failed to save chain metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertCandidates, result.Chain, string(directory), refreshedAt); err != nil {
		return fmt.Errorf("failed to save candidates: %w", err)
	}

	if len(result.Accounts) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertNominator)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, acc := range result.Accounts {
			var payload sql.NullString
			errText := ""
			if acc.Err != nil {
				errText = acc.Err.Error()
			} else if acc.Metadata != nil {
				b, err := json.Marshal(acc.Metadata)
				if err != nil {
					return fmt.Errorf("failed to encode account %s: %w", acc.Address, err)
				}
				payload = sql.NullString{String: string(b), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, result.Chain, acc.Address, payload, errText, refreshedAt); err != nil {
				return fmt.Errorf("failed to save account %s: %w", acc.Address, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.WithField("chain", result.Chain).Debugf("Saved refresh with %d candidates and %d accounts", len(result.Candidates), len(result.Accounts))
	return nil
}

func (s *PostgresStore) GetChainMetadata(ctx context.Context, chain string) (*types.ChainStakingMetadata, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM chain_staking_metadata WHERE chain = $1`, chain).Scan(&payload)
	if err != nil {
		return nil, queryError(err)
	}
	var meta types.ChainStakingMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode chain metadata: %w", err)
	}
	return &meta, nil
}

func (s *PostgresStore) GetCandidates(ctx context.Context, chain string) ([]types.CandidateInfo, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM candidate_directory WHERE chain = $1`, chain).Scan(&payload)
	if err != nil {
		return nil, queryError(err)
	}
	candidates := []types.CandidateInfo{}
	if err := json.Unmarshal(payload, &candidates); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}
	return candidates, nil
}

// GetNominatorMetadata returns ErrMalformedSnapshot when the last refresh
// could not resolve the account.
func (s *PostgresStore) GetNominatorMetadata(ctx context.Context, chain, address string) (*types.NominatorMetadata, error) {
	var (
		payload []byte
		errText string
	)
	err := s.db.QueryRowContext(ctx, `SELECT payload, error FROM nominator_metadata WHERE chain = $1 AND address = $2`, chain, address).Scan(&payload, &errText)
	if err != nil {
		return nil, queryError(err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrMalformedSnapshot, errText)
	}
	var meta types.NominatorMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", address, err)
	}
	return &meta, nil
}

func queryError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	return fmt.Errorf("failed to query database: %w", err)
}
