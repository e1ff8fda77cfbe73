// Package store is the persistence boundary. The pipeline itself only needs
// two operations: save a verified lead and check whether a URL was already
// persisted by an earlier run.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/dedup"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL implementation of schemas.LeadStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

const sqlInsertLead = `
	INSERT INTO leads (id, config_id, user_id, source_url, normalized_url, company, confidence, verified, extracted, issues, recommendations, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	RETURNING id;
`

// SaveLead persists one verified lead and returns its ID. The full extracted
// record goes into a jsonb column; company and confidence are lifted into
// their own columns for querying.
func (s *Store) SaveLead(ctx context.Context, lead *schemas.VerifiedLead, configID, userID uuid.UUID) (uuid.UUID, error) {
	if lead == nil {
		return uuid.Nil, fmt.Errorf("save lead: nil lead")
	}
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}

	extracted, err := json.Marshal(lead.Extracted)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save lead: marshal extracted fields: %w", err)
	}
	issues, err := json.Marshal(sliceOrEmpty(lead.Issues))
	if err != nil {
		return uuid.Nil, fmt.Errorf("save lead: marshal issues: %w", err)
	}
	recommendations, err := json.Marshal(sliceOrEmpty(lead.Recommendations))
	if err != nil {
		return uuid.Nil, fmt.Errorf("save lead: marshal recommendations: %w", err)
	}

	var company *string
	if lead.Extracted.Company.Known {
		company = &lead.Extracted.Company.Value
	}

	var id uuid.UUID
	err = s.pool.QueryRow(ctx, sqlInsertLead,
		lead.ID, configID, userID, lead.SourceURL, dedup.NormalizeURL(lead.SourceURL),
		company, lead.FinalConfidence, lead.Verified,
		extracted, issues, recommendations,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save lead: insert: %w", err)
	}

	s.log.Debug("Lead persisted.",
		zap.String("lead_id", id.String()),
		zap.Int("confidence", lead.FinalConfidence),
		zap.Bool("verified", lead.Verified))
	return id, nil
}

const sqlExistsByURL = `SELECT EXISTS(SELECT 1 FROM leads WHERE normalized_url = $1 AND user_id = $2);`

// ExistsByURL reports whether a lead with this source URL was already
// persisted for the user. The URL is normalized before the lookup so the
// check lines up with the in-run dedup key regardless of what the caller
// passes.
func (s *Store) ExistsByURL(ctx context.Context, url string, userID uuid.UUID) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, sqlExistsByURL, dedup.NormalizeURL(url), userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists by url: %w", err)
	}
	return exists, nil
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
