package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for mock matching.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func sampleLead() *schemas.VerifiedLead {
	return &schemas.VerifiedLead{
		ID: uuid.New(),
		Extracted: schemas.ExtractedFields{
			Company:           schemas.SomeString("Acme Construction Corp"),
			BudgetRange:       schemas.BudgetOver10M,
			PatternConfidence: 80,
		},
		SourceURL:       "https://news.example.com/acme",
		FinalConfidence: 92,
		Verified:        true,
	}
}

func TestNewStorePingFailure(t *testing.T) {
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestSaveLead(t *testing.T) {
	s, mockPool := newTestStore(t)
	lead := sampleLead()
	configID, userID := uuid.New(), uuid.New()

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlInsertLead)).
		WithArgs(lead.ID, configID, userID, lead.SourceURL, "https://news.example.com/acme",
			&lead.Extracted.Company.Value, 92, true,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(lead.ID))

	id, err := s.SaveLead(context.Background(), lead, configID, userID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, id)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

// A lead saved with a raw URL must be findable by any variant that
// normalizes to the same key, so repeat runs skip already-persisted pages.
func TestSaveLeadStoresNormalizedURL(t *testing.T) {
	s, mockPool := newTestStore(t)
	lead := sampleLead()
	lead.SourceURL = "http://news.example.com/acme?utm_source=newsletter"
	configID, userID := uuid.New(), uuid.New()

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlInsertLead)).
		WithArgs(lead.ID, configID, userID, lead.SourceURL, "https://news.example.com/acme",
			&lead.Extracted.Company.Value, 92, true,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(lead.ID))

	_, err := s.SaveLead(context.Background(), lead, configID, userID)
	require.NoError(t, err)

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlExistsByURL)).
		WithArgs("https://news.example.com/acme", userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.ExistsByURL(context.Background(), "http://news.example.com/acme?utm_source=newsletter", userID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveLeadAssignsMissingID(t *testing.T) {
	s, mockPool := newTestStore(t)
	lead := sampleLead()
	lead.ID = uuid.Nil

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlInsertLead)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	_, err := s.SaveLead(context.Background(), lead, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, lead.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveLeadNil(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.SaveLead(context.Background(), nil, uuid.New(), uuid.New())
	assert.Error(t, err)
}

func TestExistsByURL(t *testing.T) {
	s, mockPool := newTestStore(t)
	userID := uuid.New()

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlExistsByURL)).
		WithArgs("https://x.com/a", userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.ExistsByURL(context.Background(), "https://x.com/a", userID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestExistsByURLQueryError(t *testing.T) {
	s, mockPool := newTestStore(t)
	userID := uuid.New()

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlExistsByURL)).
		WithArgs("https://x.com/a", userID).
		WillReturnError(errors.New("connection reset"))

	_, err := s.ExistsByURL(context.Background(), "https://x.com/a", userID)
	assert.Error(t, err)
}
