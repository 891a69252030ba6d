package sqlitestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lucasjlepore/fitview/options"
	"github.com/lucasjlepore/fitview/settings"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetCategory(ctx, settings.Category)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpdateCategory(ctx, settings.Category, map[string]any{options.IncludeUnknownData: true}))
	require.NoError(t, s.UpdateCategory(ctx, settings.Category, map[string]any{options.MergeHeartRates: false}))

	got, err = s.GetCategory(ctx, settings.Category)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{options.MergeHeartRates: false}, got)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestStoreAsGatewayPrimary(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	g := settings.NewGateway(settings.NewMemoryStore(), nil)
	g.SetPrimary(s)

	res := g.Update(ctx, map[string]any{options.ConvertTypesToStrings: false})
	require.True(t, res.Success)
	assert.Equal(t, settings.TierPrimary, res.Tier)

	resolved := g.Resolve(ctx)
	assert.Equal(t, settings.TierPrimary, resolved.Tier)
	assert.False(t, resolved.Options[options.ConvertTypesToStrings])

	g.Reset(ctx)
	assert.Equal(t, settings.TierDefaults, g.Resolve(ctx).Tier)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS settings_categories")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := New(db, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mock
}

func TestGetCategoryQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT payload FROM settings_categories").
		WithArgs(settings.Category).
		WillReturnError(errors.New("database is locked"))

	_, err := s.GetCategory(context.Background(), settings.Category)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCategoryCorruptPayload(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT payload FROM settings_categories").
		WithArgs(settings.Category).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("{not json"))

	_, err := s.GetCategory(context.Background(), settings.Category)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCategoryWritesTimestamp(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO settings_categories").
		WithArgs(settings.Category, `{"merge_heart_rates":false}`, "2026-01-02T03:04:05Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.UpdateCategory(context.Background(), settings.Category, map[string]any{options.MergeHeartRates: false})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayFallsBackWhenDatabaseFails(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO settings_categories").
		WillReturnError(sql.ErrConnDone)

	local := settings.NewMemoryStore()
	g := settings.NewGateway(local, nil)
	g.SetPrimary(s)

	res := g.Update(ctx, map[string]any{options.IncludeUnknownData: true})
	require.True(t, res.Success)
	assert.Equal(t, settings.TierFallback, res.Tier)
	assert.ErrorIs(t, res.PrimaryErr, sql.ErrConnDone)

	stored, err := local.Get(settings.LocalKey, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{options.IncludeUnknownData: true}, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}
