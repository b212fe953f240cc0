package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setupSQLiteStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(storage.Config{Type: "sqlite", SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func event(session, step, status string, offset time.Duration) *telemetry.Event {
	e := &telemetry.Event{Timestamp: t0.Add(offset), Metrics: map[string]interface{}{}}
	if session != "" {
		e.SessionID = telemetry.StringPtr(session)
	}
	if step != "" {
		e.Step = telemetry.StringPtr(step)
	}
	if status != "" {
		e.Status = telemetry.StringPtr(status)
	}
	return e
}

func TestStore_InsertQueryShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStoreFromDB(db, DialectPostgres)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO telemetry_events")).
		WithArgs(sqlmock.AnyArg(), nil, "s1", nil, "install", "completed", t0.UnixMicro(),
			nil, nil, nil, nil, nil, `{"foo":"bar"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	e := event("s1", "install", "completed", 0)
	e.Metrics["foo"] = "bar"

	id, err := store.Insert(context.Background(), e)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStoreFromDB(db, DialectPostgres)
	mock.ExpectExec("INSERT INTO telemetry_events").WillReturnError(sql.ErrConnDone)

	_, err = store.Insert(context.Background(), event("s1", "install", "completed", 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "failed to insert event")
}

func TestStore_CountPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStoreFromDB(db, DialectPostgres)
	since := t0

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM telemetry_events WHERE step = $1 AND status = $2 AND ts >= $3")).
		WithArgs("install", "failure", t0.UnixMicro()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := store.Count(context.Background(), storage.Filter{Step: "install", Status: "failure", Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WhereClause(t *testing.T) {
	since, until := t0, t0.Add(time.Hour)
	filter := storage.Filter{
		SessionIDs: []string{"a", "b"},
		Username:   "alice",
		Since:      &since,
		Until:      &until,
	}

	pg := &Store{dialect: DialectPostgres}
	where, args := pg.whereClause(filter)
	assert.Equal(t, " WHERE session_id IN ($1, $2) AND username = $3 AND ts >= $4 AND ts < $5", where)
	assert.Len(t, args, 5)

	lite := &Store{dialect: DialectSQLite}
	where, _ = lite.whereClause(filter)
	assert.Equal(t, " WHERE session_id IN (?, ?) AND username = ? AND ts >= ? AND ts < ?", where)

	where, args = pg.whereClause(storage.Filter{})
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	e := event("s1", "install", "completed", 0)
	e.Username = telemetry.StringPtr("alice")
	e.OSName = telemetry.StringPtr("Ubuntu")
	mem := 16.0
	e.MemoryGB = &mem
	e.Metrics["foo"] = "bar"
	e.Timestamp = t0.Add(123 * time.Microsecond)

	id, err := store.Insert(ctx, e)
	require.NoError(t, err)

	events, err := store.Find(ctx, storage.Query{Filter: storage.Filter{SessionID: "s1"}})
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "alice", *got.Username)
	assert.Equal(t, "Ubuntu", *got.OSName)
	assert.Nil(t, got.OSVersion)
	assert.Nil(t, got.AnonymousID)
	require.NotNil(t, got.MemoryGB)
	assert.Equal(t, 16.0, *got.MemoryGB)
	assert.Equal(t, "bar", got.Metrics["foo"])
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, time.UTC, got.Timestamp.Location())
}

func TestStore_SQLiteMetricsNumbersExact(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	e := event("s1", "install", "completed", 0)
	e.Metrics["big"] = json.Number("12345678901234567890")
	e.Metrics["n"] = json.Number("1")
	e.Metrics["ratio"] = json.Number("0.125")

	_, err := store.Insert(ctx, e)
	require.NoError(t, err)

	events, err := store.Find(ctx, storage.Query{Filter: storage.Filter{SessionID: "s1"}})
	require.NoError(t, err)
	require.Len(t, events, 1)

	metrics := events[0].Metrics
	assert.Equal(t, json.Number("12345678901234567890"), metrics["big"])
	assert.Equal(t, json.Number("1"), metrics["n"])
	assert.Equal(t, json.Number("0.125"), metrics["ratio"])
}

func TestStore_SQLiteOrdering(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	for _, e := range []*telemetry.Event{
		event("s1", "deploy", "success", 5*time.Minute),
		event("s1", "configure", "first", time.Minute),
		event("s1", "configure", "second", time.Minute),
		event("s1", "install", "completed", 0),
	} {
		_, err := store.Insert(ctx, e)
		require.NoError(t, err)
	}

	events, err := store.Find(ctx, storage.Query{Filter: storage.Filter{SessionID: "s1"}})
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "install", events[0].StepName())
	assert.Equal(t, "first", events[1].StatusName())
	assert.Equal(t, "second", events[2].StatusName())
	assert.Equal(t, "deploy", events[3].StepName())

	latest, err := store.Find(ctx, storage.Query{Sort: storage.SortDescending, Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "deploy", latest[0].StepName())
}

func TestStore_SQLiteAggregate(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	for _, e := range []*telemetry.Event{
		event("s1", "install", "completed", 0),
		event("s2", "install", "failure", time.Minute),
		event("s3", "install", "failure", 2*time.Minute),
		event("", "", "", 3*time.Minute),
	} {
		_, err := store.Insert(ctx, e)
		require.NoError(t, err)
	}

	groups, err := store.Aggregate(ctx, storage.Filter{}, storage.FieldStep, storage.FieldStatus)
	require.NoError(t, err)
	assert.Equal(t, []storage.Group{
		{Keys: []string{"install", "completed"}, Count: 1},
		{Keys: []string{"install", "failure"}, Count: 2},
		{Keys: []string{"", ""}, Count: 1},
	}, groups)

	_, err = store.Aggregate(ctx, storage.Filter{}, storage.Field("metrics"))
	assert.Error(t, err)

	n, err := store.Count(ctx, storage.Filter{Step: "install", Status: "failure"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	n, err = store.Count(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_SQLiteHealthCheck(t *testing.T) {
	store := setupSQLiteStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
	assert.NotNil(t, store.DB())
}

func TestNewStore_UnsupportedType(t *testing.T) {
	_, err := NewStore(storage.Config{Type: "memory"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestInterfaceCompliance(t *testing.T) {
	var _ storage.EventStore = (*Store)(nil)
}
