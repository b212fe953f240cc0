package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// Dialect selects placeholder and DDL syntax
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

const eventColumns = `id, anonymous_id, session_id, username, step, status, ts,
	script_version, os_name, os_version, cpu_architecture, memory_gb, metrics`

// fieldColumns maps groupable fields onto their columns
var fieldColumns = map[storage.Field]string{
	storage.FieldSessionID:     "session_id",
	storage.FieldAnonymousID:   "anonymous_id",
	storage.FieldUsername:      "username",
	storage.FieldStep:          "step",
	storage.FieldStatus:        "status",
	storage.FieldOSName:        "os_name",
	storage.FieldScriptVersion: "script_version",
}

// Store implements storage.EventStore on PostgreSQL or SQLite.
// Timestamps are stored as unix microseconds; seq preserves insertion order.
type Store struct {
	conns   *ConnectionManager
	dialect Dialect
}

// NewStore connects according to config.Type ("postgres" or "sqlite") and
// ensures the schema exists
func NewStore(config storage.Config, logger *observability.Logger) (*Store, error) {
	var (
		connConfig ConnectionConfig
		dialect    Dialect
	)

	timeout := config.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	switch config.Type {
	case "postgres":
		connConfig = ConnectionConfig{
			Driver:      DriverPostgres,
			PrimaryURL:  config.PostgresURL,
			ReplicaURLs: ParseReplicaURLs(config.PostgresReplicaURLs),
			MaxConns:    config.PostgresMaxConns,
			MinConns:    config.PostgresMinConns,
			Timeout:     timeout,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
		}
		dialect = DialectPostgres
	case "sqlite":
		connConfig = ConnectionConfig{
			Driver:     DriverSQLite,
			PrimaryURL: config.SQLitePath,
			Timeout:    timeout,
		}
		dialect = DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported sql storage type: %q", config.Type)
	}

	conns, err := NewConnectionManager(connConfig, logger)
	if err != nil {
		return nil, err
	}

	store := NewStoreWithConnections(conns, dialect)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		conns.Close()
		return nil, err
	}

	return store, nil
}

// NewStoreFromDB wraps an open handle. The caller is responsible for the schema.
func NewStoreFromDB(db *sql.DB, dialect Dialect) *Store {
	return NewStoreWithConnections(NewConnectionManagerFromDB(db, nil), dialect)
}

// NewStoreWithConnections builds a store over an existing connection manager
func NewStoreWithConnections(conns *ConnectionManager, dialect Dialect) *Store {
	return &Store{conns: conns, dialect: dialect}
}

// DB returns the primary handle for health checks
func (s *Store) DB() *sql.DB {
	return s.conns.Primary()
}

// Connections returns the underlying connection manager
func (s *Store) Connections() *ConnectionManager {
	return s.conns
}

// EnsureSchema creates the events table and its indexes if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.conns.Primary().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) schema() []string {
	table := `CREATE TABLE IF NOT EXISTS telemetry_events (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		anonymous_id TEXT,
		session_id TEXT,
		username TEXT,
		step TEXT,
		status TEXT,
		ts BIGINT NOT NULL,
		script_version TEXT,
		os_name TEXT,
		os_version TEXT,
		cpu_architecture TEXT,
		memory_gb DOUBLE PRECISION,
		metrics JSONB NOT NULL DEFAULT '{}'
	)`
	if s.dialect == DialectSQLite {
		table = `CREATE TABLE IF NOT EXISTS telemetry_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		anonymous_id TEXT,
		session_id TEXT,
		username TEXT,
		step TEXT,
		status TEXT,
		ts BIGINT NOT NULL,
		script_version TEXT,
		os_name TEXT,
		os_version TEXT,
		cpu_architecture TEXT,
		memory_gb REAL,
		metrics TEXT NOT NULL DEFAULT '{}'
	)`
	}

	return []string{
		table,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_events_session ON telemetry_events (session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_events_ts ON telemetry_events (ts)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_events_step_status ON telemetry_events (step, status)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_events_username ON telemetry_events (username)`,
	}
}

// Insert implements storage.EventWriter
func (s *Store) Insert(ctx context.Context, event *telemetry.Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event cannot be nil")
	}

	id := event.ID
	if id == "" {
		id = uuid.New().String()
	}

	metrics := event.Metrics
	if metrics == nil {
		metrics = map[string]interface{}{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO telemetry_events (%s) VALUES (%s)`,
		eventColumns, s.placeholders(1, 13))

	_, err = s.conns.Primary().ExecContext(ctx, query,
		id,
		nullString(event.AnonymousID),
		nullString(event.SessionID),
		nullString(event.Username),
		nullString(event.Step),
		nullString(event.Status),
		event.Timestamp.UTC().UnixMicro(),
		nullString(event.ScriptVersion),
		nullString(event.OSName),
		nullString(event.OSVersion),
		nullString(event.CPUArchitecture),
		nullFloat(event.MemoryGB),
		string(metricsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	event.ID = id
	return id, nil
}

// Find implements storage.EventReader
func (s *Store) Find(ctx context.Context, query storage.Query) ([]*telemetry.Event, error) {
	where, args := s.whereClause(query.Filter)

	direction := "ASC"
	if query.Sort == storage.SortDescending {
		direction = "DESC"
	}

	stmt := fmt.Sprintf(`SELECT %s FROM telemetry_events%s ORDER BY ts %s, seq ASC`,
		eventColumns, where, direction)
	if query.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", query.Limit)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]*telemetry.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// Count implements storage.EventReader
func (s *Store) Count(ctx context.Context, filter storage.Filter) (int64, error) {
	where, args := s.whereClause(filter)

	var count int64
	err := s.conns.Replica().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM telemetry_events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Aggregate implements storage.EventAggregator. Groups are returned in order
// of first appearance.
func (s *Store) Aggregate(ctx context.Context, filter storage.Filter, fields ...storage.Field) ([]storage.Group, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("aggregate requires at least one field")
	}

	columns := make([]string, len(fields))
	selects := make([]string, len(fields))
	for i, f := range fields {
		col, ok := fieldColumns[f]
		if !ok {
			return nil, fmt.Errorf("invalid aggregate field: %s", f)
		}
		columns[i] = col
		selects[i] = fmt.Sprintf("COALESCE(%s, '')", col)
	}

	where, args := s.whereClause(filter)
	stmt := fmt.Sprintf(`SELECT %s, COUNT(*) FROM telemetry_events%s GROUP BY %s ORDER BY MIN(seq)`,
		strings.Join(selects, ", "), where, strings.Join(columns, ", "))

	rows, err := s.conns.Replica().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer rows.Close()

	groups := make([]storage.Group, 0)
	for rows.Next() {
		keys := make([]string, len(fields))
		dest := make([]interface{}, len(fields)+1)
		for i := range keys {
			dest[i] = &keys[i]
		}
		var count int64
		dest[len(fields)] = &count

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		groups = append(groups, storage.Group{Keys: keys, Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregate rows: %w", err)
	}

	return groups, nil
}

// DeleteAll implements storage.Admin
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.conns.Primary().ExecContext(ctx, "DELETE FROM telemetry_events")
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// HealthCheck implements storage.HealthChecker
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Close closes every connection
func (s *Store) Close() error {
	return s.conns.Close()
}

func (s *Store) placeholder(n int) string {
	if s.dialect == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func (s *Store) placeholders(start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = s.placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

// whereClause renders the filter as " WHERE ..." (or "") plus its arguments
func (s *Store) whereClause(f storage.Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(expr string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(expr, s.placeholder(len(args))))
	}

	if f.SessionID != "" {
		add("session_id = %s", f.SessionID)
	}
	if len(f.SessionIDs) > 0 {
		start := len(args) + 1
		for _, id := range f.SessionIDs {
			args = append(args, id)
		}
		conds = append(conds, fmt.Sprintf("session_id IN (%s)", s.placeholders(start, len(f.SessionIDs))))
	}
	if f.AnonymousID != "" {
		add("anonymous_id = %s", f.AnonymousID)
	}
	if f.Username != "" {
		add("username = %s", f.Username)
	}
	if f.Step != "" {
		add("step = %s", f.Step)
	}
	if f.Status != "" {
		add("status = %s", f.Status)
	}
	if f.Since != nil {
		add("ts >= %s", f.Since.UTC().UnixMicro())
	}
	if f.Until != nil {
		add("ts < %s", f.Until.UTC().UnixMicro())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*telemetry.Event, error) {
	var (
		event       telemetry.Event
		anonymousID sql.NullString
		sessionID   sql.NullString
		username    sql.NullString
		step        sql.NullString
		status      sql.NullString
		ts          int64
		version     sql.NullString
		osName      sql.NullString
		osVersion   sql.NullString
		cpuArch     sql.NullString
		memoryGB    sql.NullFloat64
		metricsJSON []byte
	)

	err := row.Scan(&event.ID, &anonymousID, &sessionID, &username, &step, &status, &ts,
		&version, &osName, &osVersion, &cpuArch, &memoryGB, &metricsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.AnonymousID = stringPtr(anonymousID)
	event.SessionID = stringPtr(sessionID)
	event.Username = stringPtr(username)
	event.Step = stringPtr(step)
	event.Status = stringPtr(status)
	event.Timestamp = time.UnixMicro(ts).UTC()
	event.ScriptVersion = stringPtr(version)
	event.OSName = stringPtr(osName)
	event.OSVersion = stringPtr(osVersion)
	event.CPUArchitecture = stringPtr(cpuArch)
	if memoryGB.Valid {
		v := memoryGB.Float64
		event.MemoryGB = &v
	}

	event.Metrics = map[string]interface{}{}
	if len(metricsJSON) > 0 {
		dec := json.NewDecoder(bytes.NewReader(metricsJSON))
		dec.UseNumber()
		if err := dec.Decode(&event.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	return &event, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
