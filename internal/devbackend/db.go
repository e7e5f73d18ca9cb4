package devbackend

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"valter-dash/internal/model"
)

// ErrActionNotFound is returned when resolving an id that is unknown or no
// longer pending.
var ErrActionNotFound = errors.New("action not found or already resolved")

// DB holds everything the fixture backend serves: cloud rows, scanned island
// rows, and pending actions. Rows are stored as JSON documents.
type DB struct {
	sql *sql.DB
}

// OpenDB opens (and migrates) the sqlite database at path. An empty path or
// ":memory:" keeps everything in memory.
func OpenDB(ctx context.Context, path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		path = ":memory:"
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database is per connection.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cloud_rows (
			cloud TEXT NOT NULL,
			id TEXT NOT NULL,
			json TEXT NOT NULL,
			PRIMARY KEY (cloud, id)
		);`,
		`CREATE TABLE IF NOT EXISTS island_rows (
			island TEXT NOT NULL,
			name TEXT NOT NULL,
			id TEXT NOT NULL,
			path TEXT NOT NULL,
			json TEXT NOT NULL,
			PRIMARY KEY (island, name)
		);`,
		`CREATE TABLE IF NOT EXISTS pending_actions (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			target_table TEXT NOT NULL,
			key_field TEXT NOT NULL,
			value TEXT NOT NULL,
			context TEXT,
			suggestions TEXT,
			status TEXT NOT NULL DEFAULT 'Pending',
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_target ON pending_actions(target_table, value, status);`,
		`INSERT OR REPLACE INTO meta(k, v) VALUES('schema_version', '1');`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func decodeRow(s string) (model.Row, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var row model.Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

// CloudRows returns every row of cloud ordered by insertion.
func (d *DB) CloudRows(ctx context.Context, cloud string) ([]model.Row, error) {
	return d.rows(ctx, `SELECT json FROM cloud_rows WHERE cloud = ? ORDER BY rowid`, cloud)
}

func (d *DB) IslandRows(ctx context.Context, island string) ([]model.Row, error) {
	return d.rows(ctx, `SELECT json FROM island_rows WHERE island = ? ORDER BY name`, island)
}

func (d *DB) rows(ctx context.Context, q, arg string) ([]model.Row, error) {
	rs, err := d.sql.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	out := []model.Row{}
	for rs.Next() {
		var js string
		if err := rs.Scan(&js); err != nil {
			return nil, err
		}
		row, err := decodeRow(js)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// InsertCloudRow stores row under cloud, assigning an id when it has none.
func (d *DB) InsertCloudRow(ctx context.Context, cloud string, row model.Row) (string, error) {
	id, _ := row["id"].(string)
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	cp := model.Row{}
	for k, v := range row {
		cp[k] = v
	}
	cp["id"] = id
	b, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}
	if _, err := d.sql.ExecContext(ctx, `INSERT OR REPLACE INTO cloud_rows(cloud, id, json) VALUES(?, ?, ?)`, cloud, id, string(b)); err != nil {
		return "", err
	}
	return id, nil
}

// CloudKeyValues lists the string values of field across cloud's rows.
func (d *DB) CloudKeyValues(ctx context.Context, cloud, field string) ([]string, error) {
	rows, err := d.CloudRows(ctx, cloud)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rows {
		if s, ok := r[field].(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// FindCloudID returns the id of the first row in cloud whose field equals value.
func (d *DB) FindCloudID(ctx context.Context, cloud, field, value string) (string, bool, error) {
	rows, err := d.CloudRows(ctx, cloud)
	if err != nil {
		return "", false, err
	}
	for _, r := range rows {
		if s, ok := r[field].(string); ok && s == value {
			id, _ := r["id"].(string)
			return id, true, nil
		}
	}
	return "", false, nil
}

// UpsertIsland replaces the row for (island, name), keeping its id stable
// across scans.
func (d *DB) UpsertIsland(ctx context.Context, island, name, path string, row model.Row) error {
	var id string
	err := d.sql.QueryRowContext(ctx, `SELECT id FROM island_rows WHERE island = ? AND name = ?`, island, name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
	case err != nil:
		return err
	}
	cp := model.Row{}
	for k, v := range row {
		cp[k] = v
	}
	cp["id"] = id
	cp["name"] = name
	cp["path"] = path
	b, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT OR REPLACE INTO island_rows(island, name, id, path, json) VALUES(?, ?, ?, ?, ?)`, island, name, id, path, string(b))
	return err
}

// IslandPath returns the directory backing the island row called name.
func (d *DB) IslandPath(ctx context.Context, island, name string) (string, error) {
	var path string
	err := d.sql.QueryRowContext(ctx, `SELECT path FROM island_rows WHERE island = ? AND name = ?`, island, name).Scan(&path)
	if err != nil {
		return "", err
	}
	return path, nil
}

// PurgeIslands drops every scanned island row so a rescan mirrors the
// filesystem exactly.
func (d *DB) PurgeIslands(ctx context.Context) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM island_rows`)
	return err
}

// ResetPending drops open actions; the next scan regenerates the ones that
// still apply.
func (d *DB) ResetPending(ctx context.Context) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM pending_actions WHERE status = 'Pending'`)
	return err
}

// ActionRecord is a pending_actions row in its wire shape.
type ActionRecord struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	TargetTable string          `json:"target_table"`
	KeyField    string          `json:"key_field"`
	Value       string          `json:"value"`
	Context     *string         `json:"context"`
	Suggestions json.RawMessage `json:"suggestions"`
	Status      string          `json:"status"`
	CreatedAt   *string         `json:"created_at"`
}

// HasPending reports whether an open action already covers value in table.
func (d *DB) HasPending(ctx context.Context, table, value string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT count(*) FROM pending_actions WHERE target_table = ? AND value = ? AND status = 'Pending'`, table, value).Scan(&n)
	return n > 0, err
}

// CreatePending records a CreateEntity action. Suggestions are stored as a
// JSON string, the way the production backend does.
func (d *DB) CreatePending(ctx context.Context, table, keyField, value, actionContext string, suggestions []string) (string, error) {
	if suggestions == nil {
		suggestions = []string{}
	}
	sb, err := json.Marshal(suggestions)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = d.sql.ExecContext(ctx, `INSERT INTO pending_actions(id, type, target_table, key_field, value, context, suggestions, status, created_at)
		VALUES(?, 'CreateEntity', ?, ?, ?, ?, ?, 'Pending', ?)`,
		id, table, keyField, value, actionContext, string(sb), time.Now().Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return id, nil
}

// PendingActions lists open actions, oldest first.
func (d *DB) PendingActions(ctx context.Context) ([]ActionRecord, error) {
	rs, err := d.sql.QueryContext(ctx, `SELECT id, type, target_table, key_field, value, context, suggestions, status, created_at
		FROM pending_actions WHERE status = 'Pending' ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	out := []ActionRecord{}
	for rs.Next() {
		var a ActionRecord
		var ctxt, sugg, createdAt sql.NullString
		if err := rs.Scan(&a.ID, &a.Type, &a.TargetTable, &a.KeyField, &a.Value, &ctxt, &sugg, &a.Status, &createdAt); err != nil {
			return nil, err
		}
		if ctxt.Valid {
			a.Context = &ctxt.String
		}
		if createdAt.Valid {
			a.CreatedAt = &createdAt.String
		}
		if sugg.Valid {
			b, _ := json.Marshal(sugg.String)
			a.Suggestions = b
		} else {
			a.Suggestions = json.RawMessage("null")
		}
		out = append(out, a)
	}
	return out, rs.Err()
}

// Approve creates the missing cloud row from the action and marks it
// resolved, returning the new row id.
func (d *DB) Approve(ctx context.Context, id string) (string, error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var table, keyField, value string
	err = tx.QueryRowContext(ctx, `SELECT target_table, key_field, value FROM pending_actions WHERE id = ? AND status = 'Pending'`, id).
		Scan(&table, &keyField, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrActionNotFound
	}
	if err != nil {
		return "", err
	}
	newID := uuid.NewString()
	b, err := json.Marshal(model.Row{"id": newID, keyField: value})
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO cloud_rows(cloud, id, json) VALUES(?, ?, ?)`, table, newID, string(b)); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pending_actions SET status = 'Resolved' WHERE id = ?`, id); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return newID, nil
}

func (d *DB) Reject(ctx context.Context, id string) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE pending_actions SET status = 'Rejected' WHERE id = ?`, id)
	return err
}
