package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"queueforge/pkg/core"
	"queueforge/pkg/queue"
	"queueforge/pkg/types"
)

// Drivers accepted by Open. "sqlite" is the pure Go driver, "sqlite3" needs cgo.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS planets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uuid TEXT,
	name TEXT,
	type TEXT,
	diameter INTEGER DEFAULT 0,
	temp_min INTEGER DEFAULT 0, temp_max INTEGER DEFAULT 0,
	galaxy INTEGER DEFAULT 1, system INTEGER DEFAULT 1, position INTEGER DEFAULT 1,
	fields_max INTEGER DEFAULT 163, fields_taken INTEGER DEFAULT 0,
	metal INTEGER DEFAULT 0, crystal INTEGER DEFAULT 0, deuterium INTEGER DEFAULT 0,
	buildings_json TEXT,
	research_json TEXT,
	ships_json TEXT
);

CREATE TABLE IF NOT EXISTS production_queues (
	planet_id INTEGER NOT NULL,
	category TEXT NOT NULL,
	items_blob BLOB NOT NULL,
	checksum TEXT NOT NULL,
	version INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (planet_id, category),
	FOREIGN KEY(planet_id) REFERENCES planets(id)
);
`

const planetColumns = `id, owner_uuid, name, type, diameter, temp_min, temp_max,
	galaxy, system, position, fields_max, fields_taken`

// SQLiteStore keeps planets and queues in one sqlite database. Queue rows hold
// an lz4-framed JSON item list with a blake3 checksum and a version counter.
type SQLiteStore struct {
	db *sql.DB
}

// Open connects to path with driver and creates the schema.
// Use ":memory:" for a throwaway database.
func Open(driver, path string) (*SQLiteStore, error) {
	dsn, err := dataSource(driver, path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func dataSource(driver, path string) (string, error) {
	memory := path == ":memory:"
	switch driver {
	case DriverModernc:
		if memory {
			return path, nil
		}
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	case DriverMattn:
		if memory {
			return path, nil
		}
		return path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	}
	return "", fmt.Errorf("unsupported sqlite driver %q", driver)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// DB exposes the handle for health checks.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// --- Transactions ---

type txKey struct{ store *SQLiteStore }

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InTx runs fn in one transaction. Store calls made with the context fn
// receives use that transaction; a nested InTx joins it.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{s}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{s}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// conn returns the transaction carried by ctx, or the pool. With one open
// connection a call that skipped a running transaction would block on it.
func (s *SQLiteStore) conn(ctx context.Context) dbConn {
	if tx, ok := ctx.Value(txKey{s}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// --- queue.Repository ---

func (s *SQLiteStore) Load(ctx context.Context, planetID int64, category types.Category) (queue.Snapshot, error) {
	const op = "load queue"

	if err := s.planetExists(ctx, planetID, category, op); err != nil {
		return queue.Snapshot{}, err
	}

	var blob []byte
	var checksum string
	var version int64
	err := s.conn(ctx).QueryRowContext(ctx,
		"SELECT items_blob, checksum, version FROM production_queues WHERE planet_id = ? AND category = ?",
		planetID, string(category),
	).Scan(&blob, &checksum, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Snapshot{}, nil
	}
	if err != nil {
		return queue.Snapshot{}, queue.NewError(queue.KindPersistence, op, planetID, category, err)
	}

	items, err := decodeItems(blob, checksum)
	if err != nil {
		return queue.Snapshot{}, queue.NewError(queue.KindPersistence, op, planetID, category, err)
	}
	return queue.Snapshot{Items: items, Version: version}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, planetID int64, category types.Category, items []types.QueueItem, expectedVersion int64) error {
	const op = "save queue"

	blob, checksum, err := encodeItems(items)
	if err != nil {
		return queue.NewError(queue.KindPersistence, op, planetID, category, err)
	}
	now := time.Now().Unix()

	var res sql.Result
	if expectedVersion == 0 {
		if err := s.planetExists(ctx, planetID, category, op); err != nil {
			return err
		}
		res, err = s.conn(ctx).ExecContext(ctx,
			`INSERT OR IGNORE INTO production_queues (planet_id, category, items_blob, checksum, version, updated_at)
			VALUES (?, ?, ?, ?, 1, ?)`,
			planetID, string(category), blob, checksum, now)
	} else {
		res, err = s.conn(ctx).ExecContext(ctx,
			`UPDATE production_queues SET items_blob = ?, checksum = ?, version = version + 1, updated_at = ?
			WHERE planet_id = ? AND category = ? AND version = ?`,
			blob, checksum, now, planetID, string(category), expectedVersion)
	}
	if err != nil {
		return queue.NewError(queue.KindPersistence, op, planetID, category, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return queue.NewError(queue.KindPersistence, op, planetID, category, err)
	}
	if n == 0 {
		return errVersionMoved(planetID, category, expectedVersion, s.currentVersion(ctx, planetID, category))
	}
	return nil
}

func (s *SQLiteStore) currentVersion(ctx context.Context, planetID int64, category types.Category) int64 {
	var v int64
	_ = s.conn(ctx).QueryRowContext(ctx,
		"SELECT version FROM production_queues WHERE planet_id = ? AND category = ?",
		planetID, string(category)).Scan(&v)
	return v
}

func (s *SQLiteStore) planetExists(ctx context.Context, planetID int64, category types.Category, op string) error {
	var one int
	err := s.conn(ctx).QueryRowContext(ctx, "SELECT 1 FROM planets WHERE id = ?", planetID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errUnknownPlanet(op, planetID, category)
	}
	if err != nil {
		return queue.NewError(queue.KindPersistence, op, planetID, category, err)
	}
	return nil
}

// Queues lists every stored queue, ordered by planet then category.
func (s *SQLiteStore) Queues(ctx context.Context) ([]QueueInfo, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT planet_id, category, items_blob, checksum, version, updated_at FROM production_queues ORDER BY planet_id, category")
	if err != nil {
		return nil, fmt.Errorf("query queues: %w", err)
	}
	defer rows.Close()

	var out []QueueInfo
	for rows.Next() {
		var info QueueInfo
		var category, checksum string
		var blob []byte
		if err := rows.Scan(&info.PlanetID, &category, &blob, &checksum, &info.Version, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		items, err := decodeItems(blob, checksum)
		if err != nil {
			return nil, fmt.Errorf("queue %d/%s: %w", info.PlanetID, category, err)
		}
		info.Category = types.Category(category)
		info.Items = len(items)
		out = append(out, info)
	}
	return out, rows.Err()
}

func encodeItems(items []types.QueueItem) ([]byte, string, error) {
	if items == nil {
		items = []types.QueueItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, "", fmt.Errorf("marshal items: %w", err)
	}
	blob, err := core.Compress(raw)
	if err != nil {
		return nil, "", err
	}
	return blob, core.Hash(blob), nil
}

func decodeItems(blob []byte, checksum string) ([]types.QueueItem, error) {
	if got := core.Hash(blob); got != checksum {
		return nil, fmt.Errorf("checksum mismatch: stored %s, computed %s", checksum, got)
	}
	raw, err := core.Decompress(blob)
	if err != nil {
		return nil, err
	}
	var items []types.QueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}

// --- Planets ---

// CreatePlanet inserts p with its initial state and returns it with the new ID.
func (s *SQLiteStore) CreatePlanet(ctx context.Context, p types.Planet, st types.PlanetState) (types.Planet, error) {
	bJSON, rJSON, sJSON, err := marshalLevels(st)
	if err != nil {
		return types.Planet{}, err
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO planets (owner_uuid, name, type, diameter, temp_min, temp_max, galaxy, system, position,
			fields_max, fields_taken, metal, crystal, deuterium, buildings_json, research_json, ships_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OwnerUUID, p.Name, p.Type, p.Diameter, p.TempMin, p.TempMax, p.Galaxy, p.System, p.Position,
		p.FieldsMax, p.FieldsTaken,
		st.Resources["metal"], st.Resources["crystal"], st.Resources["deuterium"],
		bJSON, rJSON, sJSON)
	if err != nil {
		return types.Planet{}, fmt.Errorf("insert planet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.Planet{}, fmt.Errorf("planet id: %w", err)
	}
	p.ID = id
	return p, nil
}

func (s *SQLiteStore) Planet(ctx context.Context, planetID int64) (types.Planet, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+planetColumns+" FROM planets WHERE id = ?", planetID)
	p, err := scanPlanet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Planet{}, errUnknownPlanet("load planet", planetID, "")
	}
	if err != nil {
		return types.Planet{}, fmt.Errorf("load planet %d: %w", planetID, err)
	}
	return p, nil
}

func (s *SQLiteStore) Planets(ctx context.Context) ([]types.Planet, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, "SELECT "+planetColumns+" FROM planets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query planets: %w", err)
	}
	defer rows.Close()

	var out []types.Planet
	for rows.Next() {
		p, err := scanPlanet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan planet: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlanet(r rowScanner) (types.Planet, error) {
	var p types.Planet
	var owner, name, kind sql.NullString
	err := r.Scan(&p.ID, &owner, &name, &kind, &p.Diameter, &p.TempMin, &p.TempMax,
		&p.Galaxy, &p.System, &p.Position, &p.FieldsMax, &p.FieldsTaken)
	p.OwnerUUID, p.Name, p.Type = owner.String, name.String, kind.String
	return p, err
}

// --- Planet state ---

func (s *SQLiteStore) State(ctx context.Context, planetID int64) (types.PlanetState, error) {
	st, err := loadState(ctx, s.conn(ctx), planetID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PlanetState{}, errUnknownPlanet("load state", planetID, "")
	}
	return st, err
}

// UpdateState runs fn inside a transaction and writes the state back when fn
// returns nil. Inside InTx it joins the running transaction.
func (s *SQLiteStore) UpdateState(ctx context.Context, planetID int64, fn func(*types.PlanetState) error) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		tx := s.conn(ctx)
		st, err := loadState(ctx, tx, planetID)
		if errors.Is(err, sql.ErrNoRows) {
			return errUnknownPlanet("update state", planetID, "")
		}
		if err != nil {
			return err
		}
		if err := fn(&st); err != nil {
			return err
		}

		bJSON, rJSON, sJSON, err := marshalLevels(st)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE planets SET metal = ?, crystal = ?, deuterium = ?,
				buildings_json = ?, research_json = ?, ships_json = ? WHERE id = ?`,
			st.Resources["metal"], st.Resources["crystal"], st.Resources["deuterium"],
			bJSON, rJSON, sJSON, planetID)
		if err != nil {
			return fmt.Errorf("update planet %d: %w", planetID, err)
		}
		return nil
	})
}

func loadState(ctx context.Context, q dbConn, planetID int64) (types.PlanetState, error) {
	var metal, crystal, deuterium int64
	var bJSON, rJSON, sJSON sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT metal, crystal, deuterium, buildings_json, research_json, ships_json FROM planets WHERE id = ?",
		planetID,
	).Scan(&metal, &crystal, &deuterium, &bJSON, &rJSON, &sJSON)
	if err != nil {
		return types.PlanetState{}, err
	}

	st := types.PlanetState{
		PlanetID:  planetID,
		Buildings: map[string]int{},
		Research:  map[string]int{},
		Ships:     map[string]int{},
		Resources: types.Resources{"metal": metal, "crystal": crystal, "deuterium": deuterium},
	}
	for _, f := range []struct {
		raw sql.NullString
		dst *map[string]int
	}{{bJSON, &st.Buildings}, {rJSON, &st.Research}, {sJSON, &st.Ships}} {
		if !f.raw.Valid || f.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw.String), f.dst); err != nil {
			return types.PlanetState{}, fmt.Errorf("planet %d state: %w", planetID, err)
		}
	}
	return st, nil
}

func marshalLevels(st types.PlanetState) (string, string, string, error) {
	out := make([]string, 3)
	for i, m := range []map[string]int{st.Buildings, st.Research, st.Ships} {
		if m == nil {
			m = map[string]int{}
		}
		b, err := json.Marshal(m)
		if err != nil {
			return "", "", "", fmt.Errorf("marshal levels: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], nil
}
