// Package sqlite is the default geotree store, a single SQLite file driven
// through modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS geo_nodes (
		id            INTEGER PRIMARY KEY,
		parent_id     INTEGER REFERENCES geo_nodes(id),
		name          TEXT NOT NULL,
		name_key      TEXT NOT NULL,
		sibling_index INTEGER NOT NULL,
		system_owned  INTEGER NOT NULL DEFAULT 0,
		kind          TEXT NOT NULL,
		code          TEXT NOT NULL DEFAULT '',
		geoname_id    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_parent_key ON geo_nodes (parent_id, name_key)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_kind_code ON geo_nodes (kind, code)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_kind_key ON geo_nodes (kind, name_key)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_geoname ON geo_nodes (geoname_id)`,
	`CREATE TABLE IF NOT EXISTS geo_aliases (
		id         INTEGER PRIMARY KEY,
		node_id    INTEGER NOT NULL REFERENCES geo_nodes(id),
		text       TEXT NOT NULL,
		text_key   TEXT NOT NULL,
		is_primary INTEGER NOT NULL DEFAULT 0,
		language   TEXT NOT NULL DEFAULT '',
		UNIQUE (node_id, text_key)
	)`,
	`CREATE TABLE IF NOT EXISTS geo_id_seq (
		id    INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	)`,
	`INSERT OR IGNORE INTO geo_id_seq (id, value) VALUES (1, 0)`,
}

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the tables exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// parentArg maps NoParent to NULL for "parent_id IS ?" comparisons.
func parentArg(id int64) any {
	if id == geo.NoParent {
		return nil
	}
	return id
}

func (s *Store) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `UPDATE geo_id_seq SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return id, nil
}

func (s *Store) FindChildByName(ctx context.Context, parentID int64, key string) ([]int64, error) {
	return s.ids(ctx, `SELECT id FROM geo_nodes WHERE parent_id IS ? AND name_key = ? ORDER BY id`, parentArg(parentID), key)
}

func (s *Store) MaxSiblingIndex(ctx context.Context, parentID int64) (int, bool, error) {
	var hi sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sibling_index) FROM geo_nodes WHERE parent_id IS ?`, parentArg(parentID)).Scan(&hi)
	if err != nil {
		return 0, false, fmt.Errorf("max sibling index: %w", err)
	}
	return int(hi.Int64), hi.Valid, nil
}

func (s *Store) FindAlias(ctx context.Context, nodeID int64, key string) (int64, bool, error) {
	return s.oneID(ctx, `SELECT id FROM geo_aliases WHERE node_id = ? AND text_key = ?`, nodeID, key)
}

func (s *Store) AnyPrimaryAlias(ctx context.Context, nodeID int64) (bool, error) {
	_, ok, err := s.oneID(ctx, `SELECT id FROM geo_aliases WHERE node_id = ? AND is_primary = 1 LIMIT 1`, nodeID)
	return ok, err
}

func (s *Store) NodeExists(ctx context.Context, id int64) (bool, error) {
	_, ok, err := s.oneID(ctx, `SELECT id FROM geo_nodes WHERE id = ?`, id)
	return ok, err
}

func (s *Store) FindByCode(ctx context.Context, kind geo.Kind, code string) (int64, bool, error) {
	return s.oneID(ctx, `SELECT id FROM geo_nodes WHERE kind = ? AND code = ? ORDER BY id LIMIT 1`, string(kind), code)
}

func (s *Store) FindByGeonameID(ctx context.Context, geonameID int64) (int64, bool, error) {
	return s.oneID(ctx, `SELECT id FROM geo_nodes WHERE geoname_id = ? ORDER BY id LIMIT 1`, geonameID)
}

func (s *Store) FindByKindAndName(ctx context.Context, kind geo.Kind, key string) ([]int64, error) {
	return s.ids(ctx, `SELECT id FROM geo_nodes WHERE kind = ? AND name_key = ? ORDER BY id`, string(kind), key)
}

func (s *Store) InsertNode(ctx context.Context, n geo.Node) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geo_nodes (id, parent_id, name, name_key, sibling_index, system_owned, kind, code, geoname_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, parentArg(n.ParentID), n.Name, n.NameKey, n.SiblingIndex, n.SystemOwned, string(n.Kind), n.Code, n.GeonameID,
	)
	if err != nil {
		return fmt.Errorf("insert node %d: %w", n.ID, err)
	}
	return nil
}

func (s *Store) InsertAlias(ctx context.Context, a geo.Alias) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geo_aliases (id, node_id, text, text_key, is_primary, language) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.NodeID, a.Text, a.TextKey, a.IsPrimary, a.Language,
	)
	if err != nil {
		return fmt.Errorf("insert alias %d: %w", a.ID, err)
	}
	return nil
}

const nodeColumns = `id, parent_id, name, name_key, sibling_index, system_owned, kind, code, geoname_id`

func (s *Store) GetNode(ctx context.Context, id int64) (*geo.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM geo_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", id, geo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	return n, nil
}

func (s *Store) Children(ctx context.Context, parentID int64) ([]geo.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM geo_nodes WHERE parent_id IS ? ORDER BY sibling_index`, parentArg(parentID))
	if err != nil {
		return nil, fmt.Errorf("children of %d: %w", parentID, err)
	}
	defer rows.Close()

	var out []geo.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) Aliases(ctx context.Context, nodeID int64) ([]geo.Alias, error) {
	return s.aliases(ctx, `SELECT id, node_id, text, text_key, is_primary, language
		FROM geo_aliases WHERE node_id = ? ORDER BY id`, nodeID)
}

func (s *Store) SearchAliases(ctx context.Context, needle string, limit int) ([]geo.Alias, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.aliases(ctx, `SELECT id, node_id, text, text_key, is_primary, language
		FROM geo_aliases WHERE instr(text_key, ?) > 0 ORDER BY id LIMIT ?`, geo.AliasKey(needle), limit)
}

func (s *Store) CountNodes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM geo_nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(sc scanner) (*geo.Node, error) {
	var (
		n      geo.Node
		parent sql.NullInt64
		kind   string
	)
	if err := sc.Scan(&n.ID, &parent, &n.Name, &n.NameKey, &n.SiblingIndex, &n.SystemOwned, &kind, &n.Code, &n.GeonameID); err != nil {
		return nil, err
	}
	n.ParentID = parent.Int64
	n.Kind = geo.Kind(kind)
	return &n, nil
}

func (s *Store) aliases(ctx context.Context, q string, args ...any) ([]geo.Alias, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	defer rows.Close()

	var out []geo.Alias
	for rows.Next() {
		var a geo.Alias
		if err := rows.Scan(&a.ID, &a.NodeID, &a.Text, &a.TextKey, &a.IsPrimary, &a.Language); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ids(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) oneID(ctx context.Context, q string, args ...any) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query id: %w", err)
	}
	return id, true, nil
}
