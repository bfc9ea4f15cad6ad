// Package postgres stores the geographic tree in PostgreSQL through the pgx
// database/sql driver. Ids come from a sequence so several databases can
// share one numbering scheme.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ store.Store = (*Store)(nil)

const driverName = "pgx"

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS geo_id_seq`,
	`CREATE TABLE IF NOT EXISTS geo_nodes (
		id            BIGINT PRIMARY KEY,
		parent_id     BIGINT REFERENCES geo_nodes(id),
		name          TEXT NOT NULL,
		name_key      TEXT NOT NULL,
		sibling_index INTEGER NOT NULL,
		system_owned  BOOLEAN NOT NULL DEFAULT FALSE,
		kind          TEXT NOT NULL,
		code          TEXT NOT NULL DEFAULT '',
		geoname_id    BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_parent_key ON geo_nodes (parent_id, name_key)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_kind_code ON geo_nodes (kind, code)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_kind_key ON geo_nodes (kind, name_key)`,
	`CREATE INDEX IF NOT EXISTS geo_nodes_geoname ON geo_nodes (geoname_id)`,
	`CREATE TABLE IF NOT EXISTS geo_aliases (
		id         BIGINT PRIMARY KEY,
		node_id    BIGINT NOT NULL REFERENCES geo_nodes(id),
		text       TEXT NOT NULL,
		text_key   TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		language   TEXT NOT NULL DEFAULT '',
		UNIQUE (node_id, text_key)
	)`,
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database without touching the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the sequence, tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func parentArg(id int64) any {
	if id == geo.NoParent {
		return nil
	}
	return id
}

func (s *Store) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('geo_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return id, nil
}

func (s *Store) FindChildByName(ctx context.Context, parentID int64, key string) ([]int64, error) {
	return s.ids(ctx, `SELECT id FROM geo_nodes WHERE parent_id IS NOT DISTINCT FROM $1 AND name_key = $2 ORDER BY id`,
		parentArg(parentID), key)
}

func (s *Store) MaxSiblingIndex(ctx context.Context, parentID int64) (int, bool, error) {
	var hi sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sibling_index) FROM geo_nodes WHERE parent_id IS NOT DISTINCT FROM $1`, parentArg(parentID)).Scan(&hi)
	if err != nil {
		return 0, false, fmt.Errorf("max sibling index: %w", err)
	}
	return int(hi.Int64), hi.Valid, nil
}

func (s *Store) FindAlias(ctx context.Context, nodeID int64, key string) (int64, bool, error) {
	return s.oneID(ctx, `SELECT id FROM geo_aliases WHERE node_id = $1 AND text_key = $2`, nodeID, key)
}

func (s *Store) AnyPrimaryAlias(ctx context.Context, nodeID int64) (bool, error) {
	_, ok, err := s.oneID(ctx, `SELECT id FROM geo_aliases WHERE node_id = $1 AND is_primary LIMIT 1`, nodeID)
	return ok, err
}

func (s *Store) NodeExists(ctx context.Context, id int64) (bool, error) {
	_, ok, err := s.oneID(ctx, `SELECT id FROM geo_nodes WHERE id = $1`, id)
	return ok, err
}

func (s *Store) FindByCode(ctx context.Context, kind geo.Kind, code string) (int64, bool, error) {
	return s.oneID(ctx, `SELECT id FROM geo_nodes WHERE kind = $1 AND code = $2 ORDER BY id LIMIT 1`, string(kind), code)
}

func (s *Store) FindByGeonameID(ctx context.Context, geonameID int64) (int64, bool, error) {
	return s.oneID(ctx, `SELECT id FROM geo_nodes WHERE geoname_id = $1 ORDER BY id LIMIT 1`, geonameID)
}

func (s *Store) FindByKindAndName(ctx context.Context, kind geo.Kind, key string) ([]int64, error) {
	return s.ids(ctx, `SELECT id FROM geo_nodes WHERE kind = $1 AND name_key = $2 ORDER BY id`, string(kind), key)
}

func (s *Store) InsertNode(ctx context.Context, n geo.Node) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geo_nodes (id, parent_id, name, name_key, sibling_index, system_owned, kind, code, geoname_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, parentArg(n.ParentID), n.Name, n.NameKey, n.SiblingIndex, n.SystemOwned, string(n.Kind), n.Code, n.GeonameID,
	)
	if err != nil {
		return fmt.Errorf("insert node %d: %w", n.ID, err)
	}
	return nil
}

func (s *Store) InsertAlias(ctx context.Context, a geo.Alias) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geo_aliases (id, node_id, text, text_key, is_primary, language) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.NodeID, a.Text, a.TextKey, a.IsPrimary, a.Language,
	)
	if err != nil {
		return fmt.Errorf("insert alias %d: %w", a.ID, err)
	}
	return nil
}

const nodeColumns = `id, parent_id, name, name_key, sibling_index, system_owned, kind, code, geoname_id`

func (s *Store) GetNode(ctx context.Context, id int64) (*geo.Node, error) {
	n, err := scanNode(s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM geo_nodes WHERE id = $1`, id))
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
		`SELECT `+nodeColumns+` FROM geo_nodes WHERE parent_id IS NOT DISTINCT FROM $1 ORDER BY sibling_index`,
		parentArg(parentID))
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
		FROM geo_aliases WHERE node_id = $1 ORDER BY id`, nodeID)
}

// SearchAliases treats a non-positive limit as unlimited (LIMIT NULL).
func (s *Store) SearchAliases(ctx context.Context, needle string, limit int) ([]geo.Alias, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	return s.aliases(ctx, `SELECT id, node_id, text, text_key, is_primary, language
		FROM geo_aliases WHERE strpos(text_key, $1) > 0 ORDER BY id LIMIT $2`, geo.AliasKey(needle), lim)
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
