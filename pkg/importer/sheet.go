package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/plan"
	"github.com/hazyhaar/geotree/pkg/resolve"
)

// SheetKind is the retry queue of spreadsheet rows.
const SheetKind = "row"

// errNoParentValue marks a row whose cells for every parent column of a
// created column are blank.
var errNoParentValue = errors.New("empty parent cells")

// SheetDef describes how one worksheet maps onto the tree.
type SheetDef struct {
	// Sheet is the worksheet name; empty means the first sheet.
	Sheet string `yaml:"sheet"`
	// HeaderRow is the 1-based row holding the column headers (default 1).
	HeaderRow int               `yaml:"header_row"`
	Columns   []plan.Definition `yaml:"columns"`
}

// LoadSheetDef reads a YAML column definition file.
func LoadSheetDef(path string) (*SheetDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sheet definition: %w", err)
	}
	var def SheetDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse sheet definition %s: %w", path, err)
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("sheet definition %s: no columns", path)
	}
	if def.HeaderRow <= 0 {
		def.HeaderRow = 1
	}
	return &def, nil
}

// sheetRow resolves one spreadsheet row column by column in plan order.
type sheetRow struct {
	env  *Env
	cols []*plan.Column
	// cell maps a planned column to its position in the row.
	cell map[*plan.Column]int
}

// ImportSheet plans def's columns, then resolves every data row of the
// workbook at path through env.Batch. Rows whose must-exist cells match
// nothing are replayed once after the last row.
func ImportSheet(ctx context.Context, env *Env, path string, def *SheetDef) error {
	cols, err := plan.Plan(def.Columns)
	if err != nil {
		return err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := def.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	headerRow := def.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if len(rows) < headerRow {
		return fmt.Errorf("sheet %q has no header row %d", sheet, headerRow)
	}

	sr := &sheetRow{env: env, cols: cols, cell: make(map[*plan.Column]int, len(cols))}
	header := make(map[string]int)
	for i, h := range rows[headerRow-1] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range cols {
		i, ok := header[strings.ToLower(c.Tag)]
		if !ok {
			return fmt.Errorf("column %q: header %q not found in sheet %q", c.Name, c.Tag, sheet)
		}
		sr.cell[c] = i
	}

	if _, err := env.Root(ctx); err != nil {
		return err
	}

	source := filepath.Base(path)
	for n, row := range rows[headerRow:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := firstValue(row)
		if key == "" {
			continue
		}
		rec := &resolve.PendingRecord{
			Kind:   SheetKind,
			Source: source,
			Line:   headerRow + n + 1,
			Key:    key,
			Fields: row,
		}
		if _, err := env.Batch.Process(ctx, rec, sr.handle); err != nil {
			return err
		}
	}
	env.Logger.Info("sheet read", "source", source, "sheet", sheet, "rows", len(rows)-headerRow, "deferred", env.Batch.Pending())
	return env.Batch.Flush(ctx, SheetKind, sr.handle)
}

func (s *sheetRow) handle(ctx context.Context, rec *resolve.PendingRecord, _ bool) error {
	nodes := make(map[*plan.Column]int64, len(s.cols))
	for _, c := range s.cols {
		v := s.value(rec.Fields, c)
		if v == "" {
			continue
		}
		var (
			id  int64
			err error
		)
		switch {
		case c.MustExist:
			id, err = s.lookup(ctx, c, v, s.parentOf(c, nodes))
		case c.IsAlias():
			target, ok := nodes[c.AliasOf]
			if !ok {
				continue
			}
			_, _, err = s.env.Resolver.AddAlias(ctx, target, v, c.Language, false)
		default:
			parent := s.parentOf(c, nodes)
			if parent == geo.NoParent {
				if len(c.Parents) > 0 {
					return &geo.RecordError{
						Source: rec.Source,
						Line:   rec.Line,
						Err:    fmt.Errorf("column %s: %w: %s", c.Name, errNoParentValue, columnNames(c.Parents)),
					}
				}
				parent, err = s.env.Root(ctx)
				if err != nil {
					return err
				}
			}
			id, err = s.env.Resolver.ResolveEntity(ctx, geo.Entity{ParentID: parent, Name: v, Kind: c.Kind})
		}
		if err != nil {
			return fmt.Errorf("column %s: %w", c.Name, err)
		}
		if id != 0 {
			nodes[c] = id
		}
	}
	return nil
}

// parentOf returns the node of the latest-planned parent column that has a
// value in this row, or NoParent.
func (s *sheetRow) parentOf(c *plan.Column, nodes map[*plan.Column]int64) int64 {
	var best *plan.Column
	for _, p := range c.Parents {
		if _, ok := nodes[p]; !ok {
			continue
		}
		if best == nil || p.Order > best.Order {
			best = p
		}
	}
	if best == nil {
		return geo.NoParent
	}
	return nodes[best]
}

// lookup finds an existing node for a must_exist cell. Under a placed
// parent the name is matched among its children; otherwise by code or by
// kind and name. Codes are compared upper-cased, as GeoNames writes them.
func (s *sheetRow) lookup(ctx context.Context, c *plan.Column, v string, parent int64) (int64, error) {
	if c.Lookup == plan.LookupCode {
		v = strings.ToUpper(v)
		id, ok, err := s.env.ByCode(ctx, c.Kind, v)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, &geo.ParentNotFoundError{Code: v}
		}
		return id, nil
	}

	key := s.env.Resolver.Normalize(v)
	var (
		ids []int64
		err error
	)
	if parent != geo.NoParent {
		ids, err = s.env.Lookup.FindChildByName(ctx, parent, key)
	} else {
		ids, err = s.env.Lookup.FindByKindAndName(ctx, c.Kind, key)
	}
	if err != nil {
		return 0, fmt.Errorf("find %s %q: %w", c.Kind, v, err)
	}
	if len(ids) == 0 {
		return 0, &geo.ParentNotFoundError{Code: v}
	}
	if len(ids) > 1 {
		s.env.Logger.Warn("ambiguous must-exist value, using first match", "column", c.Name, "value", v, "ids", ids)
	}
	return ids[0], nil
}

func (s *sheetRow) value(row []string, c *plan.Column) string {
	i := s.cell[c]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func firstValue(row []string) string {
	for _, v := range row {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func columnNames(cols []*plan.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
