// Package plan orders spreadsheet columns so that every column is resolved
// after the columns it depends on.
package plan

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
)

// Lookup modes for must_exist columns.
const (
	LookupName = "name"
	LookupCode = "code"
)

// Definition is one column as written in a sheet definition file.
type Definition struct {
	Name      string   `yaml:"name"`
	Tag       string   `yaml:"tag"`
	Kind      string   `yaml:"kind"`
	ParentOf  []string `yaml:"parent_of"`
	Parents   []string `yaml:"parents"`
	AliasOf   string   `yaml:"alias_of"`
	MustExist bool     `yaml:"must_exist"`
	Lookup    string   `yaml:"lookup"`
	Language  string   `yaml:"language"`
}

// Column is a planned column with its references resolved.
type Column struct {
	Name      string
	Tag       string
	Kind      geo.Kind
	Parents   []*Column
	AliasOf   *Column
	MustExist bool
	Lookup    string
	Language  string

	// Index is the position in the definition list, Order the position
	// in the plan.
	Index int
	Order int
}

// IsAlias reports whether the column only adds aliases to another column's node.
func (c *Column) IsAlias() bool { return c.AliasOf != nil }

// UnderRoot reports whether the column's values resolve under the root.
func (c *Column) UnderRoot() bool { return c.AliasOf == nil && len(c.Parents) == 0 }

func (c *Column) String() string { return c.Name }

// Plan returns the columns in resolution order: must_exist columns first,
// then every other column once its parents and alias target are placed,
// each group in definition order.
func Plan(defs []Definition) ([]*Column, error) {
	cols, err := build(defs)
	if err != nil {
		return nil, err
	}

	placed := make(map[*Column]bool, len(cols))
	order := make([]*Column, 0, len(cols))
	ready := func(c *Column) bool {
		for _, p := range c.Parents {
			if !placed[p] {
				return false
			}
		}
		return c.AliasOf == nil || placed[c.AliasOf]
	}
	scan := func(only func(*Column) bool) int {
		n := 0
		for _, c := range cols {
			if placed[c] || !only(c) || !ready(c) {
				continue
			}
			placed[c] = true
			c.Order = len(order)
			order = append(order, c)
			n++
		}
		return n
	}

	mustExist := func(c *Column) bool { return c.MustExist }
	all := func(*Column) bool { return true }
	// must_exist columns may hang off each other.
	for scan(mustExist) > 0 {
	}
	for len(order) < len(cols) {
		if scan(all) == 0 {
			var stuck []string
			for _, c := range cols {
				if !placed[c] {
					stuck = append(stuck, c.Name)
				}
			}
			return nil, &geo.CyclicColumnDefinitionError{Columns: stuck}
		}
	}

	for _, c := range cols {
		if c.MustExist {
			return order, nil
		}
	}
	return nil, geo.ErrNoRootColumn
}

func build(defs []Definition) ([]*Column, error) {
	cols := make([]*Column, len(defs))
	byName := make(map[string]*Column, len(defs))
	for i, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("column %d: empty name", i)
		}
		if _, dup := byName[name]; dup {
			return nil, &geo.DuplicateColumnError{Column: name}
		}
		kind, err := geo.ParseKind(d.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		lookup := d.Lookup
		switch lookup {
		case "":
			lookup = LookupName
		case LookupName, LookupCode:
		default:
			return nil, fmt.Errorf("column %q: unknown lookup %q", name, d.Lookup)
		}
		tag := d.Tag
		if tag == "" {
			tag = name
		}
		c := &Column{
			Name:      name,
			Tag:       tag,
			Kind:      kind,
			MustExist: d.MustExist,
			Lookup:    lookup,
			Language:  d.Language,
			Index:     i,
		}
		cols[i] = c
		byName[name] = c
	}

	ref := func(from *Column, name string) (*Column, error) {
		c, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, &geo.UnknownColumnError{Column: from.Name, Ref: name}
		}
		return c, nil
	}
	for i, d := range defs {
		c := cols[i]
		for _, child := range d.ParentOf {
			k, err := ref(c, child)
			if err != nil {
				return nil, err
			}
			k.addParent(c)
		}
		for _, parent := range d.Parents {
			p, err := ref(c, parent)
			if err != nil {
				return nil, err
			}
			c.addParent(p)
		}
		if d.AliasOf != "" {
			target, err := ref(c, d.AliasOf)
			if err != nil {
				return nil, err
			}
			if c.MustExist {
				return nil, fmt.Errorf("column %q: alias column cannot be must_exist", c.Name)
			}
			c.AliasOf = target
		}
	}
	return cols, nil
}

func (c *Column) addParent(p *Column) {
	for _, have := range c.Parents {
		if have == p {
			return
		}
	}
	c.Parents = append(c.Parents, p)
}
