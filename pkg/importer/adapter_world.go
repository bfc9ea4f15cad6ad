package importer

import (
	"context"
	"strconv"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/resolve"
)

func init() {
	Register(&worldAdapter{})
}

// continents are the GeoNames continent codes with their feature ids.
var continents = []struct {
	code      string
	name      string
	geonameID int64
}{
	{"AF", "Africa", 6255146},
	{"AS", "Asia", 6255147},
	{"EU", "Europe", 6255148},
	{"NA", "North America", 6255149},
	{"OC", "Oceania", 6255151},
	{"SA", "South America", 6255150},
	{"AN", "Antarctica", 6255152},
}

type worldAdapter struct{}

func (a *worldAdapter) ID() string          { return "world" }
func (a *worldAdapter) Kind() string        { return string(geo.KindContinent) }
func (a *worldAdapter) Description() string { return "World root and the seven continents" }
func (a *worldAdapter) DefaultURL() string  { return "" }
func (a *worldAdapter) License() string     { return "CC-BY 4.0" }
func (a *worldAdapter) DependsOn() []string { return nil }

func (a *worldAdapter) Import(ctx context.Context, env *Env, _ string) error {
	root, err := env.Root(ctx)
	if err != nil {
		return err
	}

	for i, c := range continents {
		c := c
		rec := &resolve.PendingRecord{
			Kind:   a.Kind(),
			Source: a.ID(),
			Line:   i + 1,
			Key:    c.code,
			Fields: []string{c.code, c.name, strconv.FormatInt(c.geonameID, 10)},
		}
		_, err := env.Batch.Process(ctx, rec, func(ctx context.Context, _ *resolve.PendingRecord, _ bool) error {
			id, err := env.Resolver.ResolveEntity(ctx, geo.Entity{
				ParentID:  root,
				Name:      c.name,
				Kind:      geo.KindContinent,
				Code:      c.code,
				GeonameID: c.geonameID,
			})
			if err != nil {
				return err
			}
			_, _, err = env.Resolver.AddAlias(ctx, id, c.code, geo.LangAbbr, false)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
