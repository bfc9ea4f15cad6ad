package importer

import (
	"context"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/resolve"
)

func init() {
	Register(&geonamesCitiesAdapter{})
}

// cities15000.txt columns (the geoname table layout).
const (
	gnID      = 0
	gnName    = 1
	gnASCII   = 2
	gnCountry = 8
	gnAdmin1  = 10
	gnAdmin2  = 11
	gnFields  = 19
)

type geonamesCitiesAdapter struct{}

func (a *geonamesCitiesAdapter) ID() string   { return "geonames-cities" }
func (a *geonamesCitiesAdapter) Kind() string { return string(geo.KindCity) }
func (a *geonamesCitiesAdapter) Description() string {
	return "GeoNames cities with a population above 15000"
}
func (a *geonamesCitiesAdapter) DefaultURL() string {
	return "https://download.geonames.org/export/dump/cities15000.zip"
}
func (a *geonamesCitiesAdapter) License() string     { return "CC-BY 4.0" }
func (a *geonamesCitiesAdapter) DependsOn() []string { return []string{"geonames-admin2"} }

func (a *geonamesCitiesAdapter) Import(ctx context.Context, env *Env, sourceURL string) error {
	path, cleanup, err := fetchFeed(ctx, sourceURL, env.WorkDir, "cities15000.txt")
	if err != nil {
		return err
	}
	defer cleanup()
	return env.processFeed(ctx, path, a.Kind(), gnFields, a.handle(env))
}

func (a *geonamesCitiesAdapter) handle(env *Env) resolve.HandlerFunc {
	return func(ctx context.Context, rec *resolve.PendingRecord, _ bool) error {
		f := rec.Fields
		gid, err := parseID(rec.Source, rec.Line, "geonameid", f[gnID])
		if err != nil {
			return err
		}
		parent, err := cityParent(ctx, env,
			strings.TrimSpace(f[gnCountry]), strings.TrimSpace(f[gnAdmin1]), strings.TrimSpace(f[gnAdmin2]))
		if err != nil {
			return err
		}

		id, err := env.Resolver.ResolveEntity(ctx, geo.Entity{
			ParentID:  parent,
			Name:      f[gnName],
			Kind:      geo.KindCity,
			GeonameID: gid,
		})
		if err != nil {
			return err
		}
		_, _, err = env.Resolver.AddAlias(ctx, id, f[gnASCII], geo.LangSystem, false)
		return err
	}
}

// cityParent walks county, state, country and returns the most specific
// node that exists. Only a missing country is an error.
func cityParent(ctx context.Context, env *Env, country, admin1, admin2 string) (int64, error) {
	if country == "" {
		return 0, &geo.ParentNotFoundError{Code: "(empty country code)"}
	}
	if admin1 != "" && admin1 != "00" {
		if admin2 != "" {
			id, ok, err := env.ByCode(ctx, geo.KindCounty, country+"."+admin1+"."+admin2)
			if err != nil || ok {
				return id, err
			}
		}
		id, ok, err := env.ByCode(ctx, geo.KindState, country+"."+admin1)
		if err != nil || ok {
			return id, err
		}
	}
	id, ok, err := env.ByCode(ctx, geo.KindCountry, country)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &geo.ParentNotFoundError{Code: country}
	}
	return id, nil
}
