package importer

import (
	"context"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/resolve"
)

func init() {
	Register(&geonamesCountriesAdapter{})
}

// countryInfo.txt columns.
const (
	ciISO       = 0
	ciISO3      = 1
	ciName      = 4
	ciContinent = 8
	ciGeonameID = 16
	ciFields    = 17
)

type geonamesCountriesAdapter struct{}

func (a *geonamesCountriesAdapter) ID() string          { return "geonames-countries" }
func (a *geonamesCountriesAdapter) Kind() string        { return string(geo.KindCountry) }
func (a *geonamesCountriesAdapter) Description() string { return "GeoNames country info (ISO codes, continent)" }
func (a *geonamesCountriesAdapter) DefaultURL() string {
	return "https://download.geonames.org/export/dump/countryInfo.txt"
}
func (a *geonamesCountriesAdapter) License() string     { return "CC-BY 4.0" }
func (a *geonamesCountriesAdapter) DependsOn() []string { return []string{"world"} }

func (a *geonamesCountriesAdapter) Import(ctx context.Context, env *Env, sourceURL string) error {
	path, cleanup, err := fetchFeed(ctx, sourceURL, env.WorkDir, "countryInfo.txt")
	if err != nil {
		return err
	}
	defer cleanup()
	return env.processFeed(ctx, path, a.Kind(), ciFields, a.handle(env))
}

func (a *geonamesCountriesAdapter) handle(env *Env) resolve.HandlerFunc {
	return func(ctx context.Context, rec *resolve.PendingRecord, _ bool) error {
		f := rec.Fields
		iso := strings.TrimSpace(f[ciISO])
		continent := strings.TrimSpace(f[ciContinent])
		gid, err := parseID(rec.Source, rec.Line, "geonameid", f[ciGeonameID])
		if err != nil {
			return err
		}

		parent, ok, err := env.ByCode(ctx, geo.KindContinent, continent)
		if err != nil {
			return err
		}
		if !ok {
			return &geo.ParentNotFoundError{Code: continent}
		}

		id, err := env.Resolver.ResolveEntity(ctx, geo.Entity{
			ParentID:  parent,
			Name:      f[ciName],
			Kind:      geo.KindCountry,
			Code:      iso,
			GeonameID: gid,
		})
		if err != nil {
			return err
		}
		for _, code := range []string{iso, strings.TrimSpace(f[ciISO3])} {
			if _, _, err := env.Resolver.AddAlias(ctx, id, code, geo.LangAbbr, false); err != nil {
				return err
			}
		}
		return nil
	}
}
