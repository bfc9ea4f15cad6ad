package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/resolve"
)

func init() {
	Register(&geonamesAlternatesAdapter{})
}

// alternateNamesV2.txt columns.
const (
	anGeonameID = 1
	anLanguage  = 2
	anName      = 3
	anPreferred = 4
	anHistoric  = 7
	anFields    = 8
)

// pseudoLanguages carry codes and links rather than names.
var pseudoLanguages = map[string]struct{}{
	"link": {}, "post": {}, "iata": {}, "icao": {}, "faac": {},
	"fr_1793": {}, "wkdt": {}, "unlc": {}, "phon": {}, "piny": {},
}

type geonamesAlternatesAdapter struct{}

func (a *geonamesAlternatesAdapter) ID() string   { return "geonames-alternates" }
func (a *geonamesAlternatesAdapter) Kind() string { return "alias" }
func (a *geonamesAlternatesAdapter) Description() string {
	return "GeoNames alternate names in all languages"
}
func (a *geonamesAlternatesAdapter) DefaultURL() string {
	return "https://download.geonames.org/export/dump/alternateNamesV2.zip"
}
func (a *geonamesAlternatesAdapter) License() string     { return "CC-BY 4.0" }
func (a *geonamesAlternatesAdapter) DependsOn() []string { return []string{"geonames-cities"} }

func (a *geonamesAlternatesAdapter) Import(ctx context.Context, env *Env, sourceURL string) error {
	path, cleanup, err := fetchFeed(ctx, sourceURL, env.WorkDir, "alternateNamesV2.txt")
	if err != nil {
		return err
	}
	defer cleanup()
	return env.processFeed(ctx, path, a.Kind(), anFields, a.handle(env))
}

func (a *geonamesAlternatesAdapter) handle(env *Env) resolve.HandlerFunc {
	return func(ctx context.Context, rec *resolve.PendingRecord, _ bool) error {
		f := rec.Fields
		lang := strings.ToLower(strings.TrimSpace(f[anLanguage]))
		if _, skip := pseudoLanguages[lang]; skip {
			return fmt.Errorf("pseudo language %q: %w", lang, resolve.ErrSkip)
		}
		if lang != "" && lang != geo.LangAbbr && !env.WantLanguage(lang) {
			return fmt.Errorf("language %q filtered: %w", lang, resolve.ErrSkip)
		}
		if env.Options.SkipHistoric && f[anHistoric] == "1" {
			return fmt.Errorf("historic name: %w", resolve.ErrSkip)
		}

		gid, err := parseID(rec.Source, rec.Line, "geonameid", f[anGeonameID])
		if err != nil {
			return err
		}
		node, ok, err := env.Lookup.FindByGeonameID(ctx, gid)
		if err != nil {
			return fmt.Errorf("find geoname %d: %w", gid, err)
		}
		if !ok {
			// Most alternate names belong to features this import never loads.
			return fmt.Errorf("geoname %d not imported: %w", gid, resolve.ErrSkip)
		}

		_, _, err = env.Resolver.AddAlias(ctx, node, f[anName], lang, f[anPreferred] == "1")
		return err
	}
}
