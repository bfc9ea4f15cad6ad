package importer

import (
	"context"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/resolve"
)

func init() {
	Register(&geonamesAdminAdapter{
		id:        "geonames-admin1",
		kind:      geo.KindState,
		parent:    geo.KindCountry,
		file:      "admin1CodesASCII.txt",
		desc:      "GeoNames first-order administrative divisions",
		dependsOn: "geonames-countries",
	})
	Register(&geonamesAdminAdapter{
		id:        "geonames-admin2",
		kind:      geo.KindCounty,
		parent:    geo.KindState,
		file:      "admin2Codes.txt",
		desc:      "GeoNames second-order administrative divisions",
		dependsOn: "geonames-admin1",
	})
}

// admin code files: code, name, asciiname, geonameid.
const (
	adCode      = 0
	adName      = 1
	adASCII     = 2
	adGeonameID = 3
	adFields    = 4
)

// geonamesAdminAdapter reads admin1CodesASCII.txt and admin2Codes.txt. Both
// key a division by its dotted code ("US.CA", "US.CA.037"); the parent is
// the code without its last segment. A missing parent is never replaced by
// a coarser one: the record waits for the replay pass and then fails.
type geonamesAdminAdapter struct {
	id, file, desc, dependsOn string
	kind, parent              geo.Kind
}

func (a *geonamesAdminAdapter) ID() string          { return a.id }
func (a *geonamesAdminAdapter) Kind() string        { return string(a.kind) }
func (a *geonamesAdminAdapter) Description() string { return a.desc }
func (a *geonamesAdminAdapter) DefaultURL() string {
	return "https://download.geonames.org/export/dump/" + a.file
}
func (a *geonamesAdminAdapter) License() string     { return "CC-BY 4.0" }
func (a *geonamesAdminAdapter) DependsOn() []string { return []string{a.dependsOn} }

func (a *geonamesAdminAdapter) Import(ctx context.Context, env *Env, sourceURL string) error {
	path, cleanup, err := fetchFeed(ctx, sourceURL, env.WorkDir, a.file)
	if err != nil {
		return err
	}
	defer cleanup()
	return env.processFeed(ctx, path, a.Kind(), adFields, a.handle(env))
}

func (a *geonamesAdminAdapter) handle(env *Env) resolve.HandlerFunc {
	return func(ctx context.Context, rec *resolve.PendingRecord, _ bool) error {
		f := rec.Fields
		code := strings.TrimSpace(f[adCode])
		cut := strings.LastIndexByte(code, '.')
		if cut <= 0 {
			return &geo.RecordError{Source: rec.Source, Line: rec.Line, Err: errBadCode(code)}
		}
		parentCode := code[:cut]
		gid, err := parseID(rec.Source, rec.Line, "geonameid", f[adGeonameID])
		if err != nil {
			return err
		}

		parent, ok, err := env.ByCode(ctx, a.parent, parentCode)
		if err != nil {
			return err
		}
		if !ok {
			return &geo.ParentNotFoundError{Code: parentCode}
		}

		id, err := env.Resolver.ResolveEntity(ctx, geo.Entity{
			ParentID:  parent,
			Name:      f[adName],
			Kind:      a.kind,
			Code:      code,
			GeonameID: gid,
		})
		if err != nil {
			return err
		}
		_, _, err = env.Resolver.AddAlias(ctx, id, f[adASCII], geo.LangSystem, false)
		return err
	}
}
