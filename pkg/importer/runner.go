package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/geotree/pkg/resolve"
	"github.com/hazyhaar/geotree/pkg/store"
)

// Runner executes adapters in dependency order against one store, sharing
// a single resolver so its caches span the whole run.
type Runner struct {
	Store   store.Store
	Sources *SourceDB // optional: URL overrides and run history
	// Input, when set, is a directory holding the feed files; it replaces
	// every remote URL.
	Input   string
	WorkDir string
	Logger  *slog.Logger
	Options Options
	Resolve resolve.Options

	resolver *resolve.Resolver
	env      *Env
}

// AdapterReport is the outcome of one adapter in a run.
type AdapterReport struct {
	Adapter  string          `yaml:"adapter" json:"adapter"`
	RunID    string          `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Source   string          `yaml:"source,omitempty" json:"source,omitempty"`
	Duration time.Duration   `yaml:"duration" json:"duration"`
	Summary  resolve.Summary `yaml:"summary" json:"summary"`
	Errors   []string        `yaml:"errors,omitempty" json:"errors,omitempty"`
	Status   string          `yaml:"status" json:"status"`
}

// Report is the outcome of a run.
type Report struct {
	Adapters []AdapterReport `yaml:"adapters" json:"adapters"`
	Stats    resolve.Stats   `yaml:"stats" json:"stats"`
}

// Failed is the number of records that ended Failed across adapters.
func (r *Report) Failed() int {
	n := 0
	for _, a := range r.Adapters {
		n += a.Summary.Failed
	}
	return n
}

// Env returns the import environment, creating the run's resolver on first
// use. The sheet importer shares it with the feed adapters.
func (r *Runner) Env() *Env {
	if r.env == nil {
		if r.Logger == nil {
			r.Logger = slog.Default()
		}
		if r.Resolve.Logger == nil {
			r.Resolve.Logger = r.Logger
		}
		r.resolver = resolve.New(r.Store, r.Resolve)
		r.env = NewEnv(r.resolver, r.Store, r.WorkDir, r.Logger, r.Options)
	}
	return r.env
}

// Run imports list in dependency order. It stops at the first adapter that
// returns an error; per-record failures only show in the report.
func (r *Runner) Run(ctx context.Context, list []Adapter) (*Report, error) {
	env := r.Env()
	ordered, err := Order(list)
	if err != nil {
		return nil, err
	}
	if r.Sources != nil {
		if err := r.Sources.Seed(ordered); err != nil {
			return nil, err
		}
	}

	report := &Report{}
	for _, a := range ordered {
		ar, err := r.runOne(ctx, env, a)
		report.Adapters = append(report.Adapters, ar)
		report.Stats = r.resolver.Stats()
		if err != nil {
			r.writeReport(report)
			return report, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	r.writeReport(report)
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, env *Env, a Adapter) (AdapterReport, error) {
	ar := AdapterReport{Adapter: a.ID()}
	source, err := r.sourceURL(a)
	if err != nil {
		ar.Status = RunFailed
		return ar, err
	}
	ar.Source = source

	if r.Sources != nil {
		id, err := r.Sources.StartRun(a.ID(), source)
		if err != nil {
			ar.Status = RunFailed
			return ar, err
		}
		ar.RunID = id
	}

	env.resetBatch()
	env.Batch.OnOutcome = observeOutcome
	before := r.resolver.Stats()
	start := time.Now()
	r.Logger.Info("import started", "adapter", a.ID(), "source", source)

	importErr := a.Import(ctx, env, source)

	ar.Duration = time.Since(start)
	ar.Summary = env.Batch.Summary()
	for _, e := range ar.Summary.Errors {
		ar.Errors = append(ar.Errors, e.Error())
	}
	importDuration.WithLabelValues(a.ID()).Observe(ar.Duration.Seconds())
	observeStats(before, r.resolver.Stats())

	switch {
	case importErr != nil:
		ar.Status = RunFailed
	case ar.Summary.Failed > 0:
		ar.Status = RunPartial
	default:
		ar.Status = RunOK
	}
	if importErr == nil {
		if err := ar.Summary.Check(); err != nil {
			r.Logger.Error("import summary inconsistent", "adapter", a.ID(), "error", err)
		}
	}

	r.Logger.Info("import finished",
		"adapter", a.ID(),
		"status", ar.Status,
		"processed", ar.Summary.Processed,
		"resolved", ar.Summary.Resolved,
		"failed", ar.Summary.Failed,
		"skipped", ar.Summary.Skipped,
		"duration", ar.Duration.Round(time.Millisecond),
	)

	if r.Sources != nil {
		run := Run{
			ID:        ar.RunID,
			Status:    ar.Status,
			Processed: ar.Summary.Processed,
			Resolved:  ar.Summary.Resolved,
			Failed:    ar.Summary.Failed,
			Skipped:   ar.Summary.Skipped,
		}
		if importErr != nil {
			run.Error = importErr.Error()
		}
		if err := r.Sources.FinishRun(run); err != nil {
			r.Logger.Error("record run", "adapter", a.ID(), "error", err)
		}
	}
	return ar, importErr
}

// sourceURL picks where an adapter reads from: the input directory, the
// source DB override, then the adapter default.
func (r *Runner) sourceURL(a Adapter) (string, error) {
	def := a.DefaultURL()
	if def == "" {
		return "", nil
	}
	if r.Input != "" {
		base := path.Base(def)
		candidates := []string{filepath.Join(r.Input, base)}
		if strings.HasSuffix(base, ".zip") {
			candidates = append(candidates, filepath.Join(r.Input, strings.TrimSuffix(base, ".zip")+".txt"))
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				return c, nil
			}
		}
		return "", fmt.Errorf("%s not found in %s", base, r.Input)
	}
	if r.Sources != nil {
		u, err := r.Sources.GetURL(a.ID())
		if err != nil {
			return "", err
		}
		return u, nil
	}
	return def, nil
}

func (r *Runner) writeReport(report *Report) {
	if r.WorkDir == "" {
		return
	}
	if err := writeReport(r.WorkDir, report); err != nil {
		r.Logger.Warn("write import report", "error", err)
	}
}
