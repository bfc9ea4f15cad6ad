package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/geotree/pkg/geo"
)

// codeIndex maps state codes to node ids as they get loaded.
type codeIndex map[string]int64

func countyHandler(r *Resolver, states codeIndex) HandlerFunc {
	return func(ctx context.Context, rec *PendingRecord, _ bool) error {
		parent, ok := states[rec.Fields[0]]
		if !ok {
			return &geo.ParentNotFoundError{Code: rec.Fields[0]}
		}
		_, err := r.ResolveEntity(ctx, geo.Entity{ParentID: parent, Name: rec.Fields[1], Kind: geo.KindCounty})
		return err
	}
}

func TestBatch_CountyBeforeState(t *testing.T) {
	ctx := context.Background()
	r, st, world := newTestResolver(t)
	b := NewBatch(quietLogger())
	states := codeIndex{}

	county := &PendingRecord{Kind: "county", Source: "counties.txt", Line: 1, Key: "XX.1", Fields: []string{"XX", "Lakeside"}}
	o, err := b.Process(ctx, county, countyHandler(r, states))
	require.NoError(t, err)
	assert.Equal(t, Queued, o)
	assert.Equal(t, 1, b.Pending())

	stateID, err := r.ResolveEntity(ctx, geo.Entity{ParentID: world, Name: "Xanadu", Kind: geo.KindState, Code: "XX"})
	require.NoError(t, err)
	states["XX"] = stateID

	require.NoError(t, b.Flush(ctx, "county", countyHandler(r, states)))

	kids, err := st.Children(ctx, stateID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "Lakeside", kids[0].Name)
	assert.Equal(t, 0, kids[0].SiblingIndex)
	assert.Equal(t, 2, county.Passes)

	s := b.Summary()
	assert.Equal(t, 1, s.Processed)
	assert.Equal(t, 1, s.Resolved)
	assert.Equal(t, 1, s.Retried)
	assert.Zero(t, s.Pending)
	require.NoError(t, s.Check())
}

func TestBatch_UnresolvedAfterReplay(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t)
	b := NewBatch(quietLogger())
	fn := countyHandler(r, codeIndex{})

	rec := &PendingRecord{Kind: "county", Source: "counties.txt", Line: 7, Key: "ZZ.9", Fields: []string{"ZZ", "Nowhere"}}
	o, err := b.Process(ctx, rec, fn)
	require.NoError(t, err)
	require.Equal(t, Queued, o)

	require.NoError(t, b.Flush(ctx, "county", fn))
	// A second flush has nothing left to replay.
	require.NoError(t, b.Flush(ctx, "county", fn))

	s := b.Summary()
	assert.Equal(t, 1, s.Failed)
	assert.Zero(t, s.Pending)
	require.Len(t, s.Errors, 1)
	var upe *geo.UnresolvedParentError
	require.ErrorAs(t, s.Errors[0], &upe)
	assert.Equal(t, 7, upe.Line)
	assert.Equal(t, "ZZ.9", upe.Key)
	var pnf *geo.ParentNotFoundError
	assert.ErrorAs(t, s.Errors[0], &pnf)
	assert.Equal(t, 2, rec.Passes)
	require.NoError(t, s.Check())
}

func TestBatch_FlushOnlyTouchesKind(t *testing.T) {
	ctx := context.Background()
	b := NewBatch(quietLogger())
	missing := func(context.Context, *PendingRecord, bool) error {
		return &geo.ParentNotFoundError{Code: "X"}
	}
	_, err := b.Process(ctx, &PendingRecord{Kind: "county", Line: 1}, missing)
	require.NoError(t, err)
	_, err = b.Process(ctx, &PendingRecord{Kind: "city", Line: 2}, missing)
	require.NoError(t, err)

	require.NoError(t, b.Flush(ctx, "county", missing))
	s := b.Summary()
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Failed)
	require.NoError(t, s.Check())
}

func TestBatch_OutcomesAccounted(t *testing.T) {
	ctx := context.Background()
	b := NewBatch(quietLogger())
	seen := map[Outcome]int{}
	b.OnOutcome = func(_ string, o Outcome) { seen[o]++ }

	fn := func(_ context.Context, rec *PendingRecord, allowDelay bool) error {
		switch rec.Line % 4 {
		case 0:
			return nil
		case 1:
			return fmt.Errorf("language filter: %w", ErrSkip)
		case 2:
			return &geo.RecordError{Source: rec.Source, Line: rec.Line, Err: errors.New("bad field count")}
		default:
			if allowDelay {
				return &geo.ParentNotFoundError{ParentID: 9}
			}
			return nil
		}
	}
	for i := 0; i < 12; i++ {
		_, err := b.Process(ctx, &PendingRecord{Kind: "city", Source: "cities.txt", Line: i}, fn)
		require.NoError(t, err)
	}
	require.NoError(t, b.Summary().Check())
	require.NoError(t, b.Flush(ctx, "city", fn))

	s := b.Summary()
	assert.Equal(t, 12, s.Processed)
	assert.Equal(t, 6, s.Resolved)
	assert.Equal(t, 3, s.Skipped)
	assert.Equal(t, 3, s.Failed)
	assert.Zero(t, s.Pending)
	require.NoError(t, s.Check())
	assert.Equal(t, map[Outcome]int{Resolved: 6, Skipped: 3, Failed: 3, Queued: 3}, seen)
}

func TestBatch_FatalErrorStops(t *testing.T) {
	ctx := context.Background()
	b := NewBatch(quietLogger())
	boom := &geo.AliasWriteError{NodeID: 1, Text: "x", Err: errors.New("io")}
	o, err := b.Process(ctx, &PendingRecord{Kind: "city", Source: "c.txt", Line: 3, Key: "k"}, func(context.Context, *PendingRecord, bool) error {
		return boom
	})
	assert.Equal(t, Failed, o)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, b.Summary().Check())
}

func TestBatch_FatalDuringFlushKeepsRestPending(t *testing.T) {
	ctx := context.Background()
	b := NewBatch(quietLogger())
	missing := func(context.Context, *PendingRecord, bool) error { return &geo.ParentNotFoundError{} }
	for i := 0; i < 3; i++ {
		_, err := b.Process(ctx, &PendingRecord{Kind: "state", Line: i}, missing)
		require.NoError(t, err)
	}
	storeDown := errors.New("connection reset")
	err := b.Flush(ctx, "state", func(context.Context, *PendingRecord, bool) error { return storeDown })
	require.ErrorIs(t, err, storeDown)

	s := b.Summary()
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Pending)
	require.NoError(t, s.Check())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "queued", Queued.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "skipped", Skipped.String())
}
