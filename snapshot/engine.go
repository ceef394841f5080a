package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/rs/zerolog"
)

// CaptureError means the workspace could not be fully enumerated. No snapshot
// is produced.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("snapshot capture failed: %s", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

type Engine struct {
	gw  workspace.Gateway
	now func() time.Time
}

func NewEngine(gw workspace.Gateway) *Engine {
	return &Engine{
		gw:  gw,
		now: time.Now,
	}
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Capture enumerates every table and field into a new Snapshot. Persisting
// the result is the caller's job.
func (e *Engine) Capture(ctx context.Context, label string) (*Snapshot, error) {
	logger := zerolog.Ctx(ctx)

	tables, err := workspace.Describe(ctx, e.gw)
	if err != nil {
		return nil, &CaptureError{Err: err}
	}

	snap := &Snapshot{
		Label:     label,
		Timestamp: e.now().UTC().Format(time.RFC3339Nano),
		Tables:    make([]Table, 0, len(tables)),
	}
	for _, t := range tables {
		st := Table{
			TableID:   t.ID,
			TableName: t.Name,
			Fields:    make([]Field, 0, len(t.Fields)),
		}
		for _, f := range t.Fields {
			prop, err := CopyProperty(f.Property)
			if err != nil {
				logger.Warn().Err(err).Str("tableID", t.ID).Str("fieldID", f.ID).Msg("could not copy field property, keeping original")
				prop = f.Property
			}
			st.Fields = append(st.Fields, Field{
				ID:       f.ID,
				Name:     f.Name,
				Type:     f.Type,
				Property: prop,
				IsIndex:  f.IsIndex,
			})
		}
		snap.Tables = append(snap.Tables, st)
	}

	logger.Debug().Str("label", label).Int("tables", len(snap.Tables)).Int("fields", snap.FieldCount()).Msg("captured snapshot")
	return snap, nil
}

// CopyProperty deep-copies an arbitrarily nested property payload by
// re-encoding it, which also normalizes it to the shape Unmarshal yields
// (numbers as json.Number).
func CopyProperty(prop any) (any, error) {
	if prop == nil {
		return nil, nil
	}
	b, err := json.Marshal(prop)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal: %w", err)
	}
	var out any
	if err := decodeJSON(b, &out); err != nil {
		return nil, fmt.Errorf("error decoding property: %w", err)
	}
	return out, nil
}
