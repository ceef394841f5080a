package rollback

import (
	"context"
	"fmt"
	"strings"

	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/rs/zerolog"
)

const (
	// RestoredPrefix marks tables rebuilt from a snapshot.
	RestoredPrefix = "♻️ "
	// RebuiltIndexMarker is appended to the original index name when it is
	// given to the auto-generated index field of a rebuilt table.
	RebuiltIndexMarker = " (系统默认)"
)

type SkipReason string

const (
	SkipSystemField  SkipReason = "system field skipped"
	SkipComplexField SkipReason = "complex field unsupported"
)

type (
	SkippedField struct {
		TableName string              `json:"tableName"`
		FieldName string              `json:"fieldName"`
		Type      workspace.FieldType `json:"type"`
		Reason    SkipReason          `json:"reason"`
	}

	RestoredTable struct {
		OriginalName string `json:"originalName"`
		Name         string `json:"name"`
		TableID      string `json:"tableId"`
		FieldsAdded  int    `json:"fieldsAdded"`
	}

	// Report collects the outcome of a rollback. Errors renders every skip and
	// failure as one aggregated notice list.
	Report struct {
		Errors   []string        `json:"errors"`
		Skipped  []SkippedField  `json:"skipped"`
		Restored []RestoredTable `json:"restored"`
		Failures []error         `json:"-"`
	}
)

func (n SkippedField) String() string {
	return fmt.Sprintf("%s: %s.%s (%s)", n.Reason, n.TableName, n.FieldName, n.Type)
}

type RollbackTableError struct {
	TableName string
	Err       error
}

func (e *RollbackTableError) Error() string {
	return fmt.Sprintf("failed to restore table %q: %s", e.TableName, e.Err)
}

func (e *RollbackTableError) Unwrap() error {
	return e.Err
}

type RollbackFieldError struct {
	TableName string
	FieldName string
	Err       error
}

func (e *RollbackFieldError) Error() string {
	return fmt.Sprintf("failed to restore field %q of table %q: %s", e.FieldName, e.TableName, e.Err)
}

func (e *RollbackFieldError) Unwrap() error {
	return e.Err
}

func (r *Report) skip(n SkippedField) {
	r.Skipped = append(r.Skipped, n)
	r.Errors = append(r.Errors, n.String())
}

func (r *Report) fail(err error) {
	r.Failures = append(r.Failures, err)
	r.Errors = append(r.Errors, err.Error())
}

type Engine struct {
	gw workspace.Gateway
}

func NewEngine(gw workspace.Gateway) *Engine {
	return &Engine{gw: gw}
}

// Rollback rebuilds every snapshot table as a new table next to whatever
// exists. It only ever creates; existing tables are left alone. Each step is
// best-effort and failures are collected into the report. A nil snapshot
// restores nothing.
func (e *Engine) Rollback(ctx context.Context, snap *snapshot.Snapshot) Report {
	logger := zerolog.Ctx(ctx)
	report := Report{
		Errors:   []string{},
		Skipped:  []SkippedField{},
		Restored: []RestoredTable{},
	}
	if snap == nil {
		logger.Warn().Msg("rollback called without a snapshot")
		return report
	}

	taken := make(map[string]bool)
	existing, err := e.gw.ListTables(ctx)
	if err != nil {
		// names still get deduplicated against what we create, the host
		// rejects any remaining clash per table
		logger.Warn().Err(err).Msg("could not enumerate tables before rollback")
	}
	for _, t := range existing {
		taken[t.Name] = true
	}

	for _, st := range snap.Tables {
		name := RestoredName(st.TableName, taken)
		tableID, err := e.gw.CreateTable(ctx, name)
		if err != nil {
			report.fail(&RollbackTableError{TableName: st.TableName, Err: err})
			logger.Warn().Err(err).Str("table", st.TableName).Msg("could not create restored table")
			continue
		}
		taken[name] = true

		restored := RestoredTable{OriginalName: st.TableName, Name: name, TableID: tableID}
		// the new table's own index field stands in for the original one,
		// which is never recreated
		idx := st.IndexField()
		indexName := ""
		if idx >= 0 {
			indexName = st.Fields[idx].Name
		}
		if err := e.markIndexField(ctx, tableID, indexName); err != nil {
			report.fail(&RollbackFieldError{TableName: st.TableName, FieldName: "index", Err: err})
		}

		for i, f := range st.Fields {
			if i == idx {
				continue
			}
			switch {
			case f.Type.Blocked():
				report.skip(SkippedField{TableName: st.TableName, FieldName: f.Name, Type: f.Type, Reason: SkipSystemField})
				continue
			case f.Type.NonPortable():
				report.skip(SkippedField{TableName: st.TableName, FieldName: f.Name, Type: f.Type, Reason: SkipComplexField})
				continue
			}

			_, err := e.gw.CreateField(ctx, tableID, workspace.FieldSpec{
				Name:     f.Name,
				Type:     f.Type,
				Property: f.Property,
			})
			if err != nil {
				report.fail(&RollbackFieldError{TableName: st.TableName, FieldName: f.Name, Err: err})
				continue
			}
			restored.FieldsAdded++
		}
		report.Restored = append(report.Restored, restored)
	}

	logger.Info().Int("restored", len(report.Restored)).Int("skipped", len(report.Skipped)).Int("failures", len(report.Failures)).Msg("rollback finished")
	return report
}

// markIndexField renames the new table's auto-generated index field to
// MarkedIndexName(originalName), or marks its own name when the snapshot table
// had no fields. A field already carrying the target name is left alone.
func (e *Engine) markIndexField(ctx context.Context, tableID, originalName string) error {
	fields, err := e.gw.ListFields(ctx, tableID)
	if err != nil {
		return fmt.Errorf("error in ListFields: %w", err)
	}
	for _, f := range fields {
		if !f.IsIndex {
			continue
		}
		target := originalName
		if target == "" {
			target = f.Name
		}
		target = MarkedIndexName(target)
		if f.Name == target {
			return nil
		}
		if err := e.gw.RenameField(ctx, tableID, f.ID, target); err != nil {
			return fmt.Errorf("error in RenameField: %w", err)
		}
		return nil
	}
	return nil
}

// MarkedIndexName appends RebuiltIndexMarker unless the name already ends
// with it, so restoring a restored table does not stack markers.
func MarkedIndexName(name string) string {
	if strings.HasSuffix(name, RebuiltIndexMarker) {
		return name
	}
	return name + RebuiltIndexMarker
}

// RestoredName prefixes the original name and, on collision with a taken
// name, appends the smallest free " (n)" suffix.
func RestoredName(original string, taken map[string]bool) string {
	base := RestoredPrefix + original
	if !taken[base] {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
