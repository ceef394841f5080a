package rollback

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/workspace"
)

func seedMixed(m *workspace.Memory) {
	m.Seed("Tasks", "Text",
		workspace.FieldSpec{Name: "Owner", Type: workspace.FieldTypeUser},
		workspace.FieldSpec{Name: "Due", Type: workspace.FieldTypeDateTime, Property: map[string]any{"dateFormat": "yyyy/MM/dd"}},
		workspace.FieldSpec{Name: "Created", Type: workspace.FieldTypeCreatedTime},
		workspace.FieldSpec{Name: "Seq", Type: workspace.FieldTypeAutoNumber},
		workspace.FieldSpec{Name: "Project", Type: workspace.FieldTypeSingleLink},
		workspace.FieldSpec{Name: "Score", Type: workspace.FieldTypeFormula},
	)
	m.Seed("Notes", "Subject",
		workspace.FieldSpec{Name: "Body", Type: workspace.FieldTypeText},
		workspace.FieldSpec{Name: "Tags", Type: workspace.FieldTypeMultiSelect, Property: map[string]any{"options": []any{map[string]any{"name": "x"}}}},
	)
}

type nameType struct {
	name string
	typ  workspace.FieldType
}

func fieldSet(fields []workspace.FieldDescriptor, skipMarked bool) []nameType {
	var out []nameType
	for _, f := range fields {
		if skipMarked && strings.HasSuffix(f.Name, RebuiltIndexMarker) {
			continue
		}
		out = append(out, nameType{f.Name, f.Type})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func TestCaptureThenRollbackReconstructsPortableStructure(t *testing.T) {
	ctx := context.Background()
	m := workspace.NewMemory()
	seedMixed(m)

	snap, err := snapshot.NewEngine(m).Capture(ctx, "before")
	if err != nil {
		t.Fatal(err)
	}
	report := NewEngine(m).Rollback(ctx, snap)

	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", report.Errors)
	}
	if len(report.Restored) != 2 {
		t.Fatalf("expected 2 restored tables, got %+v", report.Restored)
	}

	tables, _ := workspace.Describe(ctx, m)
	byName := map[string]workspace.TableDescriptor{}
	for _, tbl := range tables {
		byName[tbl.Name] = tbl
	}

	for _, st := range snap.Tables {
		restored, ok := byName[RestoredPrefix+st.TableName]
		if !ok {
			t.Fatalf("missing restored table for %s", st.TableName)
		}

		var want []workspace.FieldDescriptor
		for _, f := range st.Fields {
			if f.IsIndex || f.Type.Blocked() || f.Type.NonPortable() {
				continue
			}
			want = append(want, workspace.FieldDescriptor{Name: f.Name, Type: f.Type})
		}
		got := fieldSet(restored.Fields, true)
		if len(got) != len(want) {
			t.Fatalf("%s: expected %v got %v", st.TableName, fieldSet(want, false), got)
		}
		for i, nt := range fieldSet(want, false) {
			if got[i] != nt {
				t.Fatalf("%s: expected %v got %v", st.TableName, nt, got[i])
			}
		}

		idx, _ := restored.IndexField()
		original := st.Fields[st.IndexField()]
		if !original.IsIndex || idx.Name != original.Name+RebuiltIndexMarker {
			t.Fatalf("%s: index field should carry the original index name, got %s", st.TableName, idx.Name)
		}
	}

	if len(report.Skipped) != 4 {
		t.Fatalf("expected 4 skipped fields, got %+v", report.Skipped)
	}
	reasons := map[string]SkipReason{}
	for _, s := range report.Skipped {
		reasons[s.FieldName] = s.Reason
	}
	if reasons["Created"] != SkipSystemField || reasons["Seq"] != SkipSystemField {
		t.Fatal("system fields should be reported as such")
	}
	if reasons["Project"] != SkipComplexField || reasons["Score"] != SkipComplexField {
		t.Fatal("complex fields should be reported as such")
	}
	if len(report.Errors) != 4 {
		t.Fatalf("aggregated notices should hold the skips: %v", report.Errors)
	}

	// originals untouched
	if len(byName["Tasks"].Fields) != 7 || len(byName["Notes"].Fields) != 3 {
		t.Fatal("rollback must not mutate existing tables")
	}
}

func TestRollbackSkipsEachBlockedField(t *testing.T) {
	ctx := context.Background()
	m := workspace.NewMemory()
	snap := &snapshot.Snapshot{
		Label: "x",
		Tables: []snapshot.Table{{
			TableName: "Log",
			Fields: []snapshot.Field{
				{Name: "Text", Type: workspace.FieldTypeText, IsIndex: true},
				{Name: "At", Type: workspace.FieldTypeCreatedTime},
				{Name: "At2", Type: workspace.FieldTypeCreatedTime},
			},
		}},
	}
	report := NewEngine(m).Rollback(ctx, snap)
	if len(report.Skipped) != 2 {
		t.Fatalf("expected one skip note per CreatedTime field, got %+v", report.Skipped)
	}
	for _, s := range report.Skipped {
		if s.Reason != SkipSystemField || s.Type != workspace.FieldTypeCreatedTime {
			t.Fatalf("unexpected skip %+v", s)
		}
	}
	if len(report.Failures) != 0 || report.Restored[0].FieldsAdded != 0 {
		t.Fatalf("the index field should not be recreated: %v", report.Errors)
	}
}

func TestRestoredNamesNeverCollide(t *testing.T) {
	ctx := context.Background()
	m := workspace.NewMemory()
	m.Seed(RestoredPrefix+"Orders", "Title")
	snap := &snapshot.Snapshot{Tables: []snapshot.Table{
		{TableName: "Orders", Fields: []snapshot.Field{}},
		{TableName: "Orders", Fields: []snapshot.Field{}},
		{TableName: "Other", Fields: []snapshot.Field{}},
	}}

	report := NewEngine(m).Rollback(ctx, snap)
	if len(report.Failures) != 0 {
		t.Fatal(report.Errors)
	}
	names := []string{report.Restored[0].Name, report.Restored[1].Name, report.Restored[2].Name}
	expected := []string{RestoredPrefix + "Orders (1)", RestoredPrefix + "Orders (2)", RestoredPrefix + "Other"}
	for i := range expected {
		if names[i] != expected[i] {
			t.Fatalf("expected %v got %v", expected, names)
		}
	}
}

func TestRestoredName(t *testing.T) {
	taken := map[string]bool{}
	if RestoredName("A", taken) != "♻️ A" {
		t.Fatal("unexpected base name")
	}
	taken["♻️ A"] = true
	taken["♻️ A (1)"] = true
	taken["♻️ A (3)"] = true
	if got := RestoredName("A", taken); got != "♻️ A (2)" {
		t.Fatalf("expected smallest free suffix, got %s", got)
	}
}

func TestRollbackTableFailureOnlyAffectsThatTable(t *testing.T) {
	ctx := context.Background()
	m := workspace.NewMemory()
	m.FailOn(workspace.OpCreateTable, RestoredPrefix+"B", errors.New("quota"))
	m.FailOn(workspace.OpCreateField, "broken", errors.New("host rejected"))
	snap := &snapshot.Snapshot{Tables: []snapshot.Table{
		{TableName: "A", Fields: []snapshot.Field{
			{Name: "Title", Type: workspace.FieldTypeText, IsIndex: true},
			{Name: "broken", Type: workspace.FieldTypeText},
			{Name: "fine", Type: workspace.FieldTypeNumber},
		}},
		{TableName: "B", Fields: []snapshot.Field{{Name: "x", Type: workspace.FieldTypeText, IsIndex: true}}},
		{TableName: "C", Fields: []snapshot.Field{{Name: "y", Type: workspace.FieldTypeText, IsIndex: true}}},
	}}

	report := NewEngine(m).Rollback(ctx, snap)
	if len(report.Restored) != 2 || report.Restored[1].OriginalName != "C" {
		t.Fatalf("expected A and C restored, got %+v", report.Restored)
	}
	if report.Restored[0].FieldsAdded != 1 {
		t.Fatal("field failure should not stop the next field")
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", report.Errors)
	}
	var tblErr *RollbackTableError
	var fldErr *RollbackFieldError
	if !errors.As(report.Failures[0], &fldErr) || fldErr.FieldName != "broken" {
		t.Fatalf("expected field error first, got %v", report.Failures[0])
	}
	if !errors.As(report.Failures[1], &tblErr) || tblErr.TableName != "B" {
		t.Fatalf("expected table error for B, got %v", report.Failures[1])
	}
}

type premarkedGateway struct {
	*workspace.Memory
}

func (g premarkedGateway) CreateTable(_ context.Context, name string) (string, error) {
	return g.Seed(name, "Primary"+RebuiltIndexMarker), nil
}

func TestIndexMarkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := workspace.NewMemory()
	gw := premarkedGateway{m}
	snap := &snapshot.Snapshot{Tables: []snapshot.Table{{TableName: "A", Fields: []snapshot.Field{}}}}

	report := NewEngine(gw).Rollback(ctx, snap)
	if len(report.Failures) != 0 {
		t.Fatal(report.Errors)
	}
	for _, c := range m.Calls() {
		if strings.HasPrefix(c, workspace.OpRenameField) {
			t.Fatal("already marked index field should not be renamed")
		}
	}
	fields, _ := m.ListFields(ctx, report.Restored[0].TableID)
	if fields[0].Name != "Primary"+RebuiltIndexMarker {
		t.Fatalf("unexpected index name %s", fields[0].Name)
	}
}

func TestRollbackOfRestoredTableKeepsSingleMarker(t *testing.T) {
	ctx := context.Background()
	m := workspace.NewMemory()
	m.Seed("A", "Text", workspace.FieldSpec{Name: "Body", Type: workspace.FieldTypeText})
	engine := snapshot.NewEngine(m)

	first, err := engine.Capture(ctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	if report := NewEngine(m).Rollback(ctx, first); len(report.Errors) != 0 {
		t.Fatalf("first rollback: %v", report.Errors)
	}

	// the second capture holds the restored table with its marked index
	second, err := engine.Capture(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}
	report := NewEngine(m).Rollback(ctx, second)
	if len(report.Errors) != 0 {
		t.Fatalf("second rollback: %v", report.Errors)
	}
	if len(report.Restored) != 2 {
		t.Fatalf("expected both tables restored, got %+v", report.Restored)
	}

	for _, r := range report.Restored {
		fields, err := m.ListFields(ctx, r.TableID)
		if err != nil {
			t.Fatal(err)
		}
		if len(fields) != 2 || !fields[0].IsIndex || fields[1].Name != "Body" {
			t.Fatalf("%s: unexpected fields %+v", r.Name, fields)
		}
		if fields[0].Name != "Text"+RebuiltIndexMarker {
			t.Fatalf("%s: marker should not stack, got %q", r.Name, fields[0].Name)
		}
	}
}

func TestLegacySnapshotTreatsFirstFieldAsIndex(t *testing.T) {
	ctx := context.Background()
	m := workspace.NewMemory()
	snap := &snapshot.Snapshot{Tables: []snapshot.Table{{
		TableName: "Old",
		Fields: []snapshot.Field{
			{Name: "Subject", Type: workspace.FieldTypeText},
			{Name: "Notes", Type: workspace.FieldTypeText},
		},
	}}}

	report := NewEngine(m).Rollback(ctx, snap)
	if len(report.Failures) != 0 || report.Restored[0].FieldsAdded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	fields, _ := m.ListFields(ctx, report.Restored[0].TableID)
	if fields[0].Name != "Subject"+RebuiltIndexMarker || fields[1].Name != "Notes" {
		t.Fatalf("unexpected fields %+v", fields)
	}
}

func TestRollbackNilSnapshot(t *testing.T) {
	m := workspace.NewMemory()
	report := NewEngine(m).Rollback(context.Background(), nil)
	if len(report.Restored) != 0 || len(report.Errors) != 0 {
		t.Fatalf("expected an empty report, got %+v", report)
	}
	if len(m.Calls()) != 0 {
		t.Fatal("nothing should be created")
	}
}
