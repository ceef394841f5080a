package planner

import (
	"sort"

	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/hashicorp/go-set/v2"
)

// Selection is the set of tables picked for deletion plus, per table, the set
// of fields picked for deletion. A table never maps to an empty field set.
type Selection struct {
	tables *set.Set[string]
	fields map[string]*set.Set[string]
}

func NewSelection() *Selection {
	return &Selection{
		tables: set.New[string](0),
		fields: make(map[string]*set.Set[string]),
	}
}

func (s *Selection) SelectTable(tableID string) {
	s.tables.Insert(tableID)
}

func (s *Selection) DeselectTable(tableID string) {
	s.tables.Remove(tableID)
}

// ToggleTable flips the table and returns whether it is now selected.
func (s *Selection) ToggleTable(tableID string) bool {
	if s.tables.Contains(tableID) {
		s.tables.Remove(tableID)
		return false
	}
	s.tables.Insert(tableID)
	return true
}

func (s *Selection) TableSelected(tableID string) bool {
	return s.tables.Contains(tableID)
}

func (s *Selection) SelectField(tableID, fieldID string) {
	fs, ok := s.fields[tableID]
	if !ok {
		fs = set.New[string](1)
		s.fields[tableID] = fs
	}
	fs.Insert(fieldID)
}

// DeselectField removes the field and drops the table entry once it is empty.
func (s *Selection) DeselectField(tableID, fieldID string) {
	fs, ok := s.fields[tableID]
	if !ok {
		return
	}
	fs.Remove(fieldID)
	if fs.Empty() {
		delete(s.fields, tableID)
	}
}

func (s *Selection) ToggleField(tableID, fieldID string) bool {
	if s.FieldSelected(tableID, fieldID) {
		s.DeselectField(tableID, fieldID)
		return false
	}
	s.SelectField(tableID, fieldID)
	return true
}

func (s *Selection) FieldSelected(tableID, fieldID string) bool {
	fs, ok := s.fields[tableID]
	return ok && fs.Contains(fieldID)
}

// SelectAllFields selects every given field of the table, typically all of
// its non-index fields.
func (s *Selection) SelectAllFields(tableID string, fieldIDs []string) {
	for _, id := range fieldIDs {
		s.SelectField(tableID, id)
	}
}

// DeselectAllFields drops the table's field entry.
func (s *Selection) DeselectAllFields(tableID string) {
	delete(s.fields, tableID)
}

func (s *Selection) Clear() {
	s.tables = set.New[string](0)
	s.fields = make(map[string]*set.Set[string])
}

func (s *Selection) IsEmpty() bool {
	return s.tables.Empty() && len(s.fields) == 0
}

// TableIDs returns the selected table ids, sorted.
func (s *Selection) TableIDs() []string {
	ids := s.tables.Slice()
	sort.Strings(ids)
	return ids
}

// FieldTables returns the ids of tables with selected fields, sorted.
func (s *Selection) FieldTables() []string {
	ids := make([]string, 0, len(s.fields))
	for id := range s.fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FieldIDs returns the selected field ids of a table, sorted.
func (s *Selection) FieldIDs(tableID string) []string {
	fs, ok := s.fields[tableID]
	if !ok {
		return nil
	}
	ids := fs.Slice()
	sort.Strings(ids)
	return ids
}

// Count returns the number of selected tables and selected fields.
func (s *Selection) Count() (tables, fields int) {
	for _, fs := range s.fields {
		fields += fs.Size()
	}
	return s.tables.Size(), fields
}

func (s *Selection) Clone() *Selection {
	c := &Selection{
		tables: s.tables.Copy(),
		fields: make(map[string]*set.Set[string], len(s.fields)),
	}
	for id, fs := range s.fields {
		c.fields[id] = fs.Copy()
	}
	return c
}

// Merge adds everything selected in other.
func (s *Selection) Merge(other *Selection) {
	s.tables.InsertSlice(other.tables.Slice())
	for id, fs := range other.fields {
		if fs.Empty() {
			continue
		}
		if mine, ok := s.fields[id]; ok {
			mine.InsertSlice(fs.Slice())
		} else {
			s.fields[id] = fs.Copy()
		}
	}
}

// Prune drops ids that no longer exist in the workspace, and field entries
// left empty by that.
func (s *Selection) Prune(current []workspace.TableDescriptor) {
	tables := set.New[string](len(current))
	fieldsByTable := make(map[string]*set.Set[string], len(current))
	for _, t := range current {
		tables.Insert(t.ID)
		fs := set.New[string](len(t.Fields))
		for _, f := range t.Fields {
			fs.Insert(f.ID)
		}
		fieldsByTable[t.ID] = fs
	}

	for _, id := range s.tables.Slice() {
		if !tables.Contains(id) {
			s.tables.Remove(id)
		}
	}
	for id, fs := range s.fields {
		existing, ok := fieldsByTable[id]
		if !ok {
			delete(s.fields, id)
			continue
		}
		for _, fieldID := range fs.Slice() {
			if !existing.Contains(fieldID) {
				fs.Remove(fieldID)
			}
		}
		if fs.Empty() {
			delete(s.fields, id)
		}
	}
}

// SelectionView is the wire form of a Selection.
type SelectionView struct {
	Tables []string            `json:"selectedTables"`
	Fields map[string][]string `json:"selectedFields"`
}

func (s *Selection) View() SelectionView {
	v := SelectionView{
		Tables: s.TableIDs(),
		Fields: make(map[string][]string, len(s.fields)),
	}
	for _, id := range s.FieldTables() {
		v.Fields[id] = s.FieldIDs(id)
	}
	return v
}

func SelectionFromView(v SelectionView) *Selection {
	s := NewSelection()
	for _, id := range v.Tables {
		s.SelectTable(id)
	}
	for tableID, fieldIDs := range v.Fields {
		s.SelectAllFields(tableID, fieldIDs)
	}
	return s
}
