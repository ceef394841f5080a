package planner

import (
	"fmt"

	"github.com/danthegoodman1/tablesweep/workspace"
)

type ActionKind string

const (
	ActionDeleteTable ActionKind = "deleteTable"
	ActionDeleteField ActionKind = "deleteField"
)

type (
	Action struct {
		Kind      ActionKind `json:"kind"`
		TableID   string     `json:"tableId"`
		TableName string     `json:"tableName"`
		FieldID   string     `json:"fieldId,omitempty"`
		FieldName string     `json:"fieldName,omitempty"`
	}

	DeletionPlan struct {
		// Actions holds every table deletion, then field deletions grouped by
		// table
		Actions []Action `json:"actions"`
		// RetainedTableID is set when the selection covered every table and
		// one had to be kept
		RetainedTableID   string   `json:"retainedTableId,omitempty"`
		RetainedTableName string   `json:"retainedTableName,omitempty"`
		Notices           []string `json:"notices,omitempty"`
	}
)

func (p DeletionPlan) Empty() bool {
	return len(p.Actions) == 0
}

// Counts returns the number of table and field deletions in the plan.
func (p DeletionPlan) Counts() (tables, fields int) {
	for _, a := range p.Actions {
		if a.Kind == ActionDeleteTable {
			tables++
		} else {
			fields++
		}
	}
	return
}

// Plan computes the deletion actions for a selection against the current
// workspace. The workspace always keeps at least one table: if every table is
// selected, the last one in enumeration order is retained and emptied of its
// non-index fields instead. Index fields are never targeted, and fields of
// tables deleted as a whole are not deleted separately.
func Plan(sel *Selection, current []workspace.TableDescriptor) DeletionPlan {
	var plan DeletionPlan

	toDelete := make(map[string]bool)
	var ordered []workspace.TableDescriptor
	for _, t := range current {
		if sel.TableSelected(t.ID) {
			toDelete[t.ID] = true
			ordered = append(ordered, t)
		}
	}

	if len(current) > 0 && len(ordered) >= len(current) {
		retained := ordered[len(ordered)-1]
		ordered = ordered[:len(ordered)-1]
		delete(toDelete, retained.ID)
		plan.RetainedTableID = retained.ID
		plan.RetainedTableName = retained.Name
		plan.Notices = append(plan.Notices, fmt.Sprintf(
			"a workspace must keep at least one table: %q is kept and its fields are cleared instead", retained.Name))
	}

	for _, t := range ordered {
		plan.Actions = append(plan.Actions, Action{
			Kind:      ActionDeleteTable,
			TableID:   t.ID,
			TableName: t.Name,
		})
	}

	for _, t := range current {
		if toDelete[t.ID] {
			continue
		}
		retained := t.ID == plan.RetainedTableID
		for _, f := range t.Fields {
			if f.IsIndex {
				continue
			}
			if retained || sel.FieldSelected(t.ID, f.ID) {
				plan.Actions = append(plan.Actions, Action{
					Kind:      ActionDeleteField,
					TableID:   t.ID,
					TableName: t.Name,
					FieldID:   f.ID,
					FieldName: f.Name,
				})
			}
		}
	}

	return plan
}
