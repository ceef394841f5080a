package planner

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/rs/zerolog"
)

// PlanExecutionError is the failure of a single plan action. It never aborts
// the rest of the plan.
type PlanExecutionError struct {
	Action Action
	Err    error
}

func (e *PlanExecutionError) Error() string {
	if e.Action.Kind == ActionDeleteTable {
		return fmt.Sprintf("failed to delete table %q: %s", e.Action.TableName, e.Err)
	}
	return fmt.Sprintf("failed to delete field %q of table %q: %s", e.Action.FieldName, e.Action.TableName, e.Err)
}

func (e *PlanExecutionError) Unwrap() error {
	return e.Err
}

type ExecutionReport struct {
	TablesDeleted int
	FieldsDeleted int
	Errors        []*PlanExecutionError
}

func (r ExecutionReport) Failed() bool {
	return len(r.Errors) > 0
}

// Messages renders every failure for a single aggregated notice.
func (r ExecutionReport) Messages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

// Execute runs the plan one awaited action at a time: table deletions, then
// field deletions. It is best-effort and not transactional.
func Execute(ctx context.Context, gw workspace.Gateway, plan DeletionPlan) ExecutionReport {
	logger := zerolog.Ctx(ctx)
	var report ExecutionReport

	for _, kind := range []ActionKind{ActionDeleteTable, ActionDeleteField} {
		for _, a := range plan.Actions {
			if a.Kind != kind {
				continue
			}
			var err error
			if kind == ActionDeleteTable {
				err = gw.DeleteTable(ctx, a.TableID)
			} else {
				err = gw.DeleteField(ctx, a.TableID, a.FieldID)
			}
			if err != nil {
				execErr := &PlanExecutionError{Action: a, Err: err}
				logger.Warn().Err(err).Str("kind", string(a.Kind)).Str("tableID", a.TableID).Str("fieldID", a.FieldID).Msg("plan action failed")
				report.Errors = append(report.Errors, execErr)
				continue
			}
			if kind == ActionDeleteTable {
				report.TablesDeleted++
			} else {
				report.FieldsDeleted++
			}
		}
	}

	logger.Info().Int("tablesDeleted", report.TablesDeleted).Int("fieldsDeleted", report.FieldsDeleted).Int("failures", len(report.Errors)).Msg("executed deletion plan")
	return report
}
