package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danthegoodman1/tablesweep/planner"
	"github.com/danthegoodman1/tablesweep/rollback"
	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/store"
	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/rs/zerolog"
)

var (
	ErrBusy            = errors.New("another delete, rollback or capture is in progress")
	ErrNoSnapshot      = errors.New("no snapshot to roll back to")
	ErrNothingToDelete = errors.New("selection produces no deletions")
)

type (
	// Sweeper ties the selection, planner, snapshot engine, store and rollback
	// engine together. Only one capture, delete or rollback runs at a time.
	Sweeper struct {
		gw       workspace.Gateway
		store    *store.Store
		snapper  *snapshot.Engine
		restorer *rollback.Engine
		now      func() time.Time

		busy atomic.Bool

		selMu     sync.Mutex
		selection *planner.Selection
	}

	DeleteOptions struct {
		// ProceedWithoutSnapshot lets the delete run when the pre-delete
		// snapshot could not be captured or saved
		ProceedWithoutSnapshot bool
	}

	DeleteResult struct {
		Plan     planner.DeletionPlan        `json:"plan"`
		Report   planner.ExecutionReport     `json:"-"`
		Errors   []string                    `json:"errors"`
		Snapshot *snapshot.Snapshot          `json:"-"`
		Tables   []workspace.TableDescriptor `json:"-"`
	}

	RollbackResult struct {
		Report rollback.Report             `json:"report"`
		Tables []workspace.TableDescriptor `json:"-"`
	}
)

func New(gw workspace.Gateway, st *store.Store) *Sweeper {
	return &Sweeper{
		gw:        gw,
		store:     st,
		snapper:   snapshot.NewEngine(gw),
		restorer:  rollback.NewEngine(gw),
		now:       time.Now,
		selection: planner.NewSelection(),
	}
}

// WithClock replaces the time source used for snapshot timestamps and labels.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	s.snapper.WithClock(now)
	return s
}

// Busy reports whether a guarded operation is running.
func (s *Sweeper) Busy() bool {
	return s.busy.Load()
}

func (s *Sweeper) acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *Sweeper) release() {
	s.busy.Store(false)
}

// Tables re-enumerates the workspace.
func (s *Sweeper) Tables(ctx context.Context) ([]workspace.TableDescriptor, error) {
	return workspace.Describe(ctx, s.gw)
}

// UpdateSelection runs fn against the live selection under its lock.
func (s *Sweeper) UpdateSelection(fn func(sel *planner.Selection)) planner.SelectionView {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	fn(s.selection)
	return s.selection.View()
}

func (s *Sweeper) Selection() planner.SelectionView {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	return s.selection.View()
}

func (s *Sweeper) ClearSelection() {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	s.selection.Clear()
}

// Capture takes and saves a snapshot outside of a delete.
func (s *Sweeper) Capture(ctx context.Context, label string) (*snapshot.Snapshot, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()
	return s.captureAndSave(ctx, label)
}

func (s *Sweeper) captureAndSave(ctx context.Context, label string) (*snapshot.Snapshot, error) {
	snap, err := s.snapper.Capture(ctx, label)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, snap); err != nil {
		// without a persisted copy the snapshot is as good as missing
		return nil, &snapshot.CaptureError{Err: fmt.Errorf("error in store.Save: %w", err)}
	}
	return snap, nil
}

// Delete plans the live selection, captures a snapshot, then executes the
// plan. A failed capture blocks the delete unless opts say otherwise. Once
// execution starts it runs to completion regardless of ctx cancellation.
func (s *Sweeper) Delete(ctx context.Context, opts DeleteOptions) (*DeleteResult, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()
	logger := zerolog.Ctx(ctx)

	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("error describing workspace: %w", err)
	}

	s.selMu.Lock()
	s.selection.Prune(tables)
	sel := s.selection.Clone()
	s.selMu.Unlock()

	plan := planner.Plan(sel, tables)
	if plan.Empty() {
		return nil, ErrNothingToDelete
	}

	res := &DeleteResult{Plan: plan}
	label := "before delete " + s.now().UTC().Format(time.RFC3339)
	snap, err := s.captureAndSave(ctx, label)
	if err != nil {
		if !opts.ProceedWithoutSnapshot {
			return nil, err
		}
		logger.Warn().Err(err).Msg("proceeding with delete without a snapshot")
		res.Errors = append(res.Errors, err.Error())
	}
	res.Snapshot = snap

	execCtx := context.WithoutCancel(ctx)
	res.Report = planner.Execute(execCtx, s.gw, plan)
	res.Errors = append(res.Errors, res.Report.Messages()...)

	s.ClearSelection()

	res.Tables, err = s.Tables(execCtx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not refresh workspace after delete")
	}
	return res, nil
}

// Rollback rebuilds the structure of the last saved snapshot.
func (s *Sweeper) Rollback(ctx context.Context) (*RollbackResult, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()
	logger := zerolog.Ctx(ctx)

	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("error in store.Load: %w", err)
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	execCtx := context.WithoutCancel(ctx)
	res := &RollbackResult{Report: s.restorer.Rollback(execCtx, snap)}

	res.Tables, err = s.Tables(execCtx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not refresh workspace after rollback")
	}
	return res, nil
}

// Import replaces the stored snapshot with one obtained elsewhere, such as an
// earlier export, so the next rollback rebuilds it.
func (s *Sweeper) Import(ctx context.Context, snap *snapshot.Snapshot) error {
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("error in store.Save: %w", err)
	}
	return nil
}

// LastSnapshot returns the stored snapshot, nil when there is none.
func (s *Sweeper) LastSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	return s.store.Load(ctx)
}
