package http_server

import (
	"errors"
	"net/http"

	"github.com/danthegoodman1/tablesweep/planner"
	"github.com/danthegoodman1/tablesweep/rollback"
	"github.com/danthegoodman1/tablesweep/s3_helper"
	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/sweeper"
	"github.com/danthegoodman1/tablesweep/utils"
	"github.com/rs/zerolog"
)

type (
	DeleteReqBody struct {
		ProceedWithoutSnapshot bool `json:"proceedWithoutSnapshot"`
	}

	DeleteResponse struct {
		Plan          planner.DeletionPlan `json:"plan"`
		TablesDeleted int                  `json:"tablesDeleted"`
		FieldsDeleted int                  `json:"fieldsDeleted"`
		Errors        []string             `json:"errors"`
		SnapshotLabel *string              `json:"snapshotLabel,omitempty"`
		Tables        []tableResponse      `json:"tables"`
	}

	RollbackResponse struct {
		rollback.Report
		Tables []tableResponse `json:"tables"`
	}

	CreateSnapshotReqBody struct {
		Label string `json:"label" validate:"required"`
	}

	ExportResponse struct {
		Key string `json:"key"`
	}

	ImportReqBody struct {
		Key string `json:"key" validate:"required"`
	}
)

func (s *HTTPServer) DeleteHandler(c *CustomContext) error {
	var reqBody DeleteReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	res, err := s.Sweeper.Delete(c.Request().Context(), sweeper.DeleteOptions{
		ProceedWithoutSnapshot: reqBody.ProceedWithoutSnapshot,
	})
	if err != nil {
		return c.SweepError(err, "error deleting selection")
	}

	out := DeleteResponse{
		Plan:          res.Plan,
		TablesDeleted: res.Report.TablesDeleted,
		FieldsDeleted: res.Report.FieldsDeleted,
		Errors:        utils.ArrayOrEmpty(res.Errors),
		Tables:        toTableResponses(res.Tables),
	}
	if res.Snapshot != nil {
		out.SnapshotLabel = utils.Ptr(res.Snapshot.Label)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) RollbackHandler(c *CustomContext) error {
	res, err := s.Sweeper.Rollback(c.Request().Context())
	if err != nil {
		return c.SweepError(err, "error rolling back")
	}
	return c.JSON(http.StatusOK, RollbackResponse{
		Report: res.Report,
		Tables: toTableResponses(res.Tables),
	})
}

func (s *HTTPServer) CreateSnapshot(c *CustomContext) error {
	var reqBody CreateSnapshotReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	snap, err := s.Sweeper.Capture(c.Request().Context(), reqBody.Label)
	if err != nil {
		return c.SweepError(err, "error capturing snapshot")
	}
	return c.JSON(http.StatusCreated, snap)
}

func (s *HTTPServer) latestSnapshot(c *CustomContext) (*snapshot.Snapshot, error) {
	snap, err := s.Sweeper.LastSnapshot(c.Request().Context())
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, sweeper.ErrNoSnapshot
	}
	return snap, nil
}

func (s *HTTPServer) GetLatestSnapshot(c *CustomContext) error {
	snap, err := s.latestSnapshot(c)
	if err != nil {
		return c.SweepError(err, "error loading snapshot")
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *HTTPServer) ExportLatestSnapshot(c *CustomContext) error {
	if !s3_helper.Configured() {
		return c.String(http.StatusNotImplemented, s3_helper.ErrNotConfigured.Error())
	}
	snap, err := s.latestSnapshot(c)
	if err != nil {
		return c.SweepError(err, "error loading snapshot")
	}

	key, err := s3_helper.ExportSnapshot(c.Request().Context(), snap)
	if err != nil {
		return c.InternalError(err, "error exporting snapshot")
	}
	zerolog.Ctx(c.Request().Context()).Info().Str("key", key).Str("label", snap.Label).Msg("exported snapshot")
	return c.JSON(http.StatusOK, ExportResponse{Key: key})
}

func (s *HTTPServer) ImportSnapshot(c *CustomContext) error {
	var reqBody ImportReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	snap, err := s3_helper.FetchSnapshot(c.Request().Context(), reqBody.Key)
	if errors.Is(err, s3_helper.ErrNotConfigured) {
		return c.String(http.StatusNotImplemented, err.Error())
	}
	if err != nil {
		return c.InternalError(err, "error fetching exported snapshot")
	}
	if err := s.Sweeper.Import(c.Request().Context(), snap); err != nil {
		return c.SweepError(err, "error importing snapshot")
	}
	return c.JSON(http.StatusOK, snap)
}
