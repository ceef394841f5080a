package http_server

import (
	"net/http"
	"time"

	"github.com/danthegoodman1/tablesweep/planner"
	"github.com/danthegoodman1/tablesweep/utils"
	"github.com/danthegoodman1/tablesweep/workspace"
)

type (
	fieldResponse struct {
		ID       string              `json:"id"`
		Name     string              `json:"name"`
		Type     workspace.FieldType `json:"type"`
		TypeName string              `json:"typeName"`
		IsIndex  bool                `json:"isIndex"`
		Property any                 `json:"property,omitempty"`
	}

	tableResponse struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		ModifiedAt *time.Time      `json:"modifiedAt,omitempty"`
		Fields     []fieldResponse `json:"fields"`
	}

	SelectTableReqBody struct {
		TableID  string `json:"tableId" validate:"required"`
		Selected bool   `json:"selected"`
	}

	SelectFieldsReqBody struct {
		TableID string `json:"tableId" validate:"required"`
		// FieldID is ignored when All is set
		FieldID  string `json:"fieldId" validate:"required_without=All"`
		All      bool   `json:"all"`
		Selected bool   `json:"selected"`
	}
)

func toTableResponses(tables []workspace.TableDescriptor) []tableResponse {
	res := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		tr := tableResponse{
			ID:     t.ID,
			Name:   t.Name,
			Fields: make([]fieldResponse, 0, len(t.Fields)),
		}
		if modified := workspace.ModifiedAt(t.Meta); !modified.IsZero() {
			tr.ModifiedAt = utils.Ptr(modified)
		}
		for _, f := range t.Fields {
			tr.Fields = append(tr.Fields, fieldResponse{
				ID:       f.ID,
				Name:     f.Name,
				Type:     f.Type,
				TypeName: f.Type.String(),
				IsIndex:  f.IsIndex,
				Property: f.Property,
			})
		}
		res = append(res, tr)
	}
	return res
}

func (s *HTTPServer) GetTables(c *CustomContext) error {
	tables, err := s.Sweeper.Tables(c.Request().Context())
	if err != nil {
		return c.InternalError(err, "error describing workspace")
	}
	return c.JSON(http.StatusOK, toTableResponses(tables))
}

func (s *HTTPServer) GetSelection(c *CustomContext) error {
	return c.JSON(http.StatusOK, s.Sweeper.Selection())
}

func (s *HTTPServer) ClearSelection(c *CustomContext) error {
	s.Sweeper.ClearSelection()
	return c.JSON(http.StatusOK, s.Sweeper.Selection())
}

func (s *HTTPServer) SelectTable(c *CustomContext) error {
	var reqBody SelectTableReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	view := s.Sweeper.UpdateSelection(func(sel *planner.Selection) {
		if reqBody.Selected {
			sel.SelectTable(reqBody.TableID)
		} else {
			sel.DeselectTable(reqBody.TableID)
		}
	})
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) SelectFields(c *CustomContext) error {
	var reqBody SelectFieldsReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	if !reqBody.All {
		view := s.Sweeper.UpdateSelection(func(sel *planner.Selection) {
			if reqBody.Selected {
				sel.SelectField(reqBody.TableID, reqBody.FieldID)
			} else {
				sel.DeselectField(reqBody.TableID, reqBody.FieldID)
			}
		})
		return c.JSON(http.StatusOK, view)
	}

	if !reqBody.Selected {
		view := s.Sweeper.UpdateSelection(func(sel *planner.Selection) {
			sel.DeselectAllFields(reqBody.TableID)
		})
		return c.JSON(http.StatusOK, view)
	}

	// selecting all fields needs the current field list, index excluded
	tables, err := s.Sweeper.Tables(c.Request().Context())
	if err != nil {
		return c.InternalError(err, "error describing workspace")
	}
	var fieldIDs []string
	found := false
	for _, t := range tables {
		if t.ID != reqBody.TableID {
			continue
		}
		found = true
		for _, f := range t.Fields {
			if !f.IsIndex {
				fieldIDs = append(fieldIDs, f.ID)
			}
		}
	}
	if !found {
		return c.String(http.StatusNotFound, "table not found")
	}

	view := s.Sweeper.UpdateSelection(func(sel *planner.Selection) {
		sel.SelectAllFields(reqBody.TableID, fieldIDs)
	})
	return c.JSON(http.StatusOK, view)
}
