package http_server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danthegoodman1/tablesweep/planner"
	"github.com/danthegoodman1/tablesweep/store"
	"github.com/danthegoodman1/tablesweep/sweeper"
	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/labstack/echo/v4"
)

type testEnv struct {
	srv  *HTTPServer
	mem  *workspace.Memory
	a, b string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := workspace.NewMemory()
	a := m.Seed("Orders", "Title",
		workspace.FieldSpec{Name: "Amount", Type: workspace.FieldTypeNumber},
	)
	b := m.Seed("Customers", "Name",
		workspace.FieldSpec{Name: "Email", Type: workspace.FieldTypeEmail},
		workspace.FieldSpec{Name: "Phone", Type: workspace.FieldTypePhone},
	)
	dc, err := store.NewDiskCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(dc, m, store.WithSyncTimeout(20*time.Millisecond))
	return &testEnv{
		srv: NewHTTPServer(sweeper.New(m, st)),
		mem: m,
		a:   a,
		b:   b,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("error decoding %q: %s", rec.Body.String(), err)
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(t, http.MethodGet, "/hc", ""); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestGetTables(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/tables", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	tables := decode[[]tableResponse](t, rec)
	if len(tables) != 2 || tables[0].Name != "Orders" || tables[1].Name != "Customers" {
		t.Fatalf("unexpected tables %+v", tables)
	}
	if tables[0].ModifiedAt == nil {
		t.Fatal("expected modifiedAt")
	}
	if !tables[1].Fields[0].IsIndex || tables[1].Fields[1].TypeName != "Email" {
		t.Fatalf("unexpected fields %+v", tables[1].Fields)
	}
}

func TestSelectionRoutes(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/selection/tables", `{"tableId":"`+e.a+`","selected":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	view := decode[planner.SelectionView](t, rec)
	if len(view.Tables) != 1 || view.Tables[0] != e.a {
		t.Fatalf("unexpected view %+v", view)
	}

	rec = e.do(t, http.MethodPost, "/selection/fields", `{"tableId":"`+e.b+`","all":true,"selected":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	view = decode[planner.SelectionView](t, rec)
	if len(view.Fields[e.b]) != 2 {
		t.Fatalf("expected both non-index fields, got %+v", view)
	}

	if rec := e.do(t, http.MethodPost, "/selection/fields", `{"tableId":"`+e.b+`","selected":true}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fieldId should be rejected, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/selection/fields", `{"tableId":"tbl_nope","all":true,"selected":true}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown table should 404, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodDelete, "/selection", "")
	view = decode[planner.SelectionView](t, rec)
	if len(view.Tables) != 0 || len(view.Fields) != 0 {
		t.Fatalf("selection not cleared %+v", view)
	}
}

func TestDeleteAndRollbackRoutes(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(t, http.MethodPost, "/delete", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty selection should be 400, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/rollback", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("rollback without snapshot should be 404, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/snapshots/latest", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot should be 404, got %d", rec.Code)
	}

	e.do(t, http.MethodPost, "/selection/tables", `{"tableId":"`+e.a+`","selected":true}`)
	rec := e.do(t, http.MethodPost, "/delete", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	del := decode[DeleteResponse](t, rec)
	if del.TablesDeleted != 1 || del.SnapshotLabel == nil || len(del.Tables) != 1 {
		t.Fatalf("unexpected delete response %+v", del)
	}

	rec = e.do(t, http.MethodGet, "/snapshots/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/rollback", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	rb := decode[RollbackResponse](t, rec)
	if len(rb.Restored) != 2 || len(rb.Tables) != 3 {
		t.Fatalf("unexpected rollback response %+v", rb)
	}
}

func TestCaptureFailureIsFailedDependency(t *testing.T) {
	e := newTestEnv(t)
	e.mem.FailOn(workspace.OpListFields, e.b, workspace.ErrNotFound)

	if rec := e.do(t, http.MethodPost, "/snapshots", `{"label":"manual"}`); rec.Code != http.StatusFailedDependency {
		t.Fatalf("expected 424, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(t, http.MethodPost, "/snapshots", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing label should be 400, got %d", rec.Code)
	}

	e.mem.FailOn(workspace.OpListFields, e.b, nil)
	if rec := e.do(t, http.MethodPost, "/snapshots", `{"label":"manual"}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}
