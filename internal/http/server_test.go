package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"rewriteplan/internal/catalog"
	"rewriteplan/internal/strategy"
	"rewriteplan/pkg/config"
	"rewriteplan/pkg/metrics"
	"rewriteplan/pkg/planerr"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

func newTestServer(t *testing.T) (*Server, *metrics.Registry) {
	t.Helper()
	cat := catalog.NewMemory()
	schema := table.NewSchema(0,
		table.Field{ID: 1, Name: "id", Type: table.LongType, Required: true},
		table.Field{ID: 2, Name: "payload", Type: table.StructType},
	)
	sorted := &table.Metadata{
		TableName:   "db.events",
		TableSchema: schema,
		Order: table.SortOrder{OrderID: 1, Fields: []table.SortField{
			{SourceID: 1, Transform: table.IdentityTransform, Direction: table.Asc, NullOrder: table.NullsFirst},
		}},
		Props: map[string]string{table.PropertyTargetFileSize: "100"},
	}
	unsorted := &table.Metadata{TableName: "db.raw", TableSchema: schema}
	for _, md := range []*table.Metadata{sorted, unsorted} {
		if err := cat.Register(md); err != nil {
			t.Fatalf("register %s: %v", md.TableName, err)
		}
	}

	reg := metrics.NewRegistry()
	cfg := config.Default()
	cfg.Planner.Strategy = strategy.SortName
	return NewServer(cat, reg, cfg), reg
}

func decodeResp(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v, body=%s", err, rr.Body.String())
	}
	return resp
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(s, http.MethodGet, "/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if resp := decodeResp(t, rr); resp.Status != StatusOK {
		t.Fatalf("expected status %s, got %s", StatusOK, resp.Status)
	}
}

func TestStrategiesAndTables(t *testing.T) {
	s, _ := newTestServer(t)

	rr := serve(s, http.MethodGet, "/api/strategies", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("strategies: expected 200, got %d", rr.Code)
	}
	resp := decodeResp(t, rr)
	if len(resp.Strategies) != 2 || resp.Strategies[0].Name != strategy.BinPackName || resp.Strategies[1].Name != strategy.SortName {
		t.Fatalf("unexpected strategies: %+v", resp.Strategies)
	}
	if !reflect.DeepEqual(resp.Strategies[1].Options, strategy.SortValidOptions()) {
		t.Fatalf("unexpected sort options: %v", resp.Strategies[1].Options)
	}

	rr = serve(s, http.MethodGet, "/api/tables", "")
	if got := decodeResp(t, rr).Tables; !reflect.DeepEqual(got, []string{"db.events", "db.raw"}) {
		t.Fatalf("unexpected tables: %v", got)
	}
}

func planBody(strategyName string, options map[string]string, sizes ...int64) string {
	req := PlanRequest{Strategy: strategyName, Options: options}
	for _, size := range sizes {
		req.Files = append(req.Files, scan.NewFileScanTask(scan.DataFile{
			Path:      "s3://bucket/data.parquet",
			Format:    scan.FormatParquet,
			SizeBytes: size,
		}, 0))
	}
	data, _ := json.Marshal(req)
	return string(data)
}

func TestPlan_RewriteAll(t *testing.T) {
	s, reg := newTestServer(t)
	body := planBody("", map[string]string{
		strategy.RewriteAll:            "true",
		strategy.MaxFileGroupSizeBytes: "25",
	}, 10, 20, 15)

	rr := serve(s, http.MethodPost, "/api/tables/db.events/plan", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeResp(t, rr)
	if resp.Status != StatusSuccess || resp.Plan == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Plan.Strategy != strategy.SortName {
		t.Fatalf("default strategy not applied: %s", resp.Plan.Strategy)
	}

	var sizes [][]int64
	for _, g := range resp.Plan.Groups {
		var gs []int64
		for _, f := range g.Files {
			gs = append(gs, f.Length())
		}
		sizes = append(sizes, gs)
	}
	if want := [][]int64{{10}, {20}, {15}}; !reflect.DeepEqual(sizes, want) {
		t.Fatalf("groups = %v, want %v", sizes, want)
	}

	if v, ok := reg.Value("rewriteplan_plans_total", map[string]string{"table": "db.events", "strategy": "SORT"}); !ok || v != 1 {
		t.Fatalf("plans metric = %v, %v", v, ok)
	}
	rr = serve(s, http.MethodGet, "/metrics", "")
	if !strings.Contains(rr.Body.String(), `rewriteplan_http_requests_total{code="200",route="/api/tables/{name}/plan"} 1`) {
		t.Fatalf("missing request counter in:\n%s", rr.Body.String())
	}
}

func TestPlan_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantText string
	}{
		{"unknown option", "/api/tables/db.events/plan", planBody("SORT", map[string]string{"foo": "1"}, 1), http.StatusBadRequest, `invalid option "foo"`},
		{"missing sort order", "/api/tables/db.raw/plan", planBody("SORT", nil, 1), http.StatusBadRequest, "no sort order"},
		{"unknown strategy", "/api/tables/db.events/plan", planBody("ZORDER", nil, 1), http.StatusBadRequest, "unknown strategy"},
		{"unknown table", "/api/tables/db.nope/plan", planBody("BINPACK", nil, 1), http.StatusNotFound, "table not found"},
		{"bad json", "/api/tables/db.events/plan", "{", http.StatusBadRequest, "invalid plan request"},
		{"null file", "/api/tables/db.events/plan", `{"files":[null]}`, http.StatusBadRequest, "null"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(s, http.MethodPost, tc.path, tc.body)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d body=%s", tc.wantCode, rr.Code, rr.Body.String())
			}
			resp := decodeResp(t, rr)
			if resp.Status != StatusError || !strings.Contains(resp.Error, tc.wantText) {
				t.Fatalf("unexpected error response: %+v", resp)
			}
		})
	}
}

func TestPlan_SortOrderOverride(t *testing.T) {
	s, _ := newTestServer(t)
	req := PlanRequest{
		Strategy: "sort",
		SortOrder: &table.SortOrder{OrderID: 2, Fields: []table.SortField{
			{SourceID: 2, Transform: table.IdentityTransform, Direction: table.Asc, NullOrder: table.NullsFirst},
		}},
	}
	data, _ := json.Marshal(req)

	rr := serve(s, http.MethodPost, "/api/tables/db.raw/plan", string(data))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for struct sort column, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(decodeResp(t, rr).Error, "invalid source type") {
		t.Fatalf("unexpected error: %s", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(s, http.MethodPost, "/health", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method-not-allowed: expected 405, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestClient(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := NewClient(ts.URL)
	ctx := context.Background()

	tables, err := c.Tables(ctx)
	if err != nil || len(tables) != 2 {
		t.Fatalf("Tables = %v, %v", tables, err)
	}
	infos, err := c.Strategies(ctx)
	if err != nil || len(infos) != 2 {
		t.Fatalf("Strategies = %v, %v", infos, err)
	}

	var req PlanRequest
	if err := json.Unmarshal([]byte(planBody("BINPACK", map[string]string{strategy.MinInputFiles: "2"}, 10, 20, 100)), &req); err != nil {
		t.Fatal(err)
	}
	plan, err := c.Plan(ctx, "db.events", req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Groups) != 1 || len(plan.Groups[0].Files) != 2 || plan.Groups[0].SizeBytes != 30 {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	if _, err := c.Plan(ctx, "db.nope", req); !errors.Is(err, planerr.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
	req.Options = map[string]string{"foo": "bar"}
	if _, err := c.Plan(ctx, "db.events", req); !errors.Is(err, planerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
