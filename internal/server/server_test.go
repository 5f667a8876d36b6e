package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"

	"decylo/internal/config"
	"decylo/internal/db"
	"decylo/internal/engine"
	"decylo/internal/insights"
	"decylo/internal/lifecycle"
	"decylo/internal/migrate"
	"decylo/internal/patterns"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Logger = log.New(io.Discard, "", 0)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{
		JWTSecret:             "test-secret",
		AllowLegacyUserHeader: true,
		AllowDevLogin:         true,
		Logger:                log.New(io.Discard, "", 0),
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(user string) map[string]string {
	return map[string]string{"X-User-Id": user}
}

type decisionBody struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Confidence *int   `json:"confidence"`
	Options    []struct {
		ID           string  `json:"id"`
		Score        int     `json:"score"`
		DisplayScore float64 `json:"display_score"`
	} `json:"options"`
	SuggestedOptionID string `json:"suggested_option_id"`
}

func createDecision(t *testing.T, srv *testServer, user string) decisionBody {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/decisions", map[string]any{
		"title":    "Move to Lisbon?",
		"category": "lifestyle",
		"options": []map[string]any{
			{"label": "Stay", "impact": 4, "effort": 2, "risk": 2},
			{"label": "Move", "impact": 9, "effort": 7, "risk": 6},
		},
	}, as(user))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create decision status %d: %s", res.StatusCode, string(data))
	}
	var d decisionBody
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}
	return d
}

func TestDecisionLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/decisions/"

	d := createDecision(t, srv, "alice")
	if d.Status != "open" || len(d.Options) != 2 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.Options[0].DisplayScore != 6.5 {
		t.Fatalf("expected display score 6.5, got %v", d.Options[0].DisplayScore)
	}

	res, data := doJSON(t, client, http.MethodPost, base+d.ID+"/commit", map[string]any{
		"option_id":  d.Options[1].ID,
		"confidence": 70,
	}, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("commit status %d: %s", res.StatusCode, string(data))
	}
	var committed decisionBody
	_ = json.Unmarshal(data, &committed)
	if committed.Status != "decided" {
		t.Fatalf("expected decided, got %s", committed.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+d.ID+"/outcome", map[string]any{
		"score":               1,
		"what_happened":       "love it here",
		"learning_confidence": 80,
		"temporal_anchor":     "one_month",
	}, as("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("outcome status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+d.ID+"/outcome", map[string]any{"score": -1}, as("alice"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second outcome, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, base+d.ID, map[string]any{"title": "Renamed"}, as("alice"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for immutable field, got %d %s", res.StatusCode, string(data))
	}
	var apiErr struct {
		Error apiErrorBody `json:"error"`
	}
	_ = json.Unmarshal(data, &apiErr)
	if apiErr.Error.Details["kind"] != string(lifecycle.ImmutableFieldViolation) {
		t.Fatalf("unexpected error body: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, base+d.ID+"/outcome/learning", map[string]any{
		"what_learned": "test the commute first",
	}, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("learning status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/insights", nil, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("insights status %d: %s", res.StatusCode, string(data))
	}
	var report insights.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Counts.Completed != 1 || report.Health.CalibrationGap != 10 {
		t.Fatalf("unexpected report: %+v", report)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/insights/patterns", nil, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patterns status %d: %s", res.StatusCode, string(data))
	}
	var found patterns.Report
	if err := json.Unmarshal(data, &found); err != nil {
		t.Fatalf("unmarshal patterns: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/snapshots", nil, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("snapshots status %d: %s", res.StatusCode, string(data))
	}
	var snaps struct {
		Items []json.RawMessage `json:"items"`
	}
	_ = json.Unmarshal(data, &snaps)
	if len(snaps.Items) != 1 {
		t.Fatalf("expected one snapshot, got %s", string(data))
	}
}

func TestOpenAPIDocumentsReportSchemas(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(data))
	}
	var doc struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	for _, name := range []string{"InsightsResponse", "PatternsResponse", "Profile"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Fatalf("schema %s missing from openapi document", name)
		}
	}
}

func TestLogOutcomeBeforeCommit(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	d := createDecision(t, srv, "alice")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/decisions/"+d.ID+"/outcome", map[string]any{"score": 0}, as("alice"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
}

func TestValidateEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	d := createDecision(t, srv, "alice")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/decisions/"+d.ID+"/validate", map[string]any{
		"status": "completed",
	}, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var result lifecycle.Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Valid || result.Kind != lifecycle.MissingOutcomeForCompletion {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPatchNullClearsField(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	d := createDecision(t, srv, "alice")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/"+d.ID+"/commit", map[string]any{
		"option_id":  d.Options[0].ID,
		"confidence": 55,
	}, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("commit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/decisions/"+d.ID+"?dry_run=true", map[string]any{
		"confidence": nil,
	}, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var out struct {
		After   decisionBody `json:"after"`
		Changed []string     `json:"changed"`
		Applied bool         `json:"applied"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Applied || out.After.Confidence != nil || len(out.Changed) != 1 || out.Changed[0] != "confidence" {
		t.Fatalf("unexpected dry run: %s", string(data))
	}
}

func TestAuthAndOwnership(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"user_id": "bob"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	_ = json.Unmarshal(data, &login)
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.UserID != "bob" || who.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", who)
	}

	d := createDecision(t, srv, "alice")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions/"+d.ID, nil, bearer)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's decision, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions/missing", nil, bearer)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createDecision(t, srv, "alice")
	createDecision(t, srv, "alice")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2", nil, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with cursor: %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2&cursor="+page.NextCursor, nil, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	var next paginatedEvents
	_ = json.Unmarshal(data, &next)
	if len(next.Items) != 1 || next.Items[0].Type != "user.created" || next.NextCursor != "" {
		t.Fatalf("unexpected second page: %s", string(data))
	}
}
