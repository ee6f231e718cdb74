package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/halcyon/botforge/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// overrideClient points newAPIClient at the test server for the duration of
// the test, so commands run through rootCmd hit it instead of a live server.
func (ts *testServer) overrideClient(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestAgentsCreateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agents": `{"id":"agent-1","name":"Support Bot","assistant_id":"asst_1"}`,
	})
	ts.overrideClient(t)

	err := runCommand(t, "agents", "create", "--name", "Support Bot", "--instructions", "Be nice.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/agents" {
		t.Errorf("request = %s %s, want POST /agents", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["name"] != "Support Bot" {
		t.Errorf("body.name = %v, want Support Bot", body["name"])
	}
	if body["instructions"] != "Be nice." {
		t.Errorf("body.instructions = %v, want Be nice.", body["instructions"])
	}
	if body["active"] != true {
		t.Errorf("body.active = %v, want true", body["active"])
	}
}

func TestAgentsCreateCommand_MissingName(t *testing.T) {
	err := runCommand(t, "agents", "create", "--name", "")
	if err == nil {
		t.Fatal("expected error for missing --name")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestAgentsListCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /agents": `{"agents":[{"id":"a1","name":"One","assistant_id":"asst_1"},{"id":"a2","name":"Two"}]}`,
	})
	ts.overrideClient(t)

	if err := runCommand(t, "agents", "list"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Path != "/agents" {
		t.Errorf("path = %q, want /agents", ts.requests[0].Path)
	}
}

func TestAgentsUpdateCommand_SendsOnlyChangedFields(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /agents/a1": `{"id":"a1","name":"Renamed"}`,
	})
	ts.overrideClient(t)

	if err := runCommand(t, "agents", "update", "a1", "--name", "Renamed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.requests[0]
	if r.Method != "PATCH" || r.Path != "/agents/a1" {
		t.Errorf("request = %s %s, want PATCH /agents/a1", r.Method, r.Path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["name"] != "Renamed" {
		t.Errorf("body.name = %v, want Renamed", body["name"])
	}
	if _, ok := body["instructions"]; ok {
		t.Error("instructions should not be sent when the flag is unset")
	}
	if _, ok := body["active"]; ok {
		t.Error("active should not be sent when the flag is unset")
	}
}

func TestSourcesTextCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agents/a1/sources/text": `{"status":"indexed","source":{"id":"s1","chars":11}}`,
	})
	ts.overrideClient(t)

	err := runCommand(t, "sources", "text", "a1", "--text", "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["text"] != "hello world" {
		t.Errorf("body.text = %v, want hello world", body["text"])
	}
}

func TestSourcesTextCommand_SavedPendingIsNotAnError(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agents/a1/sources/text": `{"status":"saved","warning":"indexing will be retried","source":{"id":"s1","chars":5}}`,
	})
	ts.overrideClient(t)

	if err := runCommand(t, "sources", "text", "a1", "--text", "hello"); err != nil {
		t.Fatalf("saved-but-pending should not fail the command: %v", err)
	}
}

func TestSourcesFileCommand_EncodesBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("file body"), 0o644); err != nil {
		t.Fatal(err)
	}

	ts := newTestServer(t, map[string]string{
		"POST /agents/a1/sources/file": `{"status":"indexed","source":{"id":"s2","chars":2}}`,
	})
	ts.overrideClient(t)

	if err := runCommand(t, "sources", "file", "a1", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Filename != "notes.txt" {
		t.Errorf("filename = %q, want notes.txt", body.Filename)
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		t.Fatalf("content not base64: %v", err)
	}
	if string(decoded) != "file body" {
		t.Errorf("decoded content = %q, want 'file body'", decoded)
	}
}

func TestSourcesQACommand_RequiresBothFields(t *testing.T) {
	err := runCommand(t, "sources", "qa", "a1", "--question", "What?", "--answer", "")
	if err == nil {
		t.Fatal("expected error for missing --answer")
	}
}

func TestCrawlCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agents/a1/crawl": `{"id":"job-1","status":"imported","result_count":3}`,
	})
	ts.overrideClient(t)

	err := runCommand(t, "crawl", "a1", "https://example.com", "--limit", "25", "--per-page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["url"] != "https://example.com" {
		t.Errorf("body.url = %v, want https://example.com", body["url"])
	}
	if body["limit"] != float64(25) {
		t.Errorf("body.limit = %v, want 25", body["limit"])
	}
	if body["per_page"] != true {
		t.Errorf("body.per_page = %v, want true", body["per_page"])
	}
}

func TestChatCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agents/a1/chat": `{"reply":"hi there","thread_id":"thread_9"}`,
	})
	ts.overrideClient(t)

	err := runCommand(t, "chat", "a1", "-m", "hello", "--thread", "thread_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message"] != "hello" {
		t.Errorf("body.message = %v, want hello", body["message"])
	}
	if body["thread_id"] != "thread_9" {
		t.Errorf("body.thread_id = %v, want thread_9", body["thread_id"])
	}
}

func TestFixMissingCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agents/fix-missing": `{"created":2,"failed":{"a3":"remote error"}}`,
	})
	ts.overrideClient(t)

	if err := runCommand(t, "fix-missing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Path != "/agents/fix-missing" {
		t.Errorf("path = %q, want /agents/fix-missing", ts.requests[0].Path)
	}
}

func TestRetrainCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.overrideClient(t)

	err := runCommand(t, "retrain", "a1")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to contain '404'", err.Error())
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get("/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestAPIClient_ServerDown(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get("/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get("/agents")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.OpenAI.Model = "gpt-4o-mini"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
