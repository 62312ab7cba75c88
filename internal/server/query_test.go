package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/insites-io/module-ai/internal/cache"
)

func postQuery(t *testing.T, agent *fakeAgent, c *cache.Cache, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	QueryHandler(agent, c, time.Second)(rec, req)
	return rec
}

func decodeQuery(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestQuerySuccess(t *testing.T) {
	agent := &fakeAgent{text: "3 contacts found"}
	target := "/query?instance_url=https://acme.example&instance_api_key=k"
	rec := postQuery(t, agent, nil, target, `{"prompt":"list contacts"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	resp := decodeQuery(t, rec)
	if resp["success"] != true || resp["response"] != "3 contacts found" || resp["prompt"] != "list contacts" {
		t.Fatalf("response %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp: %v", err)
	}
}

func TestQueryAgentFailure(t *testing.T) {
	agent := &fakeAgent{err: errors.New("backend down")}
	target := "/query?instance_url=https://acme.example&instance_api_key=k"
	rec := postQuery(t, agent, nil, target, `{"prompt":"list contacts"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	resp := decodeQuery(t, rec)
	if resp["success"] != false || resp["error"] != "backend down" {
		t.Fatalf("response %+v", resp)
	}
}

func TestQueryValidation(t *testing.T) {
	cases := []struct {
		name   string
		target string
		body   string
		detail string
	}{
		{"url", "/query?instance_api_key=k", `{"prompt":"x"}`, "instance_url is required"},
		{"key", "/query?instance_url=u", `{"prompt":"x"}`, "instance_api_key is required"},
		{"prompt", "/query?instance_url=u&instance_api_key=k", `{}`, "prompt is required"},
		{"body", "/query?instance_url=u&instance_api_key=k", `{nope`, "prompt is required"},
	}
	for _, tc := range cases {
		agent := &fakeAgent{}
		rec := postQuery(t, agent, nil, tc.target, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", tc.name, rec.Code)
		}
		resp := decodeQuery(t, rec)
		if resp["detail"] != tc.detail {
			t.Fatalf("%s: detail %v", tc.name, resp["detail"])
		}
		if agent.calls != 0 {
			t.Fatalf("%s: agent called", tc.name)
		}
	}
}

func TestQueryUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.New(mr.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	agent := &fakeAgent{text: "fresh"}
	target := "/query?instance_url=https://acme.example&instance_api_key=k"
	rec := postQuery(t, agent, c, target, `{"prompt":"list contacts"}`)
	if resp := decodeQuery(t, rec); resp["response"] != "fresh" {
		t.Fatalf("response %+v", resp)
	}
	if agent.calls != 1 {
		t.Fatalf("calls %d", agent.calls)
	}

	rec = postQuery(t, agent, c, target, `{"prompt":"list contacts"}`)
	if resp := decodeQuery(t, rec); resp["success"] != true || resp["response"] != "fresh" {
		t.Fatalf("response %+v", resp)
	}
	if agent.calls != 1 {
		t.Fatal("second request must be served from cache")
	}
}

func TestQueryRespectsRequestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agent := &fakeAgent{err: context.Canceled}
	req := httptest.NewRequest(http.MethodPost, "/query?instance_url=u&instance_api_key=k", strings.NewReader(`{"prompt":"x"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	QueryHandler(agent, nil, time.Second)(rec, req)
	if resp := decodeQuery(t, rec); resp["success"] != false {
		t.Fatalf("response %+v", resp)
	}
}
