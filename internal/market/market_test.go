package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"forgegate.dev/internal/artifact"
)

func TestPublishAndInstall(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody publishRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		switch r.Method {
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode publish body: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			json.NewEncoder(w).Encode(installResponse{
				Content:  map[string]any{"model": "sonnet"},
				Metadata: artifact.Metadata{Name: "demo", Version: "1.0.0"},
			})
		}
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	meta := artifact.Metadata{Name: "demo", Version: "1.0.0", Description: "d", Author: "alice"}
	if err := c.Publish(context.Background(), "a1", artifact.TypeAgent, map[string]any{"model": "sonnet"}, meta); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/artifacts" {
		t.Fatalf("unexpected publish request: %s %s", gotMethod, gotPath)
	}
	if gotBody.ID != "a1" || gotBody.Type != "agent" {
		t.Fatalf("unexpected publish body: %+v", gotBody)
	}

	content, meta, err := c.Install(context.Background(), "a1", artifact.TypeAgent)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if gotPath != "/v1/artifacts/agent/a1" {
		t.Fatalf("unexpected install path: %s", gotPath)
	}
	if content["model"] != "sonnet" || meta.Name != "demo" {
		t.Fatalf("unexpected install payload: %v %+v", content, meta)
	}
}

func TestSearchQueryEncoding(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]artifact.Metadata{{Name: "demo"}})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	typ := artifact.TypeTool
	out, err := c.Search(context.Background(), "demo", &typ)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 1 || out[0].Name != "demo" {
		t.Fatalf("unexpected results: %+v", out)
	}
	if !strings.Contains(gotQuery, "q=demo") || !strings.Contains(gotQuery, "type=tool") {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
}

func TestRemoteFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "artifact rejected", http.StatusConflict)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	err = c.Delete(context.Background(), "a1", artifact.TypeAgent)
	if !errors.Is(err, ErrMarketplace) {
		t.Fatalf("expected ErrMarketplace, got %v", err)
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "artifact rejected") {
		t.Fatalf("remote detail must be preserved: %v", err)
	}
}

func TestNewHTTPClientRequiresBase(t *testing.T) {
	if _, err := NewHTTPClient("  ", nil); err == nil {
		t.Fatal("empty base URL must be rejected")
	}
}
