package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaynote/relaynote/internal/errors"
)

func TestListReleases_ParsesWireFormat(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 11, "tag_name": "v1.1.0", "name": "One One", "html_url": "https://example.com/v1.1.0",
			 "body": "notes", "draft": false, "published_at": "2024-02-01T00:00:00Z"},
			{"id": 10, "tag_name": "v1.0.0", "draft": true, "published_at": null}
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-123")
	releases, err := client.ListReleases(context.Background(), "acme", "widgets", 20)
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}

	if gotPath != "/repos/acme/widgets/releases" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "per_page=20" {
		t.Errorf("query = %q, want per_page=20", gotQuery)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	if len(releases) != 2 {
		t.Fatalf("len(releases) = %d, want 2", len(releases))
	}
	first := releases[0]
	if first.ID != 11 || first.TagName != "v1.1.0" || first.Name != "One One" {
		t.Errorf("releases[0] = %+v", first)
	}
	if first.PublishedAt == nil || first.PublishedAt.Year() != 2024 {
		t.Errorf("releases[0].PublishedAt = %v", first.PublishedAt)
	}
	if !releases[1].Draft || releases[1].PublishedAt != nil {
		t.Errorf("releases[1] = %+v, want draft with nil published_at", releases[1])
	}
}

func TestListReleases_ClampsLimit(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	for _, limit := range []int{0, -5, 250} {
		if _, err := client.ListReleases(context.Background(), "a", "b", limit); err != nil {
			t.Fatalf("ListReleases(%d) failed: %v", limit, err)
		}
	}

	want := []string{"per_page=1", "per_page=1", "per_page=100"}
	for i, q := range queries {
		if q != want[i] {
			t.Errorf("queries[%d] = %q, want %q", i, q, want[i])
		}
	}
}

func TestListReleases_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.ListReleases(context.Background(), "acme", "gone", 10)

	if !errors.Is(err, errors.ErrUpstream) {
		t.Fatalf("err = %v, want UPSTREAM", err)
	}
	sErr := err.(*errors.SyncError)
	if sErr.Details["upstream_status"] != 404 {
		t.Errorf("upstream_status = %v, want 404", sErr.Details["upstream_status"])
	}
	if sErr.Details["body"] != `{"message": "Not Found"}` {
		t.Errorf("body = %v", sErr.Details["body"])
	}
}

func TestListReleases_NoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if _, err := client.ListReleases(context.Background(), "a", "b", 10); err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty without token", gotAuth)
	}
}
