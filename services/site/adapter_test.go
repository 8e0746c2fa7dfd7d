package site

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"streamhub/models"
)

type fakeSite struct {
	mux *http.ServeMux

	mu            sync.Mutex
	playerReferer string
	playerOrigin  string
}

func newFakeSite(t *testing.T) (*fakeSite, *httptest.Server) {
	t.Helper()
	f := &fakeSite{mux: http.NewServeMux()}
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	f.mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<article class="item"><a class="title" href="/film/matrix.html">The Matrix</a><img data-src="/p/m.jpg"> фільм 1999</article>
			<article class="item"><a class="title" href="/film/sequel.html">Matrix Sequel</a><img src="/p/s.jpg"> серіал 2003</article>
		</body></html>`)
	})
	f.mux.HandleFunc("/film/matrix.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1 class="name">The Matrix</h1>
			<img class="poster" src="/p/big.jpg">
			<div class="info">1999</div>
			<div class="player"><iframe src="/player/1"></iframe></div>
		</body></html>`)
	})
	f.mux.HandleFunc("/film/sequel.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1 class="name">Matrix Sequel</h1><div class="info">2003</div></body></html>`)
	})
	f.mux.HandleFunc("/player/1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.playerReferer = r.Header.Get("Referer")
		f.playerOrigin = r.Header.Get("Origin")
		f.mu.Unlock()
		fmt.Fprint(w, `<script>Player({file: '[{"title":"UA","file":"https://cdn.test/matrix_1080.mp4"}]'});</script>`)
	})
	return f, srv
}

func testProfile(baseURL string) Profile {
	return Profile{
		Name:          "testsite",
		BaseURL:       baseURL,
		SearchURL:     "/search?q={query}",
		SeriesMarkers: []string{"серіал"},
		Selectors: Selectors{
			Result:       "article.item",
			ResultTitle:  "a.title",
			ResultHref:   "a.title",
			ResultPoster: "img",
			DetailTitle:  "h1.name",
			DetailPoster: "img.poster",
			DetailYear:   ".info",
			PlayerFrame:  ".player iframe",
		},
	}
}

func TestAdapterSearchAndEnrich(t *testing.T) {
	f, srv := newFakeSite(t)
	adapter := New(testProfile(srv.URL), srv.Client())

	res, err := adapter.Resolve(context.Background(), models.Query{Text: "matrix"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}

	first := res.Items[0]
	if first.ID != srv.URL+"/film/matrix.html" {
		t.Fatalf("unexpected id %q", first.ID)
	}
	if first.Year != 1999 {
		t.Fatalf("expected year 1999, got %d", first.Year)
	}
	if first.Poster != srv.URL+"/p/m.jpg" {
		t.Fatalf("poster not absolutized: %q", first.Poster)
	}
	if res.Items[1].Type != models.MediaTypeSeries {
		t.Fatalf("series marker not applied, got %s", res.Items[1].Type)
	}

	// Enrichment fetched the first item's detail and its player.
	if len(first.Streams) != 1 {
		t.Fatalf("expected enriched stream, got %d", len(first.Streams))
	}
	if first.Streams[0].URL != "https://cdn.test/matrix_1080.mp4" {
		t.Fatalf("unexpected stream url %q", first.Streams[0].URL)
	}
	if first.Streams[0].Quality != "1080p" {
		t.Fatalf("expected inferred quality, got %q", first.Streams[0].Quality)
	}
	if len(res.Streams) != 1 {
		t.Fatalf("result streams should mirror first item's, got %d", len(res.Streams))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playerReferer != srv.URL+"/film/matrix.html" {
		t.Fatalf("player fetched without detail Referer: %q", f.playerReferer)
	}
	if f.playerOrigin != srv.URL {
		t.Fatalf("player fetched without iframe Origin: %q", f.playerOrigin)
	}
}

func TestAdapterDirectReference(t *testing.T) {
	_, srv := newFakeSite(t)
	adapter := New(testProfile(srv.URL), srv.Client())

	// A URL-shaped external id is treated as a direct page reference.
	res, err := adapter.Resolve(context.Background(), models.Query{ExternalID: srv.URL + "/film/matrix.html"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(res.Items))
	}
	if res.Items[0].Title != "The Matrix" {
		t.Fatalf("unexpected title %q", res.Items[0].Title)
	}
	if len(res.Streams) != 1 {
		t.Fatalf("expected player stream, got %d", len(res.Streams))
	}
}

func TestAdapterDirectReferenceFailureIsAnError(t *testing.T) {
	_, srv := newFakeSite(t)
	adapter := New(testProfile(srv.URL), srv.Client())

	_, err := adapter.Resolve(context.Background(), models.Query{DirectRef: srv.URL + "/film/gone.html"})
	if err == nil {
		t.Fatalf("expected error for unreachable direct reference")
	}
}

func TestAdapterYearFilter(t *testing.T) {
	_, srv := newFakeSite(t)
	adapter := New(testProfile(srv.URL), srv.Client())

	res, err := adapter.Resolve(context.Background(), models.Query{Text: "matrix", Year: 2003})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected year-filtered single item, got %d", len(res.Items))
	}
	if res.Items[0].Title != "Matrix Sequel" {
		t.Fatalf("unexpected item %q", res.Items[0].Title)
	}
}

func TestAdapterLimit(t *testing.T) {
	_, srv := newFakeSite(t)
	adapter := New(testProfile(srv.URL), srv.Client())

	res, err := adapter.Resolve(context.Background(), models.Query{Text: "matrix", Limit: 1})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected limit to cap items, got %d", len(res.Items))
	}
}

func TestAdapterSearchFailureDegradesToEmpty(t *testing.T) {
	_, srv := newFakeSite(t)
	profile := testProfile(srv.URL)
	profile.SearchURL = "/missing?q={query}"
	adapter := New(profile, srv.Client())

	res, err := adapter.Resolve(context.Background(), models.Query{Text: "matrix"})
	if err != nil {
		t.Fatalf("search failure must be swallowed, got %v", err)
	}
	if len(res.Items) != 0 || len(res.Streams) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestAdapterJSONSearch(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/search-ajax", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"movies":[
			{"name":"Серіал A","link":"/serial/a","poster":"//cdn.test/a.jpg","year":2021},
			{"name":"Серіал B","link":"/serial/b","year":2022}
		]}`)
	})

	profile := Profile{
		Name:       "jsonsite",
		BaseURL:    srv.URL,
		SearchURL:  "/search-ajax?query={query}",
		SearchKind: "json",
	}
	adapter := New(profile, srv.Client())

	res, err := adapter.Resolve(context.Background(), models.Query{Text: "серіал"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[0].ID != srv.URL+"/serial/a" {
		t.Fatalf("link not absolutized: %q", res.Items[0].ID)
	}
	if res.Items[0].Poster != "https://cdn.test/a.jpg" {
		t.Fatalf("protocol-relative poster not normalized: %q", res.Items[0].Poster)
	}
}

func TestAdapterRejectsEmptyQuery(t *testing.T) {
	_, srv := newFakeSite(t)
	adapter := New(testProfile(srv.URL), srv.Client())

	if _, err := adapter.Resolve(context.Background(), models.Query{}); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestAdapterPostSearch(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var gotBody, gotContentType string
	mux.HandleFunc("/index.php", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		fmt.Fprint(w, `<html><body><article class="item"><a class="title" href="/x.html">X</a></article></body></html>`)
	})

	profile := testProfile(srv.URL)
	profile.SearchURL = "/index.php?do=search"
	profile.SearchMethod = http.MethodPost
	profile.SearchBody = "do=search&subaction=search&story={query}"
	adapter := New(profile, srv.Client())

	res, err := adapter.Resolve(context.Background(), models.Query{Text: "the matrix"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(res.Items))
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
	if gotBody != "do=search&subaction=search&story=the+matrix" {
		t.Fatalf("unexpected form body %q", gotBody)
	}
}
