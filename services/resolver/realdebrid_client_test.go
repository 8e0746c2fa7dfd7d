package resolver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) (*http.Response, error) {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}, nil
}

func newTestClient(t *testing.T, rt roundTripFunc) *RealDebridClient {
	t.Helper()
	c := NewRealDebridClient("tok")
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func TestResolveMagnetFullFlow(t *testing.T) {
	var (
		mu            sync.Mutex
		selectedFiles string
		infoCalls     int
	)

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		if got := req.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("missing bearer token, got %q", got)
		}
		switch req.URL.Path {
		case "/torrents/addMagnet":
			if err := req.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if req.PostForm.Get("magnet") != "magnet:?xt=urn:btih:abc" {
				t.Fatalf("unexpected magnet %q", req.PostForm.Get("magnet"))
			}
			return jsonResponse(http.StatusCreated, `{"id":"T1"}`)
		case "/torrents/info/T1":
			infoCalls++
			if infoCalls == 1 {
				return jsonResponse(http.StatusOK, `{
					"id":"T1","status":"waiting_files_selection",
					"files":[
						{"id":1,"path":"/sample.txt","bytes":100},
						{"id":2,"path":"/movie.1080p.mkv","bytes":5000000},
						{"id":3,"path":"/trailer.mp4","bytes":2000}
					],
					"links":[]
				}`)
			}
			return jsonResponse(http.StatusOK, `{"id":"T1","status":"downloaded","files":[],"links":["https://real-debrid.com/d/XYZ"]}`)
		case "/torrents/selectFiles/T1":
			if err := req.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			selectedFiles = req.PostForm.Get("files")
			return jsonResponse(http.StatusNoContent, ``)
		case "/unrestrict/link":
			if err := req.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if req.PostForm.Get("link") != "https://real-debrid.com/d/XYZ" {
				t.Fatalf("unexpected link %q", req.PostForm.Get("link"))
			}
			return jsonResponse(http.StatusOK, `{"download":"https://dl.real-debrid.com/movie.mkv"}`)
		default:
			t.Fatalf("unexpected request path: %s", req.URL.Path)
			return nil, nil
		}
	})

	direct, err := client.ResolveMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	require.NoError(t, err)
	require.Equal(t, "https://dl.real-debrid.com/movie.mkv", direct)
	require.Equal(t, "2", selectedFiles, "should select the largest video file")
	require.Equal(t, 2, infoCalls)
}

func TestResolveMagnetNoVideoFile(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/torrents/addMagnet":
			return jsonResponse(http.StatusCreated, `{"id":"T1"}`)
		case "/torrents/info/T1":
			return jsonResponse(http.StatusOK, `{"id":"T1","files":[{"id":1,"path":"/readme.txt","bytes":10}],"links":[]}`)
		default:
			t.Fatalf("unexpected request path: %s", req.URL.Path)
			return nil, nil
		}
	})

	_, err := client.ResolveMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	if !errors.Is(err, ErrNoVideoFile) {
		t.Fatalf("expected ErrNoVideoFile, got %v", err)
	}
}

func TestResolveMagnetNoGeneratedLink(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/torrents/addMagnet":
			return jsonResponse(http.StatusCreated, `{"id":"T1"}`)
		case "/torrents/info/T1":
			return jsonResponse(http.StatusOK, `{"id":"T1","files":[{"id":1,"path":"/a.mkv","bytes":10}],"links":[]}`)
		case "/torrents/selectFiles/T1":
			return jsonResponse(http.StatusNoContent, ``)
		default:
			t.Fatalf("unexpected request path: %s", req.URL.Path)
			return nil, nil
		}
	})

	_, err := client.ResolveMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	if !errors.Is(err, ErrNoGeneratedLink) {
		t.Fatalf("expected ErrNoGeneratedLink, got %v", err)
	}
}

func TestSelectFilesToleratesErrorStatus(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusServiceUnavailable, `{"error":"busy"}`)
	})

	if err := client.SelectFiles(context.Background(), "T1", "2"); err != nil {
		t.Fatalf("error status should not fail selection: %v", err)
	}
}

func TestAddMagnetValidation(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := client.AddMagnet(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty magnet")
	}
}

func TestAuthenticationFailure(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error":"bad_token"}`)
	})
	_, err := client.AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	require.ErrorContains(t, err, "invalid token")
}

func TestLargestVideoFile(t *testing.T) {
	files := []TorrentFile{
		{ID: 1, Path: "/subs/en.srt", Bytes: 40},
		{ID: 2, Path: "/movie.mp4", Bytes: 900},
		{ID: 3, Path: "/movie.remux.MKV", Bytes: 9000},
		{ID: 4, Path: "/sample.avi", Bytes: 50},
	}
	got, err := largestVideoFile(files)
	require.NoError(t, err)
	require.Equal(t, 3, got.ID)

	if _, err := largestVideoFile(nil); !errors.Is(err, ErrNoVideoFile) {
		t.Fatalf("expected ErrNoVideoFile, got %v", err)
	}
}
