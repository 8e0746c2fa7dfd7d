package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Resolution step failures. Any of them falls back to the original stream.
var (
	ErrNoVideoFile     = errors.New("no video file in torrent")
	ErrNoGeneratedLink = errors.New("no generated link on torrent")
)

var videoExtPattern = regexp.MustCompile(`(?i)\.(mp4|mkv|avi|mov|m4v)$`)

// RealDebridClient handles API interactions with Real-Debrid.
// It implements the Provider interface. The four endpoints it speaks
// (magnet registration, torrent info, file selection, link unrestriction)
// are a frozen external wire contract.
type RealDebridClient struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

var _ Provider = (*RealDebridClient)(nil)

// NewRealDebridClient creates a new Real-Debrid API client.
func NewRealDebridClient(token string) *RealDebridClient {
	return &RealDebridClient{
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.real-debrid.com/rest/1.0",
	}
}

func (c *RealDebridClient) Name() string { return "realdebrid" }
func (c *RealDebridClient) Tag() string  { return "RD" }

func init() {
	RegisterProvider("realdebrid", func(token string) Provider {
		return NewRealDebridClient(token)
	})
}

// TorrentFile is one file within a registered torrent.
type TorrentFile struct {
	ID    int    `json:"id"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// TorrentInfo is the job state for a registered magnet.
type TorrentInfo struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Files  []TorrentFile `json:"files"`
	Links  []string      `json:"links"`
}

// ResolveMagnet runs the sequential six-step resolution flow: register the
// magnet, fetch the file listing, pick the largest video file, select it,
// re-fetch for the generated link, unrestrict it into a direct URL. Each
// step depends on the previous one's output; the first failure aborts.
func (c *RealDebridClient) ResolveMagnet(ctx context.Context, magnet string) (string, error) {
	torrentID, err := c.AddMagnet(ctx, magnet)
	if err != nil {
		return "", fmt.Errorf("add magnet: %w", err)
	}

	info, err := c.TorrentInfo(ctx, torrentID)
	if err != nil {
		return "", fmt.Errorf("torrent info: %w", err)
	}

	target, err := largestVideoFile(info.Files)
	if err != nil {
		return "", err
	}

	if err := c.SelectFiles(ctx, torrentID, strconv.Itoa(target.ID)); err != nil {
		return "", fmt.Errorf("select files: %w", err)
	}

	// Selection triggers link generation; a fresh info fetch picks it up.
	info, err = c.TorrentInfo(ctx, torrentID)
	if err != nil {
		return "", fmt.Errorf("torrent info after select: %w", err)
	}
	if len(info.Links) == 0 {
		return "", ErrNoGeneratedLink
	}

	download, err := c.UnrestrictLink(ctx, info.Links[0])
	if err != nil {
		return "", fmt.Errorf("unrestrict: %w", err)
	}
	log.Printf("[realdebrid] resolved magnet to %s", download)
	return download, nil
}

// largestVideoFile picks the single largest file whose name carries a known
// video extension.
func largestVideoFile(files []TorrentFile) (TorrentFile, error) {
	videos := lo.Filter(files, func(f TorrentFile, _ int) bool {
		return videoExtPattern.MatchString(f.Path)
	})
	if len(videos) == 0 {
		return TorrentFile{}, ErrNoVideoFile
	}
	return lo.MaxBy(videos, func(a, b TorrentFile) bool { return a.Bytes > b.Bytes }), nil
}

// AddMagnet registers a magnet link and returns the torrent job ID.
func (c *RealDebridClient) AddMagnet(ctx context.Context, magnet string) (string, error) {
	trimmed := strings.TrimSpace(magnet)
	if trimmed == "" {
		return "", fmt.Errorf("magnet URL is required")
	}

	form := url.Values{}
	form.Set("magnet", trimmed)

	body, err := c.postForm(ctx, "/torrents/addMagnet", form)
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode add magnet response: %w (body: %s)", err, string(body))
	}
	if result.ID == "" {
		return "", fmt.Errorf("no torrent id returned")
	}
	return result.ID, nil
}

// TorrentInfo retrieves the job state, including files and generated links.
func (c *RealDebridClient) TorrentInfo(ctx context.Context, torrentID string) (*TorrentInfo, error) {
	trimmed := strings.TrimSpace(torrentID)
	if trimmed == "" {
		return nil, fmt.Errorf("torrent ID is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/torrents/info/"+url.PathEscape(trimmed), nil)
	if err != nil {
		return nil, fmt.Errorf("build torrent info request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var info TorrentInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode torrent info response: %w (body: %s)", err, string(body))
	}
	return &info, nil
}

// SelectFiles marks files for download on a registered torrent. This is
// best-effort: a non-success status is logged, not returned, since the
// follow-up info fetch is what actually confirms link generation.
func (c *RealDebridClient) SelectFiles(ctx context.Context, torrentID, fileIDs string) error {
	form := url.Values{}
	form.Set("files", fileIDs)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/torrents/selectFiles/"+url.PathEscape(torrentID), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build select files request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("select files request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		log.Printf("[realdebrid] select files for %s answered %d (continuing)", torrentID, resp.StatusCode)
	}
	return nil
}

// UnrestrictLink exchanges a generated link for a direct download URL.
func (c *RealDebridClient) UnrestrictLink(ctx context.Context, link string) (string, error) {
	trimmed := strings.TrimSpace(link)
	if trimmed == "" {
		return "", fmt.Errorf("link is required")
	}

	form := url.Values{}
	form.Set("link", trimmed)

	body, err := c.postForm(ctx, "/unrestrict/link", form)
	if err != nil {
		return "", err
	}

	var result struct {
		Download string `json:"download"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode unrestrict response: %w (body: %s)", err, string(body))
	}
	if result.Download == "" {
		return "", fmt.Errorf("no download url returned")
	}
	return result.Download, nil
}

func (c *RealDebridClient) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *RealDebridClient) do(req *http.Request) ([]byte, error) {
	if c.token == "" {
		return nil, fmt.Errorf("realdebrid token not configured")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("realdebrid authentication failed: invalid token")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s %s status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
