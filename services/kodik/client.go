// Package kodik implements the source contract over the Kodik token API.
// Unlike the scraping adapter it never parses markup: search answers JSON
// records that already carry a playable embed link and, for series, a
// season to episode link map.
package kodik

import (
	"context"
	"encoding/json"
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

	"streamhub/models"
	"streamhub/services/extract"
)

const (
	defaultAPIURL    = "https://kodikapi.com"
	defaultUserAgent = "StreamHub/0.1"
	defaultLimit     = 10
)

var imdbIDPattern = regexp.MustCompile(`^tt\d+$`)

// Client resolves queries through the Kodik search API.
type Client struct {
	name       string
	apiURL     string
	token      string
	userAgent  string
	httpClient *http.Client
}

// New constructs a source bound to the API. An empty apiURL falls back to
// the public endpoint; a nil client gets a 15-second-timeout default.
func New(name, apiURL, token string, client *http.Client) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if name == "" {
		name = "kodik"
	}
	return &Client{
		name:       name,
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      strings.TrimSpace(token),
		userAgent:  defaultUserAgent,
		httpClient: client,
	}
}

func (c *Client) Name() string {
	return c.name
}

type searchResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	TitleOrig   string `json:"title_orig"`
	Year        int    `json:"year"`
	Link        string `json:"link"`
	Type        string `json:"type"`
	Translation struct {
		Title string `json:"title"`
	} `json:"translation"`
	MaterialData struct {
		PosterURL string `json:"poster_url"`
	} `json:"material_data"`
	// season number -> episode number -> {link}
	Episodes map[string]map[string]struct {
		Link string `json:"link"`
	} `json:"episodes"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Resolve searches the API, filters by year and maps the records onto the
// canonical model. The first item gets its streams attached: the requested
// episode's link when a season and episode are given and present in the
// record's episode map, otherwise the record's main embed link.
func (c *Client) Resolve(ctx context.Context, q models.Query) (*models.SourceResult, error) {
	if q.Text == "" && q.ExternalID == "" {
		return nil, fmt.Errorf("query carries neither text nor an external id")
	}
	if c.token == "" {
		return nil, fmt.Errorf("kodik token not configured")
	}

	results, err := c.search(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.Year > 0 {
		results = lo.Filter(results, func(r searchResult, _ int) bool { return r.Year == q.Year })
	}

	out := &models.SourceResult{Items: []models.Item{}, Streams: []models.Stream{}}
	for _, r := range results {
		out.Items = append(out.Items, c.toItem(r))
	}
	if len(out.Items) > 0 {
		if streams := c.streamsFor(results[0], q.Season, q.Episode); len(streams) > 0 {
			out.Items[0].Streams = streams
			out.Streams = streams
		}
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, q models.Query) ([]searchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	params := url.Values{}
	params.Set("token", c.token)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("with_episodes", "true")
	params.Set("with_seasons", "true")
	params.Set("with_material_data", "true")
	// The API distinguishes id namespaces; an imdb-shaped id goes to
	// imdb_id, any other id is a kinopoisk key.
	if q.ExternalID != "" {
		if imdbIDPattern.MatchString(q.ExternalID) {
			params.Set("imdb_id", q.ExternalID)
		} else {
			params.Set("kinopoisk_id", q.ExternalID)
		}
	}
	if q.Text != "" {
		params.Set("title", q.Text)
	}
	if q.Season > 0 {
		params.Set("season", strconv.Itoa(q.Season))
	}
	switch q.MediaType {
	case models.MediaTypeSeries:
		params.Set("types", "serial")
	case models.MediaTypeMovie:
		params.Set("types", "movie")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("kodik status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	log.Printf("[%s] search answered %d result(s)", c.name, len(decoded.Results))
	return decoded.Results, nil
}

func (c *Client) toItem(r searchResult) models.Item {
	title := r.Title
	if title == "" {
		title = r.TitleOrig
	}
	if title == "" {
		title = "Unknown"
	}
	id := r.ID
	if id == "" {
		id = r.Link
	}
	if id == "" {
		id = title
	}
	mediaType := models.MediaTypeMovie
	if strings.Contains(r.Type, "serial") {
		mediaType = models.MediaTypeSeries
	}
	return models.Item{
		ID:      id,
		Title:   title,
		Type:    mediaType,
		Year:    r.Year,
		Poster:  r.MaterialData.PosterURL,
		Streams: []models.Stream{},
	}
}

// streamsFor selects the episode link when one was requested and the record
// carries it, and otherwise falls back to the record's main embed link.
func (c *Client) streamsFor(r searchResult, season, episode int) []models.Stream {
	if season > 0 && episode > 0 && r.Episodes != nil {
		if episodes, ok := r.Episodes[strconv.Itoa(season)]; ok {
			if ep, ok := episodes[strconv.Itoa(episode)]; ok && ep.Link != "" {
				return c.appendStream(nil, ep.Link, fmt.Sprintf("S%dE%d", season, episode), r.Translation.Title)
			}
		}
	}
	if r.Link != "" {
		title := r.Translation.Title
		if title == "" {
			title = "Kodik"
		}
		return c.appendStream(nil, r.Link, title, r.Translation.Title)
	}
	return nil
}

// appendStream applies the shared emission rule: protocol-relative links get
// https:, anything that still is not absolute http(s) is dropped.
func (c *Client) appendStream(streams []models.Stream, rawURL, title, source string) []models.Stream {
	u := extract.NormalizeURL(rawURL)
	if u == "" {
		return streams
	}
	quality := extract.QualityFrom(u)
	if title == "" {
		title = quality
	}
	if title == "" {
		title = "Stream"
	}
	if source == "" {
		source = c.name
	}
	return append(streams, models.Stream{
		ID:      fmt.Sprintf("%s-%d", c.name, len(streams)),
		Title:   title,
		URL:     u,
		Quality: quality,
		Source:  source,
	})
}
