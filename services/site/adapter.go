// Package site implements the uniform source-adapter contract over one
// upstream content site. The adapter orchestrates fetching (search listing,
// detail page, embedded player iframe) and hands already-fetched text to the
// extraction engine; which elements to look at comes from a swappable
// Profile, not from code.
package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"streamhub/models"
	"streamhub/services/extract"
)

const defaultLimit = 10

// Adapter resolves queries against a single site.
type Adapter struct {
	profile Profile
	client  *http.Client
}

// New constructs an adapter for the given profile. A nil client gets a
// 15-second-timeout default; the per-request context still bounds every call.
func New(profile Profile, client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if profile.UserAgent == "" {
		profile.UserAgent = defaultUserAgent
	}
	profile.BaseURL = strings.TrimRight(profile.BaseURL, "/")
	return &Adapter{profile: profile, client: client}
}

func (a *Adapter) Name() string {
	return a.profile.Name
}

// Resolve runs the two adapter branches. A direct page reference (explicit
// href or a URL-shaped external id) goes straight to detail resolution; free
// text (or a non-URL external id) runs the search listing. Both may run and
// their items are appended: direct-reference results first.
func (a *Adapter) Resolve(ctx context.Context, q models.Query) (*models.SourceResult, error) {
	directRef := q.DirectRef
	if directRef == "" && strings.HasPrefix(q.ExternalID, "http") {
		directRef = q.ExternalID
	}
	text := q.Text
	if text == "" && q.ExternalID != "" && !strings.HasPrefix(q.ExternalID, "http") {
		text = q.ExternalID
	}
	if directRef == "" && text == "" {
		return nil, errors.New("query carries neither text nor a page reference")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var items []models.Item

	if directRef != "" {
		item, err := a.loadDetail(ctx, directRef, q.Season, q.Episode)
		if err != nil {
			return nil, fmt.Errorf("detail %s: %w", directRef, err)
		}
		items = append(items, *item)
	}

	if text != "" {
		found, err := a.search(ctx, text, limit)
		if err != nil {
			// A failed search degrades to zero listing results; it does not
			// fail the adapter call.
			log.Printf("[%s] search failed: %v", a.profile.Name, err)
		}
		items = append(items, found...)
	}

	if q.Year > 0 {
		items = lo.Filter(items, func(it models.Item, _ int) bool { return it.Year == q.Year })
	}

	// Best-effort enrichment: when the first candidate has no streams yet and
	// its id is itself fetchable, pull its detail page once.
	if len(items) > 0 && len(items[0].Streams) == 0 && strings.HasPrefix(items[0].ID, "http") {
		if detail, err := a.loadDetail(ctx, items[0].ID, q.Season, q.Episode); err != nil {
			log.Printf("[%s] enrich failed for %s: %v", a.profile.Name, items[0].ID, err)
		} else if len(detail.Streams) > 0 {
			items[0].Streams = detail.Streams
		}
	}

	result := &models.SourceResult{Items: items, Streams: []models.Stream{}}
	if result.Items == nil {
		result.Items = []models.Item{}
	}
	if len(items) > 0 && len(items[0].Streams) > 0 {
		result.Streams = items[0].Streams
	}
	return result, nil
}

// search fetches the site's search endpoint and parses the listing.
func (a *Adapter) search(ctx context.Context, query string, limit int) ([]models.Item, error) {
	escaped := url.QueryEscape(query)
	searchURL := a.profile.absolute(strings.ReplaceAll(a.profile.SearchURL, "{query}", escaped))

	method := a.profile.SearchMethod
	if method == "" {
		method = http.MethodGet
	}
	var body string
	headers := map[string]string{"Referer": a.profile.BaseURL}
	if method == http.MethodPost {
		body = strings.ReplaceAll(a.profile.SearchBody, "{query}", escaped)
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}

	text, err := a.fetch(ctx, method, searchURL, body, headers)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if a.profile.SearchKind == "json" {
		return a.parseSearchJSON(text, limit)
	}
	return a.parseSearchHTML(text, limit)
}

func (a *Adapter) parseSearchHTML(text string, limit int) ([]models.Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse search listing: %w", err)
	}
	sel := a.profile.Selectors

	var items []models.Item
	doc.Find(sel.Result).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}
		title := strings.TrimSpace(s.Find(sel.ResultTitle).First().Text())
		href := ""
		if sel.ResultHref != "" {
			href = s.Find(sel.ResultHref).First().AttrOr("href", "")
		} else {
			href = s.AttrOr("href", "")
		}
		if title == "" || href == "" {
			return true
		}
		poster := s.Find(sel.ResultPoster).First().AttrOr("data-src", "")
		if poster == "" {
			poster = s.Find(sel.ResultPoster).First().AttrOr("src", "")
		}
		items = append(items, models.Item{
			ID:      a.profile.absolute(href),
			Title:   title,
			Type:    a.mediaTypeFrom(s.Text()),
			Year:    extract.YearFrom(s.Text()),
			Poster:  a.profile.absolute(poster),
			Streams: []models.Stream{},
		})
		return true
	})
	return items, nil
}

// parseSearchJSON handles sites whose search endpoint answers with a JSON
// movie listing instead of markup.
func (a *Adapter) parseSearchJSON(text string, limit int) ([]models.Item, error) {
	var payload struct {
		Movies []struct {
			Name   string `json:"name"`
			Link   string `json:"link"`
			Poster string `json:"poster"`
			Year   int    `json:"year"`
		} `json:"movies"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode search listing: %w", err)
	}

	var items []models.Item
	for _, m := range payload.Movies {
		if len(items) >= limit {
			break
		}
		if m.Name == "" || m.Link == "" {
			continue
		}
		items = append(items, models.Item{
			ID:      a.profile.absolute(m.Link),
			Title:   m.Name,
			Type:    models.MediaTypeMovie,
			Year:    m.Year,
			Poster:  a.profile.absolute(m.Poster),
			Streams: []models.Stream{},
		})
	}
	return items, nil
}

// loadDetail fetches the canonical detail page, locates the embedded player
// iframe and runs extraction against the player text (or, absent a player,
// the page itself).
func (a *Adapter) loadDetail(ctx context.Context, pageURL string, season, episode int) (*models.Item, error) {
	pageURL = a.profile.absolute(pageURL)
	pageHTML, err := a.fetch(ctx, http.MethodGet, pageURL, "", map[string]string{"Referer": a.profile.BaseURL})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}
	sel := a.profile.Selectors

	title := strings.TrimSpace(doc.Find(sel.DetailTitle).First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = pageURL
	}

	poster := doc.Find(sel.DetailPoster).First().AttrOr("src", "")
	if poster == "" {
		poster = doc.Find(sel.DetailPoster).First().AttrOr("content", "")
	}
	if poster == "" {
		poster = doc.Find("meta[property='og:image']").First().AttrOr("content", "")
	}
	if poster == "" {
		poster = doc.Find("img[itemprop='image']").First().AttrOr("src", "")
	}
	poster = a.profile.absolute(poster)

	year := extract.YearFrom(doc.Find(sel.DetailYear).First().Text())
	if year == 0 {
		year = extract.YearFrom(pageHTML)
	}

	playerText := a.fetchPlayer(ctx, doc, pageURL)
	target := playerText
	if target == "" {
		target = pageHTML
	}
	streams := extract.Streams(target, extract.Options{
		Season:  season,
		Episode: episode,
		Source:  a.profile.Name,
	})

	mediaType := models.MediaTypeMovie
	if season > 0 || episode > 0 {
		mediaType = models.MediaTypeSeries
	}

	return &models.Item{
		ID:      pageURL,
		Title:   title,
		Type:    mediaType,
		Year:    year,
		Poster:  poster,
		Streams: streams,
	}, nil
}

// fetchPlayer locates the embedded player iframe and fetches it with the
// Referer/Origin headers players gate on. Returns "" when there is no iframe
// or the fetch fails; extraction then runs against the detail page itself.
func (a *Adapter) fetchPlayer(ctx context.Context, doc *goquery.Document, pageURL string) string {
	frameSrc := doc.Find(a.profile.Selectors.PlayerFrame).First().AttrOr("src", "")
	if frameSrc == "" {
		frameSrc = doc.Find("iframe").First().AttrOr("src", "")
	}
	frameSrc = a.profile.absolute(frameSrc)
	if frameSrc == "" {
		return ""
	}

	headers := map[string]string{"Referer": pageURL}
	if u, err := url.Parse(frameSrc); err == nil {
		headers["Origin"] = u.Scheme + "://" + u.Host
	}
	playerText, err := a.fetch(ctx, http.MethodGet, frameSrc, "", headers)
	if err != nil {
		log.Printf("[%s] player fetch failed for %s: %v", a.profile.Name, frameSrc, err)
		return ""
	}
	log.Printf("[%s] player fetched: %s (%d bytes)", a.profile.Name, frameSrc, len(playerText))
	return playerText
}

func (a *Adapter) fetch(ctx context.Context, method, rawURL, body string, headers map[string]string) (string, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", a.profile.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func (a *Adapter) mediaTypeFrom(metaText string) models.MediaType {
	lowered := strings.ToLower(metaText)
	for _, marker := range a.profile.SeriesMarkers {
		if strings.Contains(lowered, marker) {
			return models.MediaTypeSeries
		}
	}
	return models.MediaTypeMovie
}
