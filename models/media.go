package models

import "strings"

// MediaType classifies a canonical item.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
	MediaTypeAny    MediaType = "any"
)

// Query is the normalized request fanned out to every configured source.
// ExternalID accepts several alias spellings on the wire (imdb, imdbId,
// kinopoisk); Normalize folds them into the canonical field before dispatch.
type Query struct {
	Text       string    `json:"query,omitempty"`
	ExternalID string    `json:"externalId,omitempty"`
	IMDB       string    `json:"imdb,omitempty"`
	IMDBID     string    `json:"imdbId,omitempty"`
	Kinopoisk  string    `json:"kinopoisk,omitempty"`
	DirectRef  string    `json:"href,omitempty"`
	MediaType  MediaType `json:"type,omitempty"`
	Year       int       `json:"year,omitempty"`
	Season     int       `json:"season,omitempty"`
	Episode    int       `json:"episode,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Normalize folds the accepted external-id aliases into ExternalID.
// The first non-empty alias wins; aliases are cleared afterwards so sources
// only ever see the canonical field.
func (q *Query) Normalize() {
	if q.ExternalID == "" {
		for _, alias := range []string{q.IMDB, q.IMDBID, q.Kinopoisk} {
			if strings.TrimSpace(alias) != "" {
				q.ExternalID = strings.TrimSpace(alias)
				break
			}
		}
	}
	q.IMDB = ""
	q.IMDBID = ""
	q.Kinopoisk = ""
	q.Text = strings.TrimSpace(q.Text)
	q.ExternalID = strings.TrimSpace(q.ExternalID)
	q.DirectRef = strings.TrimSpace(q.DirectRef)
}

// Valid reports whether the query satisfies the "at least one of text or
// external id" invariant. Call Normalize first so aliases count.
func (q Query) Valid() bool {
	return q.Text != "" || q.ExternalID != ""
}

// Subtitle is a subtitle track attached to a stream.
type Subtitle struct {
	URL   string `json:"url"`
	Lang  string `json:"lang,omitempty"`
	Label string `json:"label,omitempty"`
}

// Stream is a resolved playable link. URL is always an absolute http(s),
// magnet: or other explicit-scheme URL; relative inputs are normalized or
// dropped before a Stream is constructed.
type Stream struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	URL       string     `json:"url"`
	Quality   string     `json:"quality,omitempty"`
	Source    string     `json:"source,omitempty"`
	Subtitles []Subtitle `json:"subtitles,omitempty"`
}

// Item is a candidate title. ID is source-local (typically a page URL or an
// upstream key) and unique only within one source's result set.
type Item struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Type    MediaType `json:"type"`
	Year    int       `json:"year,omitempty"`
	Poster  string    `json:"poster,omitempty"`
	Streams []Stream  `json:"streams"`
}

// SourceResult is one source's answer to a query. Streams is the source's
// convenience flattening of its first resolvable item's streams.
type SourceResult struct {
	Items   []Item   `json:"items"`
	Streams []Stream `json:"streams"`
}

// AggregateResult merges every source's partial answer. SourceErrors maps a
// failed source's name to a human-readable message; it is omitted when every
// source succeeded.
type AggregateResult struct {
	Items        []Item            `json:"items"`
	Streams      []Stream          `json:"streams"`
	SourceErrors map[string]string `json:"sourceErrors,omitempty"`
}
