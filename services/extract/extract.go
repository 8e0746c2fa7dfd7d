// Package extract recovers canonical streams from already-fetched page or
// embedded-player text. It is pure and synchronous: callers fetch, extract
// parses. Extraction is tiered (structured player payload, raw URLs in the
// payload, <source> media tags, then bare extension patterns) and stops at
// the first tier that yields at least one stream.
package extract

import (
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"streamhub/models"
)

// Options carry per-request context for extraction.
type Options struct {
	Season  int    // requested season, 0 = first available
	Episode int    // requested episode, 0 = first available
	Source  string // source name used for stream IDs and default labels
}

var (
	escapedSlash   = strings.NewReplacer(`\/`, `/`)
	httpPattern    = regexp.MustCompile(`(?i)^https?://`)
	rawURLPattern  = regexp.MustCompile(`https?://[^\s'"]+`)
	m3u8Pattern    = regexp.MustCompile(`(?i)https?:[^"'\s]+\.m3u8`)
	filePattern    = regexp.MustCompile(`(?i)https?:[^"'\s]+\.(?:mp4|mkv|avi)`)
	qualityPattern = regexp.MustCompile(`(2160|1080|720|480|360)p?`)
	subListPattern = regexp.MustCompile(`\[([^\]]+)\](https?://\S+)`)
	yearPattern    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// Streams runs the tiered extraction over page or player text and returns
// every canonical stream it can recover. An empty result is not an error:
// it means no playable link was found.
func Streams(text string, opts Options) []models.Stream {
	if opts.Source == "" {
		opts.Source = "stream"
	}

	filePart := ConfigValue(text, "file")
	if filePart == "" {
		filePart = ConfigValue(text, "link")
	}
	subtitleRaw := ConfigValue(text, "subtitle")

	var streams []models.Stream
	if filePart != "" {
		streams = fromFilePayload(filePart, opts)
	}
	if len(streams) == 0 {
		streams = fromMediaTags(text, opts)
	}
	if len(streams) == 0 {
		streams = fromPattern(text, m3u8Pattern, opts)
	}
	if len(streams) == 0 {
		streams = fromPattern(text, filePattern, opts)
	}

	if subtitleRaw != "" && len(streams) > 0 {
		// Player configs carry one subtitle set per embed, so only the first
		// stream gets them.
		if subs := ParseSubtitles(subtitleRaw); len(subs) > 0 {
			streams[0].Subtitles = subs
		}
	}

	if len(streams) == 0 {
		log.Printf("[extract] %s: no streams parsed (%d bytes of input)", opts.Source, len(text))
	}
	return streams
}

// fromFilePayload is the structured tier with its raw-URL fallback. The
// payload either parses into a tagged player variant, or gets scanned for
// absolute URLs, or, when it does not even look like JSON, is treated as a
// bare URL candidate.
func fromFilePayload(raw string, opts Options) []models.Stream {
	cleaned := strings.TrimSuffix(strings.TrimSpace(html.UnescapeString(raw)), ";")

	payload, err := parsePlayerPayload(cleaned)
	if err == nil {
		return fromPayload(payload, opts)
	}
	log.Printf("[extract] %s: payload parse failed, scanning raw: %v", opts.Source, err)

	if urls := rawURLPattern.FindAllString(cleaned, -1); len(urls) > 0 {
		var streams []models.Stream
		for _, u := range urls {
			streams = appendStream(streams, opts, u, "", "")
		}
		return streams
	}
	if !strings.HasPrefix(cleaned, "[") && !strings.HasPrefix(cleaned, "{") {
		return appendStream(nil, opts, cleaned, "", "")
	}
	log.Printf("[extract] %s: file payload not parsed (%d bytes)", opts.Source, len(cleaned))
	return nil
}

// fromPayload emits streams for a decoded player variant.
func fromPayload(payload playerPayload, opts Options) []models.Stream {
	var streams []models.Stream
	switch payload.kind {
	case payloadFlatURL:
		streams = appendStream(streams, opts, payload.url, "", "")
	case payloadVoiceList:
		// Every voice may contribute a stream; the tier does not stop after
		// the first one.
		for _, v := range payload.voices {
			if len(v.Folder) > 0 {
				if ep := pickEpisode(v.Folder, opts.Season, opts.Episode); ep != nil {
					title := firstNonEmpty(v.Title, ep.Title, "episode")
					streams = appendStream(streams, opts, ep.File, title, v.Title)
					if ep.Subtitle != "" && len(streams) > 0 {
						if subs := ParseSubtitles(ep.Subtitle); len(subs) > 0 {
							streams[0].Subtitles = subs
						}
					}
				}
			}
			if v.File != "" {
				streams = appendStream(streams, opts, v.File, v.Title, v.Title)
			}
		}
	case payloadKeyedMap:
		for _, entry := range payload.entries {
			streams = appendStream(streams, opts, entry.url, entry.title, "")
		}
	}
	return streams
}

// fromMediaTags scans markup for <source src=...> media elements.
func fromMediaTags(text string, opts Options) []models.Stream {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}
	var streams []models.Stream
	doc.Find("source").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			streams = appendStream(streams, opts, src, "source", "")
		}
	})
	return streams
}

// fromPattern emits one stream per distinct regex match over the full text.
func fromPattern(text string, pattern *regexp.Regexp, opts Options) []models.Stream {
	seen := make(map[string]struct{})
	var streams []models.Stream
	for _, u := range pattern.FindAllString(text, -1) {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		streams = appendStream(streams, opts, u, "", "")
	}
	return streams
}

// appendStream normalizes a candidate URL and, when it survives, appends a
// canonical stream. Escaped slashes are unescaped, protocol-relative URLs get
// https:, and anything that still is not http(s) is dropped rather than
// emitted.
func appendStream(streams []models.Stream, opts Options, rawURL, title, voiceLabel string) []models.Stream {
	u := NormalizeURL(rawURL)
	if u == "" {
		return streams
	}
	quality := QualityFrom(u)
	if quality == "" {
		quality = QualityFrom(title)
	}
	if title == "" {
		title = quality
	}
	if title == "" {
		title = "Stream"
	}
	source := voiceLabel
	if source == "" {
		source = opts.Source
	}
	return append(streams, models.Stream{
		ID:      fmt.Sprintf("%s-%d", opts.Source, len(streams)),
		Title:   title,
		URL:     u,
		Quality: quality,
		Source:  source,
	})
}

// NormalizeURL applies the emission rule: unescape slashes, prefix
// protocol-relative URLs with https:, and reject anything that is not
// absolute http(s) afterwards (empty return).
func NormalizeURL(raw string) string {
	u := escapedSlash.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if !httpPattern.MatchString(u) {
		return ""
	}
	return u
}

// QualityFrom infers a quality label (e.g. "1080p") from a URL or title.
// Returns "" when the value carries no recognizable resolution.
func QualityFrom(value string) string {
	m := qualityPattern.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1] + "p"
}

// ParseSubtitles parses the comma-separated "[lang]url" list a player's
// subtitle key carries.
func ParseSubtitles(raw string) []models.Subtitle {
	var subs []models.Subtitle
	for _, part := range strings.Split(raw, ",") {
		m := subListPattern.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		subs = append(subs, models.Subtitle{URL: m[2], Lang: m[1], Label: m[1]})
	}
	return subs
}

// ConfigValue scans text for a key:value (or key=value) player-config entry.
// It accepts single- or double-quoted values spanning lines, then falls back
// to a bare value terminated by a comma, semicolon or newline.
func ConfigValue(text, key string) string {
	quoted := []string{
		`(?is)` + regexp.QuoteMeta(key) + `\s*[:=]\s*"(.*?)"`,
		`(?is)` + regexp.QuoteMeta(key) + `\s*[:=]\s*'(.*?)'`,
	}
	// Both quote kinds compete on position: the earliest occurrence in the
	// text wins, not the first pattern that matches anywhere.
	best := -1
	value := ""
	for _, p := range quoted {
		if loc := regexp.MustCompile(p).FindStringSubmatchIndex(text); loc != nil {
			if best == -1 || loc[0] < best {
				best = loc[0]
				value = text[loc[2]:loc[3]]
			}
		}
	}
	if best >= 0 {
		return value
	}
	bare := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(key) + `\s*[:=]\s*([^,;\n]+)`)
	if m := bare.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// YearFrom returns the first 19xx/20xx match in text, 0 when absent.
func YearFrom(text string) int {
	return numberFromTitle(yearPattern.FindString(text))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
