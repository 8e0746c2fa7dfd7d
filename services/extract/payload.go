package extract

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Embedded players ship their configuration in one of three shapes: a flat
// URL string, an array of "voice" (audio track) records each optionally
// carrying a nested season→episode folder tree, or a flat key→value map.
// parsePlayerPayload decodes the quasi-JSON into a closed variant right at
// the parse boundary so the tier logic dispatches on a tag instead of
// probing types.
type payloadKind int

const (
	payloadFlatURL payloadKind = iota
	payloadVoiceList
	payloadKeyedMap
)

type playerPayload struct {
	kind    payloadKind
	url     string
	voices  []voice
	entries []keyedEntry
}

type voice struct {
	Title  string       `json:"title"`
	File   string       `json:"file"`
	Folder []seasonNode `json:"folder"`
}

type seasonNode struct {
	Title  string        `json:"title"`
	Folder []episodeNode `json:"folder"`
}

type episodeNode struct {
	Title    string `json:"title"`
	File     string `json:"file"`
	Subtitle string `json:"subtitle"`
	Poster   string `json:"poster"`
}

type keyedEntry struct {
	key   string
	url   string
	title string
}

// parsePlayerPayload turns a player-config value into a tagged variant.
// Player configs are frequently quasi-JSON (single quotes, HTML entities), so
// the text is entity-decoded and single quotes are rewritten to double quotes
// before parsing. This is a best-effort transform: a parse failure just means
// the caller falls through to the raw-URL tier.
func parsePlayerPayload(raw string) (playerPayload, error) {
	normalized := strings.ReplaceAll(html.UnescapeString(strings.TrimSpace(raw)), "'", `"`)
	switch {
	case strings.HasPrefix(normalized, "["):
		var voices []voice
		if err := json.Unmarshal([]byte(normalized), &voices); err != nil {
			return playerPayload{}, fmt.Errorf("voice list: %w", err)
		}
		return playerPayload{kind: payloadVoiceList, voices: voices}, nil
	case strings.HasPrefix(normalized, "{"):
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(normalized), &fields); err != nil {
			return playerPayload{}, fmt.Errorf("keyed map: %w", err)
		}
		return playerPayload{kind: payloadKeyedMap, entries: keyedEntries(fields)}, nil
	default:
		var flat string
		if err := json.Unmarshal([]byte(normalized), &flat); err != nil {
			return playerPayload{}, fmt.Errorf("flat value: %w", err)
		}
		return playerPayload{kind: payloadFlatURL, url: flat}, nil
	}
}

// keyedEntries flattens a key→value map into entries with a stable key order.
// Values are either plain URL strings or records with file/title fields;
// anything else is skipped.
func keyedEntries(fields map[string]json.RawMessage) []keyedEntry {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []keyedEntry
	for _, k := range keys {
		var asString string
		if err := json.Unmarshal(fields[k], &asString); err == nil {
			entries = append(entries, keyedEntry{key: k, url: asString})
			continue
		}
		var asRecord struct {
			File  string `json:"file"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(fields[k], &asRecord); err == nil && asRecord.File != "" {
			entries = append(entries, keyedEntry{key: k, url: asRecord.File, title: asRecord.Title})
		}
	}
	return entries
}

var titleNumberPattern = regexp.MustCompile(`(\d+)`)

// numberFromTitle pulls the first number out of a folder title
// (e.g. "2 сезон" → 2). Returns 0 when the title has no digits.
func numberFromTitle(title string) int {
	m := titleNumberPattern.FindString(title)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// pickEpisode walks a voice's season→episode tree. A requested season selects
// the first folder whose title carries that number, falling back to the first
// folder when nothing matches or no season was requested; episode selection
// works the same way within the chosen season.
func pickEpisode(folders []seasonNode, season, episode int) *episodeNode {
	if len(folders) == 0 {
		return nil
	}
	chosen := folders[0]
	if season > 0 {
		for _, f := range folders {
			if numberFromTitle(f.Title) == season {
				chosen = f
				break
			}
		}
	}
	if len(chosen.Folder) == 0 {
		return nil
	}
	if episode > 0 {
		for i := range chosen.Folder {
			if numberFromTitle(chosen.Folder[i].Title) == episode {
				return &chosen.Folder[i]
			}
		}
	}
	return &chosen.Folder[0]
}
