package site

import "strings"

// Profile describes one upstream content site: its endpoints and the
// selector/regex table used to locate titles, posters and the embedded
// player block on its pages. Profiles are swappable configuration; the
// adapter algorithm itself is site-agnostic.
type Profile struct {
	Name         string
	BaseURL      string
	UserAgent    string
	SearchURL    string // absolute or site-relative; "{query}" is substituted
	SearchMethod string // GET (default) or POST
	SearchBody   string // form body for POST searches; "{query}" is substituted
	SearchKind   string // "html" (selector parse, default) or "json" (movies listing)
	// Listing metadata substrings (lowercase) that mark an entry as a series.
	SeriesMarkers []string
	Selectors     Selectors
}

// Selectors is the per-site CSS selector table.
type Selectors struct {
	Result       string // search result container
	ResultTitle  string // title element within a result
	ResultHref   string // anchor within a result; empty = container carries href
	ResultPoster string // img within a result
	DetailTitle  string
	DetailPoster string
	DetailYear   string // element whose text carries the release year
	PlayerFrame  string // iframe carrying the embedded player
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// absolute resolves a possibly relative or protocol-relative site URL
// against the profile's base.
func (p Profile) absolute(raw string) string {
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return p.BaseURL + raw
	default:
		return p.BaseURL + "/" + raw
	}
}

// BuiltinProfiles returns the site profiles shipped as configuration
// defaults. BaseURL (and the search endpoint derived from it) can be
// overridden per deployment.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Name:          "eneyida",
			BaseURL:       "https://eneyida.tv",
			SearchURL:     "/index.php?do=search",
			SearchMethod:  "POST",
			SearchBody:    "do=search&subaction=search&story={query}",
			SeriesMarkers: []string{"серіал", "сериал"},
			Selectors: Selectors{
				Result:       "article.short",
				ResultTitle:  "a.short_title",
				ResultHref:   "a.short_title",
				ResultPoster: "a.short_img img",
				DetailTitle:  "div.full_header-title h1",
				DetailPoster: ".full_content-poster img",
				DetailYear:   ".full_info li",
				PlayerFrame:  ".tabs_b.visible iframe",
			},
		},
		{
			Name:          "uaflix",
			BaseURL:       "https://uafix.net",
			SearchURL:     "/index.php?do=search&subaction=search&story={query}",
			SeriesMarkers: []string{"серіал", "сериал"},
			Selectors: Selectors{
				Result:       ".sres-wrap",
				ResultTitle:  ".sres-text h2",
				ResultPoster: "img",
				DetailTitle:  "h1",
				DetailPoster: "meta[property='og:image']",
				DetailYear:   ".finfo li",
				PlayerFrame:  ".video-box iframe",
			},
		},
		{
			Name:       "uaserial",
			BaseURL:    "https://uaserial.tv",
			SearchURL:  "/search-ajax?query={query}",
			SearchKind: "json",
			Selectors: Selectors{
				DetailTitle:  "div.name",
				DetailPoster: "img.cover",
				DetailYear:   "div.release div a",
				PlayerFrame:  ".player iframe",
			},
		},
	}
}

// ProfileByName looks a builtin profile up by its name.
func ProfileByName(name string) (Profile, bool) {
	for _, p := range BuiltinProfiles() {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Profile{}, false
}
