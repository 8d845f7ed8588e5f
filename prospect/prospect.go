// Package prospect finds local businesses whose web presence is weak enough
// to pitch: it queries a places-search API, fetches each business website
// through a hardened HTTP client, and scores the site's real text content.
// Businesses with no site or a thin one are prospects; solid sites are
// filtered out.
package prospect

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hazyhaar/vitrine/websafe"
)

// Business is one normalized places-search result.
type Business struct {
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Address  string  `json:"address,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Website  string  `json:"website,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}

// Verdict classifies a business's existing web presence.
type Verdict string

const (
	// VerdictNone means no website, or one that could not be fetched.
	VerdictNone Verdict = "none"
	// VerdictThin means a site below the word/section thresholds.
	VerdictThin Verdict = "thin"
	// VerdictSolid means a real site; not a prospect.
	VerdictSolid Verdict = "solid"
)

// Prospect is a scored business.
type Prospect struct {
	Business Business `json:"business"`
	Verdict  Verdict  `json:"verdict"`
	Words    int      `json:"words,omitempty"`
	Sections int      `json:"sections,omitempty"`
}

// Config configures the discovery service.
type Config struct {
	// APIKey authenticates against the places-search API.
	APIKey string
	// BaseURL is the places text-search endpoint.
	BaseURL string
	// Timeout bounds each HTTP request. Default: 15s.
	Timeout time.Duration
	// UserAgent sent with site fetches.
	UserAgent string
	// MaxBody caps fetched site bodies. Default: websafe.MaxResponseBody.
	MaxBody int64
	// CacheSize is the search-result LRU capacity. Default: 256.
	CacheSize int
	// MinWords and MinSections separate thin sites from solid ones.
	// Defaults: 150 words, 3 sections.
	MinWords    int
	MinSections int
	// URLValidator screens URLs before any fetch (SSRF prevention).
	// Default: websafe.ValidateURL.
	URLValidator func(string) error

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://places.googleapis.com/v1/places:searchText"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "vitrine/1.0"
	}
	if c.MaxBody <= 0 {
		c.MaxBody = websafe.MaxResponseBody
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	if c.MinWords <= 0 {
		c.MinWords = 150
	}
	if c.MinSections <= 0 {
		c.MinSections = 3
	}
	if c.URLValidator == nil {
		c.URLValidator = websafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service performs discovery and scoring.
type Service struct {
	cfg    Config
	log    *slog.Logger
	client *http.Client
	cache  *lru.Cache[string, []Business]
	md     *converter.Converter
}

// New builds a Service. Redirects during site fetches are re-validated so a
// public URL cannot bounce into a private network.
func New(cfg Config) (*Service, error) {
	cfg.defaults()
	cache, err := lru.New[string, []Business](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("prospect: cache: %w", err)
	}
	validate := cfg.URLValidator
	return &Service{
		cfg: cfg,
		log: cfg.Logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		cache: cache,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}, nil
}
