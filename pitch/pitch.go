// Package pitch drafts the marketing copy for a prospect's demo site. A
// Gemini call returns structured JSON (headline, tagline, about, service
// blurbs, call to action, template and palette choice); the package repairs
// and validates the model output so downstream rendering never sees a
// malformed pitch.
package pitch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/vitrine/prospect"
)

// Blurb is one service card on the generated site.
type Blurb struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Pitch is the model's copy for one business. It is persisted next to the
// rendered site as pitch.json.
type Pitch struct {
	Headline     string  `json:"headline"`
	Tagline      string  `json:"tagline"`
	About        string  `json:"about"`
	Services     []Blurb `json:"services"`
	CallToAction string  `json:"call_to_action"`
	Template     string  `json:"template"`
	Palette      string  `json:"palette"`
}

// Validate checks the fields rendering depends on.
func (p *Pitch) Validate() error {
	if strings.TrimSpace(p.Headline) == "" {
		return fmt.Errorf("pitch: empty headline")
	}
	if strings.TrimSpace(p.About) == "" {
		return fmt.Errorf("pitch: empty about paragraph")
	}
	if len(p.Services) == 0 {
		return fmt.Errorf("pitch: no service blurbs")
	}
	return nil
}

// normalize trims the pitch to what the templates render: at most three
// service blurbs.
func (p *Pitch) normalize() {
	if len(p.Services) > 3 {
		p.Services = p.Services[:3]
	}
}

// LLM is the single call the drafting flow needs from a model. The Gemini
// implementation lives in gemini.go; tests substitute fakes.
type LLM interface {
	GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error)
}

// Config configures drafting.
type Config struct {
	// APIKey for the Gemini API. Empty falls back to the GEMINI_API_KEY
	// environment variable handled by the client library.
	APIKey string
	// Model name. Default: gemini-2.0-flash.
	Model string
	// Timeout bounds each model call. Default: 45s.
	Timeout time.Duration
	// Templates are the valid template keys the model may pick; the first
	// is the fallback for invalid picks.
	Templates []string
	// Palettes are the valid palette keys; same fallback rule.
	Palettes []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service drafts pitches.
type Service struct {
	cfg Config
	llm LLM
	log *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithLLM replaces the Gemini client, mainly for tests.
func WithLLM(l LLM) Option { return func(s *Service) { s.llm = l } }

// New builds a Service backed by Gemini unless WithLLM overrides it.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	cfg.defaults()
	s := &Service{cfg: cfg, log: cfg.Logger}
	for _, o := range opts {
		o(s)
	}
	if s.llm == nil {
		llm, err := newGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		s.llm = llm
	}
	return s, nil
}

// Drafted pairs a business with its validated pitch.
type Drafted struct {
	Business prospect.Business `json:"business"`
	Pitch    Pitch             `json:"pitch"`
}

// Draft asks the model for a pitch, repairing and validating the JSON. Up
// to three attempts with 300ms, 600ms, 1.2s backoff; a fresh model call per
// attempt since re-decoding the same bytes cannot improve.
func (s *Service) Draft(ctx context.Context, p prospect.Prospect) (*Pitch, error) {
	prompt := buildPrompt(p, s.cfg.Templates, s.cfg.Palettes)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(300*(1<<uint(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		raw, err := s.llm.GenerateJSON(callCtx, prompt)
		cancel()
		if err != nil {
			lastErr = err
			s.log.Warn("pitch: model call failed", "business", p.Business.Name, "attempt", attempt+1, "error", err)
			continue
		}

		pitch, err := decodePitch(raw)
		if err != nil {
			lastErr = err
			s.log.Warn("pitch: undecodable model output", "business", p.Business.Name, "attempt", attempt+1, "error", err)
			continue
		}
		if err := pitch.Validate(); err != nil {
			lastErr = err
			s.log.Warn("pitch: incomplete pitch", "business", p.Business.Name, "attempt", attempt+1, "error", err)
			continue
		}
		pitch.normalize()
		s.applyTemplateFallbacks(pitch, p.Business.Name)
		return pitch, nil
	}
	return nil, fmt.Errorf("pitch: draft %s: %w", p.Business.Name, lastErr)
}

// DraftAll drafts every prospect with per-business isolation: a failing
// draft is logged and skipped, never fatal to the batch. Only context
// cancellation stops the sweep.
func (s *Service) DraftAll(ctx context.Context, prospects []prospect.Prospect) ([]Drafted, error) {
	drafted := make([]Drafted, 0, len(prospects))
	for _, p := range prospects {
		if ctx.Err() != nil {
			return drafted, ctx.Err()
		}
		pitch, err := s.Draft(ctx, p)
		if err != nil {
			s.log.Error("pitch: business skipped", "business", p.Business.Name, "error", err)
			continue
		}
		drafted = append(drafted, Drafted{Business: p.Business, Pitch: *pitch})
	}
	s.log.Info("pitch: drafting complete", "in", len(prospects), "drafted", len(drafted))
	return drafted, nil
}

// applyTemplateFallbacks replaces invalid template/palette picks with the
// first configured key.
func (s *Service) applyTemplateFallbacks(p *Pitch, business string) {
	if len(s.cfg.Templates) > 0 && !contains(s.cfg.Templates, p.Template) {
		s.log.Warn("pitch: unknown template key, falling back",
			"business", business, "got", p.Template, "using", s.cfg.Templates[0])
		p.Template = s.cfg.Templates[0]
	}
	if len(s.cfg.Palettes) > 0 && !contains(s.cfg.Palettes, p.Palette) {
		s.log.Warn("pitch: unknown palette key, falling back",
			"business", business, "got", p.Palette, "using", s.cfg.Palettes[0])
		p.Palette = s.cfg.Palettes[0]
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// buildPrompt assembles the drafting instructions. The copy language
// follows the business (French addresses get French copy).
func buildPrompt(p prospect.Prospect, templates, palettes []string) string {
	var sb strings.Builder
	sb.WriteString("You are a copywriter drafting a one-page marketing site for a small local business.\n")
	sb.WriteString("Write in the language suggested by the business name and address (default French).\n")
	sb.WriteString("Respond ONLY with a JSON object, no prose, matching exactly:\n")
	sb.WriteString(`{"headline": "...", "tagline": "...", "about": "...",` + "\n")
	sb.WriteString(` "services": [{"title": "...", "text": "..."}, {"title": "...", "text": "..."}, {"title": "...", "text": "..."}],` + "\n")
	sb.WriteString(` "call_to_action": "...", "template": "...", "palette": "..."}` + "\n\n")
	if len(templates) > 0 {
		sb.WriteString("Pick \"template\" from: " + strings.Join(templates, ", ") + "\n")
	}
	if len(palettes) > 0 {
		sb.WriteString("Pick \"palette\" from: " + strings.Join(palettes, ", ") + "\n")
	}
	sb.WriteString("\nBusiness:\n")
	sb.WriteString("- Name: " + p.Business.Name + "\n")
	if p.Business.Category != "" {
		sb.WriteString("- Category: " + p.Business.Category + "\n")
	}
	if p.Business.Address != "" {
		sb.WriteString("- Address: " + p.Business.Address + "\n")
	}
	if p.Business.Phone != "" {
		sb.WriteString("- Phone: " + p.Business.Phone + "\n")
	}
	switch p.Verdict {
	case prospect.VerdictNone:
		sb.WriteString("- Web presence: none today\n")
	case prospect.VerdictThin:
		sb.WriteString(fmt.Sprintf("- Web presence: minimal (%d words)\n", p.Words))
	}
	return sb.String()
}
