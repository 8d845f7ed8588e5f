// Package sitegen renders demo marketing sites from drafted pitches. Each
// business gets its own folder under the resources root with an index.html
// built from one of the embedded templates, plus a pitch.json sidecar. The
// folders are exactly what the recorder scans, so a render immediately
// becomes recordable.
package sitegen

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/vitrine/pitch"
	"github.com/hazyhaar/vitrine/websafe"
)

//go:embed templates/*.html
var templateFS embed.FS

// paletteKeys matches the palette-* classes every embedded template
// defines.
var paletteKeys = []string{"warm", "slate", "mint"}

// Config configures rendering.
type Config struct {
	// SitesRoot is where rendered site folders are created. Required.
	SitesRoot string
	// PhotoBase, when set, points photos at a seeded image service such
	// as https://picsum.photos. Empty renders self-contained SVG
	// placeholders that need no network.
	PhotoBase string
	// PhotoCount per site. Default: 3.
	PhotoCount int
	// CacheSize bounds the photo cache. Default: 128.
	CacheSize int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.PhotoCount <= 0 {
		c.PhotoCount = 3
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 128
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service renders sites.
type Service struct {
	cfg    Config
	log    *slog.Logger
	tmpl   *template.Template
	photos *photoSource
	strip  *bluemonday.Policy
}

// New parses the embedded templates and builds a Service.
func New(cfg Config) (*Service, error) {
	cfg.defaults()
	if cfg.SitesRoot == "" {
		return nil, fmt.Errorf("sitegen: SitesRoot is required")
	}
	tmpl, err := template.New("sites").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("sitegen: parse templates: %w", err)
	}
	photos, err := newPhotoSource(cfg.PhotoBase, cfg.PhotoCount, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		log:    cfg.Logger,
		tmpl:   tmpl,
		photos: photos,
		strip:  bluemonday.StrictPolicy(),
	}, nil
}

// TemplateKeys lists the embedded template names, sorted. The pitch stage
// feeds these to the model as the valid choices.
func (s *Service) TemplateKeys() []string {
	var keys []string
	for _, t := range s.tmpl.Templates() {
		if name := t.Name(); strings.HasSuffix(name, ".html") {
			keys = append(keys, strings.TrimSuffix(name, ".html"))
		}
	}
	sort.Strings(keys)
	return keys
}

// PaletteKeys lists the palette names the templates style.
func (s *Service) PaletteKeys() []string {
	return append([]string(nil), paletteKeys...)
}

// pageData is what the templates see. Photos carry template.URL because
// the placeholder photos are data URIs, which html/template would
// otherwise refuse in src attributes.
type pageData struct {
	Name         string
	Address      string
	Phone        string
	Headline     string
	Tagline      string
	About        string
	Services     []pitch.Blurb
	CallToAction string
	Palette      string
	Photos       []template.URL
	Year         int
}

// Render writes one demo site: <SitesRoot>/<folder>/index.html plus a
// pitch.json sidecar. Returns the folder name. Recording artifacts already
// present in the folder are left alone; only the site files are rewritten.
func (s *Service) Render(d pitch.Drafted) (string, error) {
	folder, err := s.resolveFolder(d.Business.Name)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.cfg.SitesRoot, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sitegen: create %s: %w", dir, err)
	}

	key := d.Pitch.Template
	if key == "" || s.tmpl.Lookup(key+".html") == nil {
		keys := s.TemplateKeys()
		s.log.Warn("sitegen: unknown template key, using first", "got", key, "using", keys[0])
		key = keys[0]
	}

	data := s.pageData(folder, d)
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, key+".html", data); err != nil {
		return "", fmt.Errorf("sitegen: render %s: %w", folder, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("sitegen: write index.html: %w", err)
	}

	meta, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("sitegen: encode pitch.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pitch.json"), append(meta, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("sitegen: write pitch.json: %w", err)
	}

	s.log.Info("sitegen: site rendered", "folder", folder, "template", key, "palette", data.Palette)
	return folder, nil
}

// RenderAll renders every drafted business with the same isolation as
// drafting: a failed render is logged and skipped, only context
// cancellation stops the sweep. Returns the rendered folder names.
func (s *Service) RenderAll(ctx context.Context, drafted []pitch.Drafted) ([]string, error) {
	folders := make([]string, 0, len(drafted))
	for _, d := range drafted {
		if ctx.Err() != nil {
			return folders, ctx.Err()
		}
		folder, err := s.Render(d)
		if err != nil {
			s.log.Error("sitegen: render skipped", "business", d.Business.Name, "error", err)
			continue
		}
		folders = append(folders, folder)
	}
	s.log.Info("sitegen: rendering complete", "in", len(drafted), "rendered", len(folders))
	return folders, nil
}

func (s *Service) pageData(folder string, d pitch.Drafted) pageData {
	palette := d.Pitch.Palette
	if _, ok := paletteTones[palette]; !ok {
		palette = paletteKeys[0]
	}
	services := make([]pitch.Blurb, 0, len(d.Pitch.Services))
	for _, b := range d.Pitch.Services {
		services = append(services, pitch.Blurb{Title: s.clean(b.Title), Text: s.clean(b.Text)})
	}
	raw := s.photos.For(folder, palette)
	photos := make([]template.URL, len(raw))
	for i, u := range raw {
		photos[i] = template.URL(u)
	}
	return pageData{
		Name:         s.clean(d.Business.Name),
		Address:      s.clean(d.Business.Address),
		Phone:        s.clean(d.Business.Phone),
		Headline:     s.clean(d.Pitch.Headline),
		Tagline:      s.clean(d.Pitch.Tagline),
		About:        s.clean(d.Pitch.About),
		Services:     services,
		CallToAction: s.clean(d.Pitch.CallToAction),
		Palette:      palette,
		Photos:       photos,
		Year:         time.Now().Year(),
	}
}

// clean strips any markup the model slipped into a string, returning plain
// text. Templates re-escape on output.
func (s *Service) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.strip.Sanitize(v)))
}

// resolveFolder picks the folder for a business: its slug, or slug_2,
// slug_3, ... when another business already owns the plain slug. Ownership
// is read from the name stored in the folder's pitch.json, so re-rendering
// a business reuses its folder and keeps any recordings in it.
func (s *Service) resolveFolder(name string) (string, error) {
	base := Slugify(name)
	for i := 1; i <= 50; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		if err := websafe.ValidateFolder(candidate); err != nil {
			return "", fmt.Errorf("sitegen: folder name for %q: %w", name, err)
		}
		dir := filepath.Join(s.cfg.SitesRoot, candidate)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return candidate, nil
		}
		if owner, err := folderOwner(dir); err == nil && owner == name {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("sitegen: no free folder for %q under %s", name, s.cfg.SitesRoot)
}

func folderOwner(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "pitch.json"))
	if err != nil {
		return "", err
	}
	var d pitch.Drafted
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("sitegen: parse pitch.json in %s: %w", dir, err)
	}
	return d.Business.Name, nil
}
