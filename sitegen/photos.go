package sitegen

import (
	"encoding/base64"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// paletteTones drive the placeholder artwork; keys match the palette-*
// classes defined in the embedded templates.
var paletteTones = map[string][3]string{
	"warm":  {"#b4654a", "#8a4b38", "#d9a287"},
	"slate": {"#475569", "#334155", "#94a3b8"},
	"mint":  {"#34866b", "#1f5c49", "#8fc7b2"},
}

// photoSource hands out the photo URLs for a site. With a remote base the
// URLs are seeded so a business keeps the same pictures across renders;
// without one the photos are self-contained SVG data URIs that load with
// no network at all, which keeps file:// recordings deterministic.
type photoSource struct {
	base  string
	count int
	cache *lru.Cache[string, []string]
}

func newPhotoSource(base string, count, cacheSize int) (*photoSource, error) {
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("sitegen: photo cache: %w", err)
	}
	return &photoSource{base: strings.TrimRight(base, "/"), count: count, cache: cache}, nil
}

func (p *photoSource) For(slug, palette string) []string {
	key := slug + "|" + palette
	if urls, ok := p.cache.Get(key); ok {
		return urls
	}
	tones, ok := paletteTones[palette]
	if !ok {
		tones = paletteTones["warm"]
	}
	urls := make([]string, p.count)
	for i := range urls {
		if p.base != "" {
			urls[i] = fmt.Sprintf("%s/seed/%s-%d/800/600", p.base, slug, i+1)
		} else {
			urls[i] = placeholderPhoto(tones[i%len(tones)], i+1)
		}
	}
	p.cache.Add(key, urls)
	return urls
}

func placeholderPhoto(fill string, n int) string {
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600">`+
		`<rect width="100%%" height="100%%" fill="%s"/>`+
		`<text x="50%%" y="52%%" font-family="sans-serif" font-size="64" fill="#ffffff" fill-opacity="0.6" text-anchor="middle">%02d</text>`+
		`</svg>`, fill, n)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
