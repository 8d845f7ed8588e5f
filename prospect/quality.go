package prospect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/vitrine/websafe"
)

// hiddenStylePatterns match inline styles that hide content; text under
// them is padding, not presence, and must not count toward a site's score.
var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
	regexp.MustCompile(`(?i)position\s*:\s*absolute[^;]*-\d{4,}`),
}

// Score fetches a business's website and classifies its substance. No
// website, or one that cannot be fetched, scores VerdictNone: unreachable
// sites are prospects, not errors. Only context cancellation is returned
// as an error.
func (s *Service) Score(ctx context.Context, b Business) (Prospect, error) {
	p := Prospect{Business: b, Verdict: VerdictNone}
	if b.Website == "" {
		return p, nil
	}

	body, err := s.fetchSite(ctx, b.Website)
	if err != nil {
		if ctx.Err() != nil {
			return p, ctx.Err()
		}
		s.log.Warn("prospect: site unreachable", "name", b.Name, "url", b.Website, "error", err)
		return p, nil
	}

	p.Words, p.Sections = s.measure(body)
	if p.Words < s.cfg.MinWords || p.Sections < s.cfg.MinSections {
		p.Verdict = VerdictThin
	} else {
		p.Verdict = VerdictSolid
	}
	s.log.Debug("prospect: site scored", "name", b.Name,
		"words", p.Words, "sections", p.Sections, "verdict", p.Verdict)
	return p, nil
}

// Sift scores every business and keeps the prospects (verdict other than
// solid), preserving input order.
func (s *Service) Sift(ctx context.Context, businesses []Business) ([]Prospect, error) {
	prospects := make([]Prospect, 0, len(businesses))
	for _, b := range businesses {
		p, err := s.Score(ctx, b)
		if err != nil {
			return prospects, err
		}
		if p.Verdict == VerdictSolid {
			continue
		}
		prospects = append(prospects, p)
	}
	s.log.Info("prospect: sift complete", "in", len(businesses), "prospects", len(prospects))
	return prospects, nil
}

// fetchSite retrieves a business website with the hardened client: URL
// validation up front, redirect re-validation in the client, and a bounded
// body read.
func (s *Service) fetchSite(ctx context.Context, rawURL string) ([]byte, error) {
	if err := s.cfg.URLValidator(rawURL); err != nil {
		return nil, fmt.Errorf("url blocked: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return websafe.LimitedReadAll(resp.Body, s.cfg.MaxBody)
}

// measure counts the words and sections a human visitor would actually see:
// boilerplate and hidden nodes are pruned from the DOM, the rest converted
// to markdown, and headings counted as sections.
func (s *Service) measure(body []byte) (words, sections int) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return len(strings.Fields(string(body))), 0
	}
	pruneBoilerplate(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		text := collectText(doc)
		return len(strings.Fields(text)), countHeadings(doc)
	}

	md, err := s.md.ConvertString(buf.String())
	if err != nil || strings.TrimSpace(md) == "" {
		text := collectText(doc)
		return len(strings.Fields(text)), countHeadings(doc)
	}
	return len(strings.Fields(md)), countMarkdownHeadings(md)
}

// pruneBoilerplate removes chrome (script, style, noscript, nav, header,
// footer) and hidden-styled subtrees in place.
func pruneBoilerplate(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if isBoilerplate(c) || hasHiddenStyle(c) {
			n.RemoveChild(c)
			continue
		}
		pruneBoilerplate(c)
	}
}

func isBoilerplate(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header:
		return true
	}
	return false
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func countHeadings(n *html.Node) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H1, atom.H2, atom.H3:
				count++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return count
}

func countMarkdownHeadings(md string) int {
	count := 0
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			count++
		}
	}
	return count
}
