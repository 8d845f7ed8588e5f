package record

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// The planner runs as a single in-page evaluation per region: candidate
// query, degenerate-box filter, computed-style visibility checks and a
// per-element try/catch all happen inside the page, so one detached node
// never costs more than its own entry. Row-bucket ordering and the visit
// cap are applied host-side where they are unit-testable.

// listRegionsJS enumerates landmark regions in document order.
const listRegionsJS = `() => {
	const nodes = document.querySelectorAll('nav, section, footer');
	const out = [];
	for (const el of nodes) {
		try {
			const r = el.getBoundingClientRect();
			if (r.height < 1) { continue; }
			const name = el.id ? '#' + el.id : el.tagName.toLowerCase();
			out.push({ name: name, top: r.top + window.scrollY, height: r.height });
		} catch (e) {}
	}
	return JSON.stringify(out);
}`

// planRegionJS takes the region index and the minimum target size via
// Sprintf. Coordinates are viewport-relative: the session scrolls the
// region into view before planning, and hovers before scrolling again.
const planRegionJS = `() => {
	const regions = document.querySelectorAll('nav, section, footer');
	const el = regions[%d];
	if (!el) { return JSON.stringify([]); }
	const min = %.1f;
	const out = [];
	const cands = el.querySelectorAll('a, button, h1, h2, h3, img[alt]');
	for (const c of cands) {
		try {
			if (c.tagName === 'IMG' && !(c.getAttribute('alt') || '').trim()) { continue; }
			const r = c.getBoundingClientRect();
			if (r.width < min || r.height < min) { continue; }
			const cs = window.getComputedStyle(c);
			if (cs.display === 'none' || cs.visibility === 'hidden') { continue; }
			if (parseFloat(cs.opacity) <= 0.05) { continue; }
			out.push({
				x: r.left + r.width / 2,
				y: r.top + r.height / 2,
				w: r.width,
				h: r.height,
				tag: c.tagName.toLowerCase(),
				label: ((c.innerText || c.getAttribute('alt') || '') + '').trim().slice(0, 80),
				href: c.tagName === 'A' ? (c.getAttribute('href') || '') : ''
			});
		} catch (e) {}
	}
	return JSON.stringify(out);
}`

// navLinksJS tries successively broader selectors; the first one yielding at
// least three visible links wins.
const navLinksJS = `() => {
	const sels = ['.nav-links a', '#navLinks a', 'nav a'];
	for (const sel of sels) {
		let links;
		try { links = document.querySelectorAll(sel); } catch (e) { continue; }
		const out = [];
		for (const a of links) {
			try {
				const r = a.getBoundingClientRect();
				if (r.width < 1 || r.height < 1) { continue; }
				const cs = window.getComputedStyle(a);
				if (cs.display === 'none' || cs.visibility === 'hidden') { continue; }
				out.push({
					x: r.left + r.width / 2,
					y: r.top + r.height / 2,
					w: r.width,
					h: r.height,
					tag: 'a',
					label: ((a.innerText || '') + '').trim().slice(0, 80),
					href: a.getAttribute('href') || ''
				});
			} catch (e) {}
		}
		if (out.length >= 3) { return JSON.stringify(out); }
	}
	return JSON.stringify([]);
}`

// anchorOffsetJS takes a CSS selector via Sprintf (%s is a quoted string)
// and returns the element's document-space top, or -1.
const anchorOffsetJS = `() => {
	let el;
	try { el = document.querySelector(%q); } catch (e) { return "-1"; }
	if (!el) { return "-1"; }
	const r = el.getBoundingClientRect();
	return JSON.stringify(r.top + window.scrollY);
}`

// scrollStateJS reports the current offset and the maximum scrollable offset.
const scrollStateJS = `() => {
	const max = Math.max(0, document.documentElement.scrollHeight - window.innerHeight);
	return JSON.stringify({ y: window.scrollY, max: max });
}`

// scrollToJS takes the target offset via Sprintf.
const scrollToJS = `() => { window.scrollTo(0, %.1f); return ""; }`

// listRegions asks the page for its landmark regions.
func listRegions(ctx context.Context, p Page) ([]Region, error) {
	raw, err := p.Eval(ctx, listRegionsJS)
	if err != nil {
		return nil, fmt.Errorf("record: list regions: %w", err)
	}
	var regions []Region
	if err := json.Unmarshal([]byte(raw), &regions); err != nil {
		return nil, fmt.Errorf("record: decode regions: %w", err)
	}
	return regions, nil
}

// planRegion returns the ordered, bounded target list for region index i.
// Targets outside the current viewport are discarded: the session plans
// right after scrolling the region into view, so off-screen candidates
// belong to a different region pass.
func planRegion(ctx context.Context, p Page, i int, cfg *Config) ([]Target, error) {
	raw, err := p.Eval(ctx, fmt.Sprintf(planRegionJS, i, cfg.MinTargetSize))
	if err != nil {
		return nil, fmt.Errorf("record: plan region %d: %w", i, err)
	}
	var targets []Target
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("record: decode targets: %w", err)
	}
	visible := targets[:0]
	for _, t := range targets {
		if t.X < 0 || t.X > float64(cfg.ViewportWidth) {
			continue
		}
		if t.Y < 0 || t.Y > float64(cfg.ViewportHeight) {
			continue
		}
		visible = append(visible, t)
	}
	return orderTargets(visible, cfg.RowThreshold, cfg.RegionTargetCap), nil
}

// orderTargets sorts targets top-to-bottom, grouping centers within
// rowThreshold of the row anchor into one visual row ordered left-to-right,
// then truncates to limit. Pure so the ordering rules are testable without
// a page.
func orderTargets(ts []Target, rowThreshold float64, limit int) []Target {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Y < ts[j].Y })
	out := make([]Target, 0, len(ts))
	for i := 0; i < len(ts); {
		j := i + 1
		for j < len(ts) && ts[j].Y-ts[i].Y < rowThreshold {
			j++
		}
		row := append([]Target(nil), ts[i:j]...)
		sort.SliceStable(row, func(a, b int) bool { return row[a].X < row[b].X })
		out = append(out, row...)
		i = j
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// navLinks returns the visible links of the first matching nav container.
func navLinks(ctx context.Context, p Page) ([]Target, error) {
	raw, err := p.Eval(ctx, navLinksJS)
	if err != nil {
		return nil, fmt.Errorf("record: nav links: %w", err)
	}
	var links []Target
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, fmt.Errorf("record: decode nav links: %w", err)
	}
	return links, nil
}
