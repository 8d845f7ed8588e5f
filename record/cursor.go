package record

// The synthetic cursor is a fixed-position dot injected after load. The
// native pointer is hidden with a style rule so only the overlay shows in
// the capture, and a single page-global hook (window.__vitrineCursor)
// repositions it. Device moves and hook calls happen in lockstep per tick.

const cursorInstallJS = `() => {
	if (window.__vitrineCursor) { return "ok"; }
	const style = document.createElement('style');
	style.textContent = '*, *::before, *::after { cursor: none !important; }';
	document.head.appendChild(style);
	const dot = document.createElement('div');
	dot.id = '__vitrine_cursor';
	dot.style.cssText = 'position:fixed;left:-40px;top:-40px;width:18px;height:18px;' +
		'border-radius:50%;background:rgba(30,30,30,0.85);' +
		'border:2px solid rgba(255,255,255,0.9);box-shadow:0 1px 4px rgba(0,0,0,0.4);' +
		'pointer-events:none;z-index:2147483647;transform:translate(-50%,-50%);';
	document.body.appendChild(dot);
	window.__vitrineCursor = (x, y) => {
		dot.style.left = x + 'px';
		dot.style.top = y + 'px';
	};
	return "ok";
}`

// cursorUpdateJS takes the x and y coordinates via Sprintf.
const cursorUpdateJS = `() => {
	if (window.__vitrineCursor) { window.__vitrineCursor(%.1f, %.1f); }
	return "";
}`
