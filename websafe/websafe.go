// Package websafe guards the pipeline's contact points with untrusted
// input: prospect website URLs are screened before fetching so the scorer
// cannot be steered at internal addresses, folder names arriving over HTTP
// or MCP are held to the resource-folder naming rules, and response bodies
// are read through a hard byte cap.
package websafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxResponseBody is the default cap for HTTP response body reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

// maxFolderLen bounds resource-folder names. Generated slugs cap at 48
// bytes; the headroom is for hand-made folders.
const maxFolderLen = 128

// ErrPathTraversal is returned when a path would escape its base directory.
var ErrPathTraversal = errors.New("websafe: path traversal detected")

// ErrSSRF is returned when a URL targets a private, loopback, or otherwise
// non-routable address.
var ErrSSRF = errors.New("websafe: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("websafe: only http and https schemes are allowed")

// ValidateFolder checks a resource-folder name as it arrives from a URL
// segment or an MCP tool argument. Allowed characters are the slug alphabet
// plus dot and hyphen for hand-made folders. Hidden names are rejected: the
// scanner never lists them, so nothing hidden should be addressable either.
func ValidateFolder(name string) error {
	if name == "" {
		return errors.New("websafe: empty folder name")
	}
	if len(name) > maxFolderLen {
		return fmt.Errorf("websafe: folder name longer than %d bytes", maxFolderLen)
	}
	if name[0] == '.' {
		return fmt.Errorf("websafe: hidden folder name %q", name)
	}
	for _, r := range name {
		if !folderRune(r) {
			return fmt.Errorf("websafe: invalid character %q in folder name", r)
		}
	}
	return nil
}

func folderRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-', r == '.':
		return true
	}
	return false
}

// SafePath joins name onto base and guarantees the result stays inside
// base. Parent references are rejected outright; the joined path is then
// re-checked lexically so a gap in one rule cannot open the other.
func SafePath(base, name string) (string, error) {
	if name == "" {
		return "", ErrPathTraversal
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", ErrPathTraversal
		}
	}
	full := filepath.Join(base, name)
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return full, nil
}

// ValidateURL screens a prospect website URL before the fetcher touches it:
// http/https only, a host present, and no address that stays inside the
// machine or its network. Hostnames are resolved so an internal name cannot
// slip past the literal-IP check.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("websafe: parse URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("websafe: URL %q has no host", rawURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable now may still be reachable later; the fetch itself
		// surfaces the real error.
		return nil
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return ErrSSRF
	}
	return nil
}

// LimitedReadAll reads r to EOF but fails once more than maxBytes have
// arrived, so a hostile site cannot balloon memory.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("websafe: read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("websafe: body exceeds %d byte cap", maxBytes)
	}
	return data, nil
}
