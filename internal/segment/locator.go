package segment

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultFormats is the suffix ring observed on the streaming host.
var DefaultFormats = []string{"html", "js", "css", "txt", "png", "webp", "ico", "jpg"}

// DefaultTemplate is the remote segment name layout.
const DefaultTemplate = "seg-{index}-v1-a1.{format}"

// KeyWidth is the zero-padded width of a cache key.
const KeyWidth = 8

// Template placeholders.
const (
	IndexPlaceholder  = "{index}"
	FormatPlaceholder = "{format}"
)

var (
	ErrNegativeIndex = errors.New("segment: index must be non-negative")
	ErrEmptyRing     = errors.New("segment: format ring is empty")
	ErrBadPosition   = errors.New("segment: ring position out of range")
)

// Ring is the ordered, cyclic set of candidate segment formats.
type Ring []string

// NewRing validates formats and returns them as a Ring.
func NewRing(formats []string) (Ring, error) {
	if len(formats) == 0 {
		return nil, ErrEmptyRing
	}
	seen := make(map[string]bool, len(formats))
	r := make(Ring, 0, len(formats))
	for _, f := range formats {
		f = strings.TrimSpace(strings.TrimPrefix(f, "."))
		if f == "" {
			return nil, fmt.Errorf("segment: empty format in ring %v", formats)
		}
		if seen[f] {
			return nil, fmt.Errorf("segment: duplicate format %q", f)
		}
		seen[f] = true
		r = append(r, f)
	}
	return r, nil
}

// Len returns the ring size F.
func (r Ring) Len() int {
	return len(r)
}

// Next returns the position following pos.
func (r Ring) Next(pos int) int {
	return r.Advance(pos, 1)
}

// Advance moves pos by n positions, n may be negative.
func (r Ring) Advance(pos, n int) int {
	f := len(r)
	p := (pos + n) % f
	if p < 0 {
		p += f
	}
	return p
}

// Format returns the suffix at pos.
func (r Ring) Format(pos int) (string, error) {
	if pos < 0 || pos >= len(r) {
		return "", fmt.Errorf("%w: %d (ring size %d)", ErrBadPosition, pos, len(r))
	}
	return r[pos], nil
}

// Locator builds segment URLs for one stream.
type Locator struct {
	base     string
	template string
	ring     Ring
}

// NewLocator validates baseURL and template and returns a Locator.
// A trailing slash on baseURL is dropped.
func NewLocator(baseURL, template string, ring Ring) (*Locator, error) {
	if ring.Len() == 0 {
		return nil, ErrEmptyRing
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("segment: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("segment: base url %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("segment: base url %q has no host", baseURL)
	}
	if template == "" {
		template = DefaultTemplate
	}
	if strings.Count(template, IndexPlaceholder) != 1 || strings.Count(template, FormatPlaceholder) != 1 {
		return nil, fmt.Errorf("segment: template %q needs exactly one %s and one %s",
			template, IndexPlaceholder, FormatPlaceholder)
	}

	return &Locator{
		base:     strings.TrimRight(baseURL, "/"),
		template: template,
		ring:     ring,
	}, nil
}

// Ring returns the locator's format ring.
func (l *Locator) Ring() Ring {
	return l.ring
}

// Base returns the base URL without a trailing slash.
func (l *Locator) Base() string {
	return l.base
}

// Name returns the remote segment name for index at ring position pos.
// Callers reduce pos mod F.
func (l *Locator) Name(index, pos int) (string, error) {
	if index < 0 {
		return "", ErrNegativeIndex
	}
	format, err := l.ring.Format(pos)
	if err != nil {
		return "", err
	}
	r := strings.NewReplacer(IndexPlaceholder, strconv.Itoa(index), FormatPlaceholder, format)
	return r.Replace(l.template), nil
}

// URL returns the request URL for index at ring position pos.
func (l *Locator) URL(index, pos int) (string, error) {
	name, err := l.Name(index, pos)
	if err != nil {
		return "", err
	}
	return URL(l.base, name), nil
}

// URL joins a base URL and a segment name.
func URL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}

// CacheKey returns the work-area key for index. The key does not encode the
// format, so one index maps to exactly one entry.
func CacheKey(index int) string {
	return fmt.Sprintf("%0*d", KeyWidth, index)
}

// ParseCacheKey parses a work-area key back into an index. Only the form
// produced by CacheKey is accepted, so every index has a single valid key.
func ParseCacheKey(key string) (int, error) {
	n, err := strconv.ParseUint(key, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("segment: invalid cache key %q: %w", key, err)
	}
	if CacheKey(int(n)) != key {
		return 0, fmt.Errorf("segment: cache key %q is not %d digits", key, KeyWidth)
	}
	return int(n), nil
}
