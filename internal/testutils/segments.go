// Package testutils provides shared test infrastructure.
package testutils

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ndbaker1/datt/internal/segment"
)

// StreamPath is the path under which a SegmentServer serves its stream.
const StreamPath = "/hls/stream"

// Stream describes a segmented stream. Segment i has index First+i and is
// served under the format at ring position (Phase+i) mod len(Formats).
// A nil segment is a gap: no format serves it.
type Stream struct {
	Formats  []string
	Template string
	First    int
	Phase    int
	Segments [][]byte
}

// Expected returns the concatenation of every non-gap segment in order.
func (s Stream) Expected() []byte {
	var buf bytes.Buffer
	for _, seg := range s.Segments {
		buf.Write(seg)
	}
	return buf.Bytes()
}

// GenerateSegments returns n deterministic segments of size bytes each.
// Every segment is distinct so misordering shows up in comparisons.
func GenerateSegments(n, size int) [][]byte {
	segs := make([][]byte, n)
	for i := range segs {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte((i*31 + j) % 256)
		}
		segs[i] = data
	}
	return segs
}

// SegmentServer serves a Stream over HTTP and counts requests per index.
type SegmentServer struct {
	*httptest.Server

	files   map[string][]byte
	pattern *regexp.Regexp

	mu    sync.Mutex
	hits  map[int]int
	total int
}

// StartSegmentServer starts a server for stream. It is closed on test cleanup.
func StartSegmentServer(t *testing.T, stream Stream) *SegmentServer {
	t.Helper()

	if len(stream.Formats) == 0 {
		stream.Formats = segment.DefaultFormats
	}
	if stream.Template == "" {
		stream.Template = segment.DefaultTemplate
	}

	s := &SegmentServer{
		files:   make(map[string][]byte),
		pattern: templatePattern(stream.Template),
		hits:    make(map[int]int),
	}

	f := len(stream.Formats)
	for i, data := range stream.Segments {
		if data == nil {
			continue
		}
		format := stream.Formats[((stream.Phase+i)%f+f)%f]
		name := strings.NewReplacer(
			segment.IndexPlaceholder, strconv.Itoa(stream.First+i),
			segment.FormatPlaceholder, format,
		).Replace(stream.Template)
		s.files[StreamPath+"/"+name] = data
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// BaseURL returns the stream base URL to hand to a segment.Locator.
func (s *SegmentServer) BaseURL() string {
	return s.URL + StreamPath
}

// Requests returns how many requests asked for index, under any format.
func (s *SegmentServer) Requests(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[index]
}

// MaxRequests returns the highest per-index request count.
func (s *SegmentServer) MaxRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, n := range s.hits {
		if n > max {
			max = n
		}
	}
	return max
}

// Total returns the number of requests served.
func (s *SegmentServer) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *SegmentServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.total++
	if m := s.pattern.FindStringSubmatch(r.URL.Path); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil {
			s.hits[idx]++
		}
	}
	s.mu.Unlock()

	data, ok := s.files[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// templatePattern turns a name template into a regexp capturing the index.
func templatePattern(template string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(template)
	quoted = strings.Replace(quoted, regexp.QuoteMeta(segment.IndexPlaceholder), `(\d+)`, 1)
	quoted = strings.Replace(quoted, regexp.QuoteMeta(segment.FormatPlaceholder), `[^/]+`, 1)
	return regexp.MustCompile(fmt.Sprintf("^%s/%s$", regexp.QuoteMeta(StreamPath), quoted))
}
