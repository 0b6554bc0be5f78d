package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// NotFoundMarker is the text of the page served past the last episode.
const NotFoundMarker = "Page not found"

var (
	// DefaultStreamPattern finds the download page link on an episode page.
	// Group 1 is the stream id.
	DefaultStreamPattern = regexp.MustCompile(
		`https://embtaku.pro/download\?id=(.*)&typesub=Gogoanime-SUB&title=.*\+Episode\+\d+`)

	// DefaultDownloadPattern finds the 720P link on the download page.
	// Group 1 is the file URL.
	DefaultDownloadPattern = regexp.MustCompile(
		`(https://gredirect.info/download.php\?url=.*)" download.*Download.*[\W]*720P`)
)

var (
	ErrNoMatch = errors.New("catalog: pattern did not match")
	ErrBadURL  = errors.New("catalog: episode url has no episode suffix")
)

// Client is the HTTP surface the catalog flow needs.
type Client interface {
	GetText(ctx context.Context, url string) (string, error)
	PostForm(ctx context.Context, target string, fields url.Values) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures a catalog run.
type Options struct {
	// Captcha is the token posted to the download page.
	Captcha string

	// Sink receives the episode files. Required.
	Sink Sink

	// Workers bounds concurrent episode downloads.
	// Default: 5
	Workers int

	// Attempts is how many times each episode download is tried.
	// Default: 3
	Attempts int

	// StreamPattern and DownloadPattern override the page scrapers.
	StreamPattern   *regexp.Regexp
	DownloadPattern *regexp.Regexp

	// NotFoundMarker overrides the end-of-catalog page text.
	NotFoundMarker string

	// MaxEpisodes stops probing after this many episodes. 0 means no limit.
	MaxEpisodes int

	Logger hclog.Logger
}

// Episode is the outcome for one episode.
type Episode struct {
	Number      int
	Name        string
	DownloadURL string
	Bytes       int
	Skipped     bool
	Err         error
}

// Result summarizes a catalog run.
type Result struct {
	Episodes []Episode
	Saved    int
	Skipped  int
	Failed   int
}

// BaseURL strips the trailing "-<episode>" from an episode page URL.
func BaseURL(episodeURL string) (string, error) {
	i := strings.LastIndex(episodeURL, "-")
	if i <= 0 {
		return "", fmt.Errorf("%w: %q", ErrBadURL, episodeURL)
	}
	return episodeURL[:i], nil
}

// FileName returns the sink name for episode n.
func FileName(n int) string {
	return fmt.Sprintf("%02d.mp4", n)
}

// Run probes episode pages derived from episodeURL in order, starting at
// episode 1, until a page contains the not-found marker. Each episode found
// is resolved to its download URL and fetched in the background; episodes
// already in the sink are skipped without probing.
//
// A page that cannot be scraped stops probing and is returned as an error
// after queued downloads finish. Failed downloads are reported in the
// result, not as an error.
func Run(ctx context.Context, client Client, episodeURL string, opts Options) (*Result, error) {
	if opts.Sink == nil {
		return nil, errors.New("catalog: sink is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.StreamPattern == nil {
		opts.StreamPattern = DefaultStreamPattern
	}
	if opts.DownloadPattern == nil {
		opts.DownloadPattern = DefaultDownloadPattern
	}
	if opts.NotFoundMarker == "" {
		opts.NotFoundMarker = NotFoundMarker
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	log := opts.Logger.Named("catalog")

	base, err := BaseURL(episodeURL)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		episodes []Episode
	)
	record := func(ep Episode) {
		mu.Lock()
		episodes = append(episodes, ep)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var probeErr error
	for n := 1; opts.MaxEpisodes == 0 || n <= opts.MaxEpisodes; n++ {
		if err := gctx.Err(); err != nil {
			probeErr = err
			break
		}

		name := FileName(n)
		exists, err := opts.Sink.Exists(gctx, name)
		if err != nil {
			probeErr = fmt.Errorf("check episode %d: %w", n, err)
			break
		}
		if exists {
			log.Info("skipping episode, already saved", "episode", n, "file", name)
			record(Episode{Number: n, Name: name, Skipped: true})
			continue
		}

		pageURL := base + "-" + strconv.Itoa(n)
		downloadURL, found, err := resolve(gctx, client, pageURL, opts)
		if err != nil {
			probeErr = fmt.Errorf("episode %d: %w", n, err)
			break
		}
		if !found {
			log.Debug("end of catalog", "episode", n, "url", pageURL)
			break
		}

		log.Info("queueing download", "episode", n, "url", downloadURL)
		ep := Episode{Number: n, Name: name, DownloadURL: downloadURL}
		g.Go(func() error {
			done := fetchEpisode(gctx, client, ep, opts, log)
			record(done)
			if done.Err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}

	waitErr := g.Wait()

	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Number < episodes[j].Number })
	res := &Result{Episodes: episodes}
	for _, ep := range episodes {
		switch {
		case ep.Skipped:
			res.Skipped++
		case ep.Err != nil:
			res.Failed++
		default:
			res.Saved++
		}
	}

	if probeErr != nil {
		return res, probeErr
	}
	return res, waitErr
}

// resolve scrapes the episode page and the download page. found is false
// when the episode page is the not-found page.
func resolve(ctx context.Context, client Client, pageURL string, opts Options) (string, bool, error) {
	page, err := client.GetText(ctx, pageURL)
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", pageURL, err)
	}
	if strings.Contains(page, opts.NotFoundMarker) {
		return "", false, nil
	}

	m := opts.StreamPattern.FindStringSubmatch(page)
	if len(m) < 2 {
		return "", false, fmt.Errorf("%w: stream link on %s", ErrNoMatch, pageURL)
	}
	streamURL, id := m[0], m[1]

	form := url.Values{}
	form.Set("captcha_v3", opts.Captcha)
	form.Set("id", id)
	downloads, err := client.PostForm(ctx, streamURL, form)
	if err != nil {
		return "", false, fmt.Errorf("post %s: %w", streamURL, err)
	}

	m = opts.DownloadPattern.FindStringSubmatch(downloads)
	if len(m) < 2 {
		return "", false, fmt.Errorf("%w: download link on %s", ErrNoMatch, streamURL)
	}
	return m[1], true, nil
}

func fetchEpisode(ctx context.Context, client Client, ep Episode, opts Options, log hclog.Logger) Episode {
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		data, err := client.Fetch(ctx, ep.DownloadURL)
		if err != nil {
			ep.Err = err
			if ctx.Err() != nil {
				return ep
			}
			log.Warn("episode download failed", "episode", ep.Number, "attempt", attempt, "error", err)
			continue
		}

		if err := opts.Sink.Write(ctx, ep.Name, data); err != nil {
			ep.Err = fmt.Errorf("save %s: %w", ep.Name, err)
			log.Error("saving episode failed", "episode", ep.Number, "error", err)
			return ep
		}
		ep.Err = nil
		ep.Bytes = len(data)
		log.Info("saved episode", "episode", ep.Number, "file", ep.Name, "bytes", len(data))
		return ep
	}
	return ep
}
