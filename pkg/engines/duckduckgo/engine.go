// Package duckduckgo implements the DuckDuckGo engine adapter. It scrapes
// the HTML Lite frontend, which needs no API key and supports paging through
// form offsets.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/engines/httpx"
	"github.com/metisearch/metis/pkg/log"
	"github.com/metisearch/metis/pkg/normalize"
)

func init() {
	core.RegisterEnginePrototype("duckduckgo", &Engine{})
}

var logger = log.For("duckduckgo")

const liteURL = "https://lite.duckduckgo.com/lite/"

// Lite serves ~20 organic results; the second page starts at offset 20 and
// later pages advance by 50.
const (
	firstPageSize = 20
	nextPageSize  = 50
	maxPage       = 10
)

type Config struct {
	// Region is the DuckDuckGo region code ("us-en", "de-de", ...).
	Region string `toml:"region"`

	Weight  float64       `toml:"weight"`
	Timeout time.Duration `toml:"-"`
}

func (c *Config) Validate() error {
	if c.Region != "" && !strings.Contains(c.Region, "-") {
		return fmt.Errorf("invalid duckduckgo region %q", c.Region)
	}
	return nil
}

type Engine struct {
	config       *Config
	client       *http.Client
	instanceName string
}

func NewEngine(instanceName string, config interface{}) (core.Engine, error) {
	var cfg *Config
	if config == nil {
		cfg = &Config{}
	} else {
		var ok bool
		cfg, ok = config.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for duckduckgo engine")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		config:       cfg,
		client:       httpx.NewClient(30 * time.Second),
		instanceName: instanceName,
	}, nil
}

func (e *Engine) Type() string { return "duckduckgo" }
func (e *Engine) Name() string { return e.instanceName }

func (e *Engine) Capabilities() core.Capabilities {
	return core.Capabilities{
		Paging:     true,
		MaxPage:    maxPage,
		SafeSearch: true,
		TimeRange:  true,
	}
}

func (e *Engine) Categories() []string { return []string{"general"} }

func (e *Engine) Weight() float64 {
	if e.config != nil && e.config.Weight > 0 {
		return e.config.Weight
	}
	return 1.0
}

func (e *Engine) Timeout() time.Duration {
	if e.config != nil {
		return e.config.Timeout
	}
	return 0
}

func (e *Engine) ConfigType() interface{} { return &Config{} }

func (e *Engine) Factory(instanceName string, config interface{}) (core.Engine, error) {
	return NewEngine(instanceName, config)
}

func (e *Engine) Close() error { return nil }

func (e *Engine) Fetch(ctx context.Context, query core.Query) ([]core.RawResult, error) {
	return e.fetchFrom(ctx, liteURL, query)
}

func (e *Engine) fetchFrom(ctx context.Context, endpoint string, query core.Query) ([]core.RawResult, error) {
	form := url.Values{}
	form.Set("q", query.Terms)
	if offset := pageOffset(query.PageNo); offset > 0 {
		form.Set("s", fmt.Sprintf("%d", offset))
		form.Set("dc", fmt.Sprintf("%d", offset+1))
	}
	if region := e.region(query); region != "" {
		form.Set("kl", region)
	}
	switch query.SafeSearch {
	case core.SafeSearchStrict:
		form.Set("kp", "1")
	case core.SafeSearchOff:
		form.Set("kp", "-2")
	}
	if df := timeRangeParam(query.TimeRange); df != "" {
		form.Set("df", df)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("closing response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.StatusError{Status: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &core.PayloadError{Reason: "parsing duckduckgo html", Err: err}
	}
	return parseLiteResults(doc), nil
}

// parseLiteResults walks the Lite result table: each organic hit is a run of
// rows holding the link, the snippet and the displayed URL.
func parseLiteResults(doc *goquery.Document) []core.RawResult {
	var raws []core.RawResult

	doc.Find("a.result-link").Each(func(i int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		href = resolveRedirect(href)
		if href == "" {
			return
		}

		raw := core.RawResult{
			normalize.KeyURL:   href,
			normalize.KeyTitle: strings.TrimSpace(link.Text()),
		}

		// The snippet lives in the next table row.
		row := link.Closest("tr")
		if snippet := row.Next().Find("td.result-snippet"); snippet.Length() > 0 {
			raw[normalize.KeyContent] = strings.TrimSpace(snippet.Text())
		}
		raws = append(raws, raw)
	})

	return raws
}

// resolveRedirect unwraps the //duckduckgo.com/l/?uddg=... indirection Lite
// sometimes serves.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	return href
}

func pageOffset(pageno int) int {
	switch {
	case pageno <= 1:
		return 0
	case pageno == 2:
		return firstPageSize
	default:
		return firstPageSize + (pageno-2)*nextPageSize
	}
}

func timeRangeParam(tr core.TimeRange) string {
	switch tr {
	case core.TimeRangeDay:
		return "d"
	case core.TimeRangeWeek:
		return "w"
	case core.TimeRangeMonth:
		return "m"
	case core.TimeRangeYear:
		return "y"
	}
	return ""
}

func (e *Engine) region(query core.Query) string {
	if query.Language != "" {
		parts := strings.SplitN(strings.ToLower(query.Language), "-", 2)
		if len(parts) == 2 {
			return parts[1] + "-" + parts[0]
		}
	}
	return e.config.Region
}
