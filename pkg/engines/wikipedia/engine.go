// Package wikipedia implements the Wikipedia search engine adapter. It uses
// the MediaWiki search API for main results and the REST summary endpoint
// for an infobox on the first page.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/engines/httpx"
	"github.com/metisearch/metis/pkg/log"
	"github.com/metisearch/metis/pkg/normalize"
)

func init() {
	core.RegisterEnginePrototype("wikipedia", &Engine{})
}

var logger = log.For("wikipedia")

const resultsPerPage = 10

type Config struct {
	// Language selects the Wikipedia edition ("en", "de", ...).
	Language string `toml:"language"`

	// FetchSummary enables the extra summary request that produces the
	// infobox for first-page searches.
	FetchSummary bool `toml:"fetch_summary"`

	// Weight overrides the engine score weight.
	Weight float64 `toml:"weight"`

	// Timeout overrides the per-engine timeout.
	Timeout time.Duration `toml:"-"`
}

func (c *Config) Validate() error {
	if c.Language == "" {
		c.Language = "en"
	}
	if strings.ContainsAny(c.Language, "./:") {
		return fmt.Errorf("invalid wikipedia language %q", c.Language)
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
		cfg = &Config{Language: "en", FetchSummary: true}
	} else {
		var ok bool
		cfg, ok = config.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for wikipedia engine")
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

func (e *Engine) Type() string { return "wikipedia" }
func (e *Engine) Name() string { return e.instanceName }

func (e *Engine) Capabilities() core.Capabilities {
	return core.Capabilities{
		Paging: true,
		Locales: []string{
			"en", "de", "fr", "es", "it", "pt", "nl", "pl", "ru", "ja", "zh",
		},
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

type searchResponse struct {
	Query struct {
		SearchInfo struct {
			Suggestion string `json:"suggestion"`
		} `json:"searchinfo"`
		Search []struct {
			Title     string `json:"title"`
			Snippet   string `json:"snippet"`
			Timestamp string `json:"timestamp"`
		} `json:"search"`
	} `json:"query"`
}

type summaryResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	Thumbnail   struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (e *Engine) Fetch(ctx context.Context, query core.Query) ([]core.RawResult, error) {
	language := e.language(query)
	offset := (query.PageNo - 1) * resultsPerPage

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("format", "json")
	params.Set("srsearch", query.Terms)
	params.Set("srlimit", fmt.Sprintf("%d", resultsPerPage))
	params.Set("sroffset", fmt.Sprintf("%d", offset))
	params.Set("srinfo", "suggestion")
	params.Set("srprop", "snippet|timestamp")

	endpoint := fmt.Sprintf("https://%s.wikipedia.org/w/api.php?%s", language, params.Encode())
	var decoded searchResponse
	if err := e.getJSON(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}

	raws := make([]core.RawResult, 0, len(decoded.Query.Search)+2)
	for _, hit := range decoded.Query.Search {
		raws = append(raws, core.RawResult{
			normalize.KeyURL: fmt.Sprintf("https://%s.wikipedia.org/wiki/%s",
				language, url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_"))),
			normalize.KeyTitle:       hit.Title,
			normalize.KeyContent:     stripTags(hit.Snippet),
			normalize.KeyPublishedAt: hit.Timestamp,
		})
	}

	if suggestion := decoded.Query.SearchInfo.Suggestion; suggestion != "" {
		raws = append(raws, core.RawResult{
			normalize.KeyArea:   string(core.AreaCorrection),
			normalize.KeyAnswer: suggestion,
		})
	}

	if e.config.FetchSummary && query.PageNo == 1 && len(decoded.Query.Search) > 0 {
		if infobox := e.fetchSummary(ctx, language, decoded.Query.Search[0].Title); infobox != nil {
			raws = append(raws, infobox)
		}
	}

	return raws, nil
}

// fetchSummary is best effort: a failing summary request never fails the
// whole search.
func (e *Engine) fetchSummary(ctx context.Context, language, title string) core.RawResult {
	endpoint := fmt.Sprintf("https://%s.wikipedia.org/api/rest_v1/page/summary/%s",
		language, url.PathEscape(strings.ReplaceAll(title, " ", "_")))

	var decoded summaryResponse
	if err := e.getJSON(ctx, endpoint, &decoded); err != nil {
		logger.Debugf("summary request for %q failed: %v", title, err)
		return nil
	}
	if decoded.Extract == "" {
		return nil
	}

	raw := core.RawResult{
		normalize.KeyArea:         string(core.AreaInfobox),
		normalize.KeyInfoboxTitle: decoded.Title,
		normalize.KeyContent:      decoded.Extract,
		normalize.KeyImageURL:     decoded.Thumbnail.Source,
	}
	if page := decoded.ContentURLs.Desktop.Page; page != "" {
		raw[normalize.KeyURLs] = []core.InfoboxURL{{Title: "Wikipedia", URL: page}}
	}
	if decoded.Description != "" {
		raw[normalize.KeyAttributes] = []core.InfoboxAttribute{
			{Label: "Description", Value: decoded.Description},
		}
	}
	return raw
}

func (e *Engine) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("closing response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return &core.StatusError{Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.PayloadError{Reason: "decoding wikipedia response", Err: err}
	}
	return nil
}

func (e *Engine) language(query core.Query) string {
	if query.Language != "" {
		if base, _, found := strings.Cut(query.Language, "-"); found {
			return base
		}
		return query.Language
	}
	return e.config.Language
}

// stripTags removes the searchmatch highlight markup MediaWiki embeds in
// snippets.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
