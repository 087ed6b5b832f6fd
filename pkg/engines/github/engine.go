// Package github implements the GitHub repository search engine adapter for
// the "it" category. An optional token raises the rate limits; without one
// GitHub allows a handful of searches per minute.
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/normalize"
)

func init() {
	core.RegisterEnginePrototype("github", &Engine{})
}

const (
	perPage = 10
	maxPage = 100
)

type Config struct {
	// Token is an optional personal access token.
	Token string `toml:"token"`

	// Language restricts repository searches to one language.
	Language string `toml:"language"`

	// Sort is "stars", "forks", "updated" or empty for best match.
	Sort string `toml:"sort"`

	Weight  float64       `toml:"weight"`
	Timeout time.Duration `toml:"-"`
}

func (c *Config) Validate() error {
	switch c.Sort {
	case "", "stars", "forks", "updated":
		return nil
	}
	return fmt.Errorf("invalid github sort %q", c.Sort)
}

type Engine struct {
	config       *Config
	client       *github.Client
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
			return nil, fmt.Errorf("invalid config type for github engine")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var client *github.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}

	return &Engine{
		config:       cfg,
		client:       client,
		instanceName: instanceName,
	}, nil
}

func (e *Engine) Type() string { return "github" }
func (e *Engine) Name() string { return e.instanceName }

func (e *Engine) Capabilities() core.Capabilities {
	return core.Capabilities{Paging: true, MaxPage: maxPage}
}

func (e *Engine) Categories() []string { return []string{"it"} }

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
	terms := query.Terms
	if e.config.Language != "" {
		terms = fmt.Sprintf("%s language:%s", terms, e.config.Language)
	}

	opts := &github.SearchOptions{
		Sort:        e.config.Sort,
		ListOptions: github.ListOptions{Page: query.PageNo, PerPage: perPage},
	}

	result, resp, err := e.client.Search.Repositories(ctx, terms, opts)
	if err != nil {
		if resp != nil {
			return nil, &core.StatusError{Status: resp.StatusCode}
		}
		return nil, err
	}

	raws := make([]core.RawResult, 0, len(result.Repositories))
	for _, repo := range result.Repositories {
		if repo.GetHTMLURL() == "" {
			continue
		}
		content := repo.GetDescription()
		if lang := repo.GetLanguage(); lang != "" {
			content = fmt.Sprintf("%s (%s, %d stars)", content, lang, repo.GetStargazersCount())
		}
		raw := core.RawResult{
			normalize.KeyURL:     repo.GetHTMLURL(),
			normalize.KeyTitle:   repo.GetFullName(),
			normalize.KeyContent: content,
		}
		if owner := repo.GetOwner(); owner != nil {
			raw[normalize.KeyThumbnail] = owner.GetAvatarURL()
		}
		if pushed := repo.GetPushedAt(); !pushed.IsZero() {
			raw[normalize.KeyPublishedAt] = pushed.Time
		}
		raws = append(raws, raw)
	}
	return raws, nil
}
