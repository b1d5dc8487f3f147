package ingest

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/feeds.yaml
var feedsYAML embed.FS

// Registry holds the feed endpoints, transport settings and category groups.
type Registry struct {
	Feeds      FeedsConfig     `yaml:"feeds"`
	Fetch      FetchConfig     `yaml:"fetch"`
	Proxies    []ProxyRewrite  `yaml:"proxies"`
	Categories []CategoryGroup `yaml:"categories"`
}

type FeedsConfig struct {
	Bid       FeedConfig `yaml:"bid"`
	Agreement FeedConfig `yaml:"agreement"`
}

type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// FetchConfig defines HTTP fetching configuration for the feeds.
type FetchConfig struct {
	Engine              string `yaml:"engine,omitempty"` // "http" (default) or "colly"
	Direct              bool   `yaml:"direct"`
	ProxyTimeoutSeconds int    `yaml:"proxy_timeout_seconds,omitempty"` // Default: 30
	UserAgent           string `yaml:"user_agent,omitempty"`
}

// ProxyRewrite is a CORS-proxy URL template; {url} receives the escaped target URL.
type ProxyRewrite struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
}

// Rewrite returns the proxied form of target.
func (p ProxyRewrite) Rewrite(target string) string {
	return strings.ReplaceAll(p.Template, "{url}", url.QueryEscape(target))
}

type CategoryGroup struct {
	Group string   `yaml:"group" json:"group"`
	Items []string `yaml:"items" json:"items"`
}

// AllCategories flattens the category groups in declaration order.
func (r *Registry) AllCategories() []string {
	var out []string
	for _, g := range r.Categories {
		out = MergeUniqueFold(out, g.Items)
	}
	return out
}

// ProxyTimeout returns the per-attempt timeout for proxied requests.
func (r *Registry) ProxyTimeout() time.Duration {
	if r.Fetch.ProxyTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.Fetch.ProxyTimeoutSeconds) * time.Second
}

// LoadRegistry reads feeds.yaml from path when given, otherwise the embedded copy.
// BID_API_URL and AGREEMENT_API_URL override the configured endpoints.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = feedsYAML.ReadFile("config/feeds.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feed registry: %w", err)
	}

	// Expand environment variables within the YAML content (e.g. ${MODULE_KEY})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("failed to parse feed registry: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv("BID_API_URL")); v != "" {
		reg.Feeds.Bid.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("AGREEMENT_API_URL")); v != "" {
		reg.Feeds.Agreement.URL = v
	}

	if reg.Feeds.Bid.URL == "" || reg.Feeds.Agreement.URL == "" {
		return nil, fmt.Errorf("feed registry: bid and agreement URLs are required")
	}
	for _, p := range reg.Proxies {
		if !strings.Contains(p.Template, "{url}") {
			return nil, fmt.Errorf("feed registry: proxy %q template has no {url} placeholder", p.Name)
		}
	}

	return &reg, nil
}
