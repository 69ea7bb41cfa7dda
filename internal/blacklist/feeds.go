package blacklist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/logging"
)

// FeedResult holds the parsed indicators of all fetched feeds.
type FeedResult struct {
	IPv4    []string `json:"ipv4"`
	IPv6    []string `json:"ipv6"`
	Domains []string `json:"domains"`
	Errors  []string `json:"errors,omitempty"` // per-feed failures, fetch continues
}

// Fetcher pulls plain-text threat feeds over HTTP.
type Fetcher struct {
	logger *logging.Logger
	client *http.Client
}

// NewFetcher creates a feed fetcher.
func NewFetcher(logger *logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Fetcher{
		logger: logger.WithComponent("blacklist"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchAll pulls every configured feed. A failing feed is logged and
// recorded but does not abort the rest.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []config.Feed) *FeedResult {
	result := &FeedResult{}

	f.logger.Info("polling feeds", "count", len(feeds))
	for _, feed := range feeds {
		v4, v6, domains, err := f.fetchOne(ctx, feed)
		if err != nil {
			f.logger.Warn("feed fetch failed", "feed", feed.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", feed.Name, err))
			continue
		}
		f.logger.Info("feed fetched",
			"feed", feed.Name,
			"ipv4", len(v4),
			"ipv6", len(v6),
			"domains", len(domains),
		)

		result.IPv4 = append(result.IPv4, v4...)
		result.IPv6 = append(result.IPv6, v6...)
		result.Domains = append(result.Domains, domains...)
	}

	result.IPv4 = dedupe(result.IPv4)
	result.IPv6 = dedupe(result.IPv6)
	result.Domains = dedupe(result.Domains)
	return result
}

func (f *Fetcher) fetchOne(ctx context.Context, feed config.Feed) ([]string, []string, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	return ParseList(resp.Body)
}

// ParseList parses a plain-text indicator list: one entry per line,
// '#' and ';' comments, inline comments stripped. Entries are
// classified as IPv4 (including CIDR), IPv6, or domain.
func ParseList(r io.Reader) ([]string, []string, []string, error) {
	var ipv4, ipv6, domains []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		// Inline comments, as in FireHOL/DROP lists.
		if i := strings.IndexAny(line, "#;"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		entry := line
		if ip, _, err := net.ParseCIDR(entry); err == nil {
			if ip.To4() != nil {
				ipv4 = append(ipv4, entry)
			} else {
				ipv6 = append(ipv6, entry)
			}
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			if ip.To4() != nil {
				ipv4 = append(ipv4, entry)
			} else {
				ipv6 = append(ipv6, entry)
			}
			continue
		}
		if strings.Contains(entry, ".") && !strings.ContainsAny(entry, " \t") {
			domains = append(domains, strings.ToLower(entry))
		}
	}
	return ipv4, ipv6, domains, scanner.Err()
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
