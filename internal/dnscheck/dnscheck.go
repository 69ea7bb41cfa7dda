// Package dnscheck measures DNS resolver latency.
// It replaces dig-in-a-loop scripts: each resolver gets a burst of
// identical queries and the toolkit reports per-resolver RTT
// statistics, loss and response codes, ranked by mean latency.
package dnscheck

import (
	"context"
	"fmt"
	"math"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// ResolverResult holds latency statistics for one resolver.
type ResolverResult struct {
	Resolver string        `json:"resolver"`
	Sent     int           `json:"sent"`
	Received int           `json:"received"`
	Loss     float64       `json:"loss_pct"`
	Min      time.Duration `json:"min"`
	Avg      time.Duration `json:"avg"`
	Max      time.Duration `json:"max"`
	Stddev   time.Duration `json:"stddev"`
	Rcode    string        `json:"rcode,omitempty"`    // last response code seen
	LastErr  string        `json:"last_err,omitempty"` // last transport error
}

// Result is a full latency check across resolvers.
type Result struct {
	Domain    string           `json:"domain"`
	QueryType string           `json:"query_type"`
	Resolvers []ResolverResult `json:"resolvers"` // sorted fastest first
	StartedAt time.Time        `json:"started_at"`
}

// Headers implements report.Result.
func (r *Result) Headers() []string {
	return []string{"RESOLVER", "SENT", "RECV", "LOSS", "MIN", "AVG", "MAX", "RCODE"}
}

// Rows implements report.Result.
func (r *Result) Rows() [][]string {
	rows := make([][]string, 0, len(r.Resolvers))
	for _, rr := range r.Resolvers {
		rows = append(rows, []string{
			rr.Resolver,
			fmt.Sprintf("%d", rr.Sent),
			fmt.Sprintf("%d", rr.Received),
			fmt.Sprintf("%.0f%%", rr.Loss),
			formatRTT(rr.Min),
			formatRTT(rr.Avg),
			formatRTT(rr.Max),
			rr.Rcode,
		})
	}
	return rows
}

var _ report.Result = (*Result)(nil)

func formatRTT(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}

// DefaultResolvers is probed when none are given.
var DefaultResolvers = []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"}

// Config holds prober settings.
type Config struct {
	Count   int           // queries per resolver
	Timeout time.Duration // per-query timeout
	QType   uint16        // dns.TypeA by default
	Spacing time.Duration // gap between queries to one resolver
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Count:   5,
		Timeout: 3 * time.Second,
		QType:   dns.TypeA,
		Spacing: 50 * time.Millisecond,
	}
}

// Prober runs latency checks.
type Prober struct {
	logger *logging.Logger
	cfg    Config

	// exchange is swappable for tests.
	exchange func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, time.Duration, error)
}

// New creates a prober.
func New(logger *logging.Logger, cfg Config) *Prober {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if cfg.Count == 0 {
		cfg.Count = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.QType == 0 {
		cfg.QType = dns.TypeA
	}

	client := &dns.Client{Timeout: cfg.Timeout}
	return &Prober{
		logger: logger.WithComponent("dnscheck"),
		cfg:    cfg,
		exchange: func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, time.Duration, error) {
			return client.ExchangeContext(ctx, m, server)
		},
	}
}

// Probe queries each resolver and aggregates latency statistics.
// Resolvers may omit the port; 53 is assumed.
func (p *Prober) Probe(ctx context.Context, domain string, resolvers []string) (*Result, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if len(resolvers) == 0 {
		resolvers = DefaultResolvers
	}

	result := &Result{
		Domain:    domain,
		QueryType: dns.TypeToString[p.cfg.QType],
		StartedAt: clock.Now(),
	}

	for _, resolver := range resolvers {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		rr := p.probeResolver(ctx, domain, withDefaultPort(resolver))
		result.Resolvers = append(result.Resolvers, rr)
	}

	// Rank by mean RTT; resolvers that lost everything go last.
	sort.SliceStable(result.Resolvers, func(i, j int) bool {
		a, b := result.Resolvers[i], result.Resolvers[j]
		if (a.Received > 0) != (b.Received > 0) {
			return a.Received > 0
		}
		return a.Avg < b.Avg
	})

	return result, nil
}

func (p *Prober) probeResolver(ctx context.Context, domain, server string) ResolverResult {
	rr := ResolverResult{Resolver: server}

	var rtts []time.Duration
loop:
	for i := 0; i < p.cfg.Count; i++ {
		if i > 0 && p.cfg.Spacing > 0 {
			select {
			case <-ctx.Done():
				break loop
			case <-time.After(p.cfg.Spacing):
			}
		}

		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(domain), p.cfg.QType)
		m.RecursionDesired = true

		rr.Sent++
		resp, rtt, err := p.exchange(ctx, m, server)
		if err != nil {
			rr.LastErr = err.Error()
			p.logger.Debug("query failed", "resolver", server, "error", err)
			continue
		}

		rr.Received++
		rr.Rcode = dns.RcodeToString[resp.Rcode]
		rtts = append(rtts, rtt)
	}

	if rr.Sent > 0 {
		rr.Loss = float64(rr.Sent-rr.Received) / float64(rr.Sent) * 100
	}
	if len(rtts) > 0 {
		rr.Min, rr.Avg, rr.Max, rr.Stddev = rttStats(rtts)
	}
	return rr
}

func rttStats(rtts []time.Duration) (min, avg, max, stddev time.Duration) {
	min = rtts[0]
	max = rtts[0]
	var sum time.Duration
	for _, r := range rtts {
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
		sum += r
	}
	avg = sum / time.Duration(len(rtts))

	var variance float64
	for _, r := range rtts {
		d := float64(r - avg)
		variance += d * d
	}
	variance /= float64(len(rtts))
	stddev = time.Duration(math.Sqrt(variance))
	return
}

func withDefaultPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	// Bare IPv6 needs brackets once we add the port.
	if strings.Count(server, ":") > 1 && !strings.HasPrefix(server, "[") {
		return "[" + server + "]:53"
	}
	return server + ":53"
}
