package dnscheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange returns canned RTTs per server.
func fakeExchange(rtts map[string][]time.Duration, failFor map[string]bool) func(context.Context, *dns.Msg, string) (*dns.Msg, time.Duration, error) {
	calls := make(map[string]int)
	return func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, time.Duration, error) {
		if failFor[server] {
			return nil, 0, errors.New("i/o timeout")
		}
		i := calls[server]
		calls[server]++
		series := rtts[server]
		rtt := series[i%len(series)]

		resp := new(dns.Msg)
		resp.SetReply(m)
		resp.Rcode = dns.RcodeSuccess
		return resp, rtt, nil
	}
}

func newTestProber(cfg Config) *Prober {
	p := New(nil, cfg)
	return p
}

func TestProbe_RankedByAvg(t *testing.T) {
	p := newTestProber(Config{Count: 3, Spacing: 0})
	p.exchange = fakeExchange(map[string][]time.Duration{
		"8.8.8.8:53": {30 * time.Millisecond},
		"1.1.1.1:53": {10 * time.Millisecond},
	}, nil)

	res, err := p.Probe(context.Background(), "example.com", []string{"8.8.8.8", "1.1.1.1"})
	require.NoError(t, err)
	require.Len(t, res.Resolvers, 2)
	assert.Equal(t, "1.1.1.1:53", res.Resolvers[0].Resolver)
	assert.Equal(t, "8.8.8.8:53", res.Resolvers[1].Resolver)
}

func TestProbe_Stats(t *testing.T) {
	p := newTestProber(Config{Count: 3, Spacing: 0})
	p.exchange = fakeExchange(map[string][]time.Duration{
		"1.1.1.1:53": {10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond},
	}, nil)

	res, err := p.Probe(context.Background(), "example.com", []string{"1.1.1.1"})
	require.NoError(t, err)
	rr := res.Resolvers[0]

	assert.Equal(t, 3, rr.Sent)
	assert.Equal(t, 3, rr.Received)
	assert.Equal(t, 10*time.Millisecond, rr.Min)
	assert.Equal(t, 20*time.Millisecond, rr.Avg)
	assert.Equal(t, 30*time.Millisecond, rr.Max)
	assert.Equal(t, float64(0), rr.Loss)
	assert.Equal(t, "NOERROR", rr.Rcode)
}

func TestProbe_TotalLossGoesLast(t *testing.T) {
	p := newTestProber(Config{Count: 2, Spacing: 0})
	p.exchange = fakeExchange(map[string][]time.Duration{
		"9.9.9.9:53": {15 * time.Millisecond},
	}, map[string]bool{"10.0.0.1:53": true})

	res, err := p.Probe(context.Background(), "example.com", []string{"10.0.0.1", "9.9.9.9"})
	require.NoError(t, err)
	require.Len(t, res.Resolvers, 2)

	assert.Equal(t, "9.9.9.9:53", res.Resolvers[0].Resolver)

	dead := res.Resolvers[1]
	assert.Equal(t, "10.0.0.1:53", dead.Resolver)
	assert.Equal(t, float64(100), dead.Loss)
	assert.Equal(t, 0, dead.Received)
	assert.NotEmpty(t, dead.LastErr)
}

func TestProbe_EmptyDomain(t *testing.T) {
	p := newTestProber(Config{})
	_, err := p.Probe(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestWithDefaultPort(t *testing.T) {
	assert.Equal(t, "1.1.1.1:53", withDefaultPort("1.1.1.1"))
	assert.Equal(t, "1.1.1.1:5353", withDefaultPort("1.1.1.1:5353"))
	assert.Equal(t, "[2606:4700::1111]:53", withDefaultPort("2606:4700::1111"))
}

func TestRTTStats_Stddev(t *testing.T) {
	min, avg, max, stddev := rttStats([]time.Duration{
		10 * time.Millisecond, 10 * time.Millisecond,
	})
	assert.Equal(t, 10*time.Millisecond, min)
	assert.Equal(t, 10*time.Millisecond, avg)
	assert.Equal(t, 10*time.Millisecond, max)
	assert.Equal(t, time.Duration(0), stddev)
}
