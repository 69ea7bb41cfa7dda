package cmd

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opshub.dev/opshub/internal/config"
)

func TestSplitComma(t *testing.T) {
	assert.Nil(t, splitComma(""))
	assert.Equal(t, []string{"a", "b"}, splitComma("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitComma(" a , ,b, "))
}

func TestAdHocHosts(t *testing.T) {
	hosts, err := adHocHosts([]string{"web1", "deploy@web2:2222", "10.0.0.5:22"})
	require.NoError(t, err)
	require.Len(t, hosts, 3)

	assert.Equal(t, "web1", hosts[0].Address)
	assert.Equal(t, config.DefaultSSHPort, hosts[0].Port)
	assert.Empty(t, hosts[0].User)

	assert.Equal(t, "web2", hosts[1].Address)
	assert.Equal(t, "deploy", hosts[1].User)
	assert.Equal(t, 2222, hosts[1].Port)

	assert.Equal(t, "10.0.0.5", hosts[2].Address)
	assert.Equal(t, 22, hosts[2].Port)
}

func TestAdHocHosts_Invalid(t *testing.T) {
	_, err := adHocHosts([]string{"web1:notaport"})
	assert.Error(t, err)

	_, err = adHocHosts([]string{"deploy@"})
	assert.Error(t, err)
}

func TestQueryType(t *testing.T) {
	qt, err := queryType("aaaa")
	require.NoError(t, err)
	assert.Equal(t, dns.TypeAAAA, qt)

	_, err = queryType("bogus")
	assert.Error(t, err)
}

func TestRetentionFromConfig(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, config.DefaultHistoryRetention, retentionFromConfig(cfg))

	cfg.Server = &config.Server{HistoryRetention: "720h"}
	assert.Equal(t, 720*time.Hour, retentionFromConfig(cfg))

	cfg.Server.HistoryRetention = "garbage"
	assert.Equal(t, config.DefaultHistoryRetention, retentionFromConfig(cfg))
}
