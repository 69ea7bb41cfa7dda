package scan

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startListener starts a TCP listener on 127.0.0.1 that writes banner
// to every accepted connection.
func startListener(t *testing.T, banner string) (addr string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if banner != "" {
				conn.Write([]byte(banner + "\r\n"))
			}
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, p
}

func TestScan_FindsOpenPort(t *testing.T) {
	addr, port := startListener(t, "")

	s := New(nil, Config{
		Timeout:     time.Second,
		Concurrency: 4,
		Ports:       []int{port},
	})

	result, err := s.Scan(context.Background(), []string{addr})
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	require.Len(t, result.Hosts[0].OpenPorts, 1)
	assert.Equal(t, port, result.Hosts[0].OpenPorts[0].Port)
	assert.Equal(t, 1, result.TotalHosts)
}

func TestScan_ClosedPortOmitted(t *testing.T) {
	// Grab a port and release it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port, _ := strconv.Atoi(portStr)

	s := New(nil, Config{
		Timeout:     500 * time.Millisecond,
		Concurrency: 4,
		Ports:       []int{port},
	})

	result, err := s.Scan(context.Background(), []string{"127.0.0.1"})
	require.NoError(t, err)
	assert.Empty(t, result.Hosts)
}

func TestScan_BannerGrab(t *testing.T) {
	addr, port := startListener(t, "SSH-2.0-OpenSSH_9.6")

	s := New(nil, Config{
		Timeout:     time.Second,
		Concurrency: 4,
		Ports:       []int{port},
		Banner:      true,
	})

	result, err := s.Scan(context.Background(), []string{addr})
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	require.Len(t, result.Hosts[0].OpenPorts, 1)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", result.Hosts[0].OpenPorts[0].Banner)
}

func TestScan_InvalidTarget(t *testing.T) {
	s := New(nil, DefaultConfig())
	_, err := s.Scan(context.Background(), []string{"10.0.0.9-10.0.0.1"})
	assert.Error(t, err)
}

func TestScan_PortsSorted(t *testing.T) {
	addr, p1 := startListener(t, "")
	_, p2 := startListener(t, "")

	lo, hi := p1, p2
	if lo > hi {
		lo, hi = hi, lo
	}

	s := New(nil, Config{
		Timeout:     time.Second,
		Concurrency: 8,
		Ports:       []int{hi, lo},
	})

	result, err := s.Scan(context.Background(), []string{addr})
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	require.Len(t, result.Hosts[0].OpenPorts, 2)
	assert.Equal(t, lo, result.Hosts[0].OpenPorts[0].Port)
	assert.Equal(t, hi, result.Hosts[0].OpenPorts[1].Port)
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "SSH", ServiceName(22))
	assert.Equal(t, "", ServiceName(12345))
}
