package scan

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// ExpandHosts expands a target spec into individual host addresses.
// Accepted forms:
//
//	10.0.0.5            single IP
//	10.0.0.0/24         IPv4 CIDR (network/broadcast skipped for /24 to /30)
//	10.0.0.5-10.0.0.9   inclusive IPv4 range
//	web-1.example.com   hostname, passed through unresolved
func ExpandHosts(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty target")
	}

	if strings.Contains(spec, "/") {
		return expandCIDR(spec)
	}
	if strings.Contains(spec, "-") && net.ParseIP(strings.Split(spec, "-")[0]) != nil {
		return expandRange(spec)
	}
	return []string{spec}, nil
}

func expandCIDR(spec string) ([]string, error) {
	_, ipnet, err := net.ParseCIDR(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", spec, err)
	}

	if ipnet.IP.To4() == nil {
		return nil, fmt.Errorf("CIDR expansion is IPv4 only: %q", spec)
	}

	ones, bits := ipnet.Mask.Size()
	if bits-ones > 16 {
		return nil, fmt.Errorf("CIDR %q too large (max /16)", spec)
	}

	var hosts []string
	for ip := ipnet.IP.Mask(ipnet.Mask); ipnet.Contains(ip); incIP(ip) {
		// Skip network and broadcast addresses for /24 to /30. Wider
		// prefixes keep them: a .0 or .255 in the middle of a /23 is
		// an ordinary host. /31 and /32 use every address.
		if bits-ones > 1 && bits-ones <= 8 {
			if ip[len(ip)-1] == 0 || ip[len(ip)-1] == 255 {
				continue
			}
		}
		hostIP := make(net.IP, len(ip))
		copy(hostIP, ip)
		hosts = append(hosts, hostIP.String())
	}
	return hosts, nil
}

func expandRange(spec string) ([]string, error) {
	parts := strings.SplitN(spec, "-", 2)
	start := net.ParseIP(strings.TrimSpace(parts[0]))
	end := net.ParseIP(strings.TrimSpace(parts[1]))
	if start == nil || end == nil {
		return nil, fmt.Errorf("invalid IP range %q", spec)
	}
	start4, end4 := start.To4(), end.To4()
	if start4 == nil || end4 == nil {
		return nil, fmt.Errorf("IP ranges are IPv4 only: %q", spec)
	}

	s := ipToUint(start4)
	e := ipToUint(end4)
	if e < s {
		return nil, fmt.Errorf("inverted IP range %q", spec)
	}
	if e-s > 65535 {
		return nil, fmt.Errorf("IP range %q too large (max 65536 hosts)", spec)
	}

	hosts := make([]string, 0, e-s+1)
	for v := s; v <= e; v++ {
		hosts = append(hosts, uintToIP(v).String())
	}
	return hosts, nil
}

// ExpandPorts expands a port spec ("22,80,8000-8010") into a sorted,
// de-duplicated port list.
func ExpandPorts(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty port spec")
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, err := parsePort(bounds[0])
			if err != nil {
				return nil, err
			}
			hi, err := parsePort(bounds[1])
			if err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, fmt.Errorf("inverted port range %q", part)
			}
			for p := lo; p <= hi; p++ {
				seen[p] = true
			}
		} else {
			p, err := parsePort(part)
			if err != nil {
				return nil, err
			}
			seen[p] = true
		}
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}

// incIP increments an IP address.
func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

func ipToUint(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uintToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// CompareAddrs orders addresses numerically where possible so scan
// output is stable (10.0.0.2 before 10.0.0.10).
func CompareAddrs(a, b string) bool {
	ipa := net.ParseIP(a)
	ipb := net.ParseIP(b)
	if ipa != nil && ipb != nil {
		a4, b4 := ipa.To4(), ipb.To4()
		if a4 != nil && b4 != nil {
			return ipToUint(a4) < ipToUint(b4)
		}
	}
	return a < b
}
