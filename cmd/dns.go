package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"opshub.dev/opshub/internal/dnscheck"
	"opshub.dev/opshub/internal/history"
)

// RunDNS measures resolver latency for a domain.
func RunDNS(args []string) error {
	fs := flag.NewFlagSet("dns", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	resolvers := fs.String("r", "", "comma-separated resolvers (default: 1.1.1.1,8.8.8.8,9.9.9.9)")
	count := fs.Int("n", 0, "queries per resolver")
	timeout := fs.Duration("timeout", 0, "per-query timeout")
	qtype := fs.String("t", "A", "query type: A, AAAA, MX, TXT or NS")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return usageError(fs, "dns: exactly one domain required")
	}
	domain := fs.Arg(0)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	probeCfg := dnscheck.DefaultConfig()
	if *count > 0 {
		probeCfg.Count = *count
	}
	if *timeout > 0 {
		probeCfg.Timeout = *timeout
	}
	qt, err := queryType(*qtype)
	if err != nil {
		return err
	}
	probeCfg.QType = qt

	prober := dnscheck.New(logger, probeCfg)
	result, err := prober.Probe(context.Background(), domain, splitComma(*resolvers))
	if err != nil {
		return err
	}

	recordRun(logger, cfg, history.Run{
		Command: "dns",
		Target:  domain,
		Summary: fmt.Sprintf("%d resolvers probed", len(result.Resolvers)),
		OK:      true,
		Details: result,
	})

	return common.render(result)
}

func queryType(s string) (uint16, error) {
	if t, ok := dns.StringToType[strings.ToUpper(s)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown query type %q", s)
}
