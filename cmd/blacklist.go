package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"opshub.dev/opshub/internal/blacklist"
	"opshub.dev/opshub/internal/history"
)

// RunBlacklist checks an IP against DNS blocklist zones.
func RunBlacklist(args []string) error {
	fs := flag.NewFlagSet("blacklist", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	zones := fs.String("z", "", "comma-separated DNSBL zones (default: configured dnsbl blocks or built-ins)")
	resolver := fs.String("r", "", "resolver to query through (default: system)")
	timeout := fs.Duration("timeout", 5*time.Second, "per-zone query timeout")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return usageError(fs, "blacklist: exactly one IP address required")
	}
	ip := fs.Arg(0)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	zoneList := splitComma(*zones)
	if len(zoneList) == 0 {
		for _, z := range cfg.DNSBLs {
			zoneList = append(zoneList, z.Zone)
		}
	}

	checker := blacklist.NewChecker(logger, *resolver, *timeout)
	result, err := checker.Check(context.Background(), ip, zoneList)
	if err != nil {
		return err
	}

	verdict := "clean"
	if result.Listed {
		verdict = "LISTED"
	}
	recordRun(logger, cfg, history.Run{
		Command: "blacklist",
		Target:  ip,
		Summary: fmt.Sprintf("%s across %d zones", verdict, len(result.Zones)),
		OK:      !result.Listed,
		Details: result,
	})

	return common.render(result)
}
