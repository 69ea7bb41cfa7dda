package cmd

import (
	"context"
	"flag"
	"fmt"

	"opshub.dev/opshub/internal/blacklist"
	"opshub.dev/opshub/internal/firewall"
	"opshub.dev/opshub/internal/history"
)

// RunFirewall reports on the nftables ruleset and manages the
// blocklist sets. Actions: report (default), status, reload.
func RunFirewall(args []string) error {
	fs := flag.NewFlagSet("firewall", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	action := "report"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	switch action {
	case "report":
		reporter, err := firewall.OpenReporter()
		if err != nil {
			return err
		}
		snap, err := reporter.Snapshot()
		if err != nil {
			return err
		}
		return common.render(snap)

	case "status":
		mgr, err := firewall.OpenBlocklist(logger, cfg.Blocklist.Table)
		if err != nil {
			return err
		}
		status, err := mgr.Status()
		if err != nil {
			return err
		}
		return common.render(status)

	case "reload":
		if len(cfg.Feeds) == 0 {
			return fmt.Errorf("no feed blocks configured")
		}

		ctx := context.Background()
		feeds := blacklist.NewFetcher(logger).FetchAll(ctx, cfg.Feeds)

		mgr, err := firewall.OpenBlocklist(logger, cfg.Blocklist.Table)
		if err != nil {
			return err
		}
		v4, err := mgr.ReloadIPv4(cfg.Blocklist.Set, feeds.IPv4)
		if err != nil {
			return err
		}
		v6, err := mgr.ReloadIPv6(cfg.Blocklist.SetV6, feeds.IPv6)
		if err != nil {
			return err
		}

		recordRun(logger, cfg, history.Run{
			Command: "firewall",
			Target:  cfg.Blocklist.Table,
			Summary: fmt.Sprintf("reloaded %d v4 + %d v6 entries from %d feeds", v4, v6, len(cfg.Feeds)),
			OK:      len(feeds.Errors) == 0,
			Details: feeds,
		})

		status, err := mgr.Status()
		if err != nil {
			return err
		}
		return common.render(status)

	default:
		return fmt.Errorf("firewall: unknown action %q (want report, status or reload)", action)
	}
}
