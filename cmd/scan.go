package cmd

import (
	"context"
	"flag"
	"fmt"

	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/scan"
)

// RunScan probes targets for open TCP ports.
func RunScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	ports := fs.String("p", "", "port spec, e.g. 22,80,8000-8100 (default: well-known set)")
	timeout := fs.Duration("timeout", 0, "per-port dial timeout")
	concurrency := fs.Int("j", 0, "max concurrent dials")
	banner := fs.Bool("banner", false, "grab the first line each open service sends")
	rdns := fs.Bool("rdns", false, "resolve hostnames for responding hosts")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return usageError(fs, "scan: at least one target required (host, CIDR or IP range)")
	}

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	scanCfg := scan.DefaultConfig()
	if cfg.Scan != nil {
		if cfg.Scan.Timeout != "" {
			d, err := config.ParseDurationField(cfg.Scan.Timeout, scanCfg.Timeout)
			if err != nil {
				return err
			}
			scanCfg.Timeout = d
		}
		if cfg.Scan.Concurrency > 0 {
			scanCfg.Concurrency = cfg.Scan.Concurrency
		}
		if len(cfg.Scan.Ports) > 0 {
			scanCfg.Ports = cfg.Scan.Ports
		}
	}
	if *timeout > 0 {
		scanCfg.Timeout = *timeout
	}
	if *concurrency > 0 {
		scanCfg.Concurrency = *concurrency
	}
	if *ports != "" {
		list, err := scan.ExpandPorts(*ports)
		if err != nil {
			return err
		}
		scanCfg.Ports = list
	}
	scanCfg.Banner = *banner
	scanCfg.ReverseDNS = *rdns

	scanner := scan.New(logger, scanCfg)
	result, err := scanner.Scan(context.Background(), fs.Args())
	if err != nil {
		return err
	}

	open := 0
	for _, h := range result.Hosts {
		open += len(h.OpenPorts)
	}
	saveScan(logger, cfg, result, open)

	return common.render(result)
}

// saveScan records the run and upserts port findings.
func saveScan(logger *logging.Logger, cfg *config.Config, result *scan.Result, open int) {
	store, err := history.Open(logger, historyPath(cfg))
	if err != nil {
		logger.Debug("history unavailable", "error", err)
		return
	}
	defer store.Close()

	ctx := context.Background()
	run := history.Run{
		Command:   "scan",
		Target:    fmt.Sprintf("%v", result.Targets),
		Summary:   fmt.Sprintf("%d hosts up, %d open ports", len(result.Hosts), open),
		OK:        true,
		Details:   result,
		StartedAt: result.StartedAt,
	}
	if _, err := store.RecordRun(ctx, run); err != nil {
		logger.Debug("history record failed", "error", err)
	}

	var findings []history.Finding
	for _, h := range result.Hosts {
		for _, p := range h.OpenPorts {
			findings = append(findings, history.Finding{
				Host:      h.Addr,
				Port:      p.Port,
				Service:   p.Service,
				Banner:    p.Banner,
				FirstSeen: h.ScannedAt,
				LastSeen:  h.ScannedAt,
			})
		}
	}
	if len(findings) > 0 {
		if _, err := store.UpsertFindings(ctx, findings); err != nil {
			logger.Debug("finding upsert failed", "error", err)
		}
	}
}
