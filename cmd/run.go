package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/sshrun"
)

// RunSSH fans a shell command out over the inventory.
func RunSSH(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	tag := fs.String("tag", "", "limit to inventory hosts carrying this tag")
	hostSpec := fs.String("host", "", "comma-separated ad-hoc hosts (user@addr:port), bypasses inventory")
	inventory := fs.String("inventory", "", "extra YAML inventory file merged into the config hosts")
	user := fs.String("u", "", "fallback SSH user")
	keyPath := fs.String("i", "", "private key file")
	concurrency := fs.Int("j", 0, "parallel sessions (default 10)")
	timeout := fs.Duration("timeout", 0, "per-host deadline (default 30s)")
	insecure := fs.Bool("k", false, "skip host key verification")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return usageError(fs, "run: command required")
	}
	command := strings.Join(fs.Args(), " ")

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	if *inventory != "" {
		extra, err := config.LoadInventoryYAML(*inventory)
		if err != nil {
			return err
		}
		cfg.MergeInventory(extra)
	}

	var hosts []config.Host
	if *hostSpec != "" {
		hosts, err = adHocHosts(splitComma(*hostSpec))
		if err != nil {
			return err
		}
	} else {
		hosts = cfg.HostsByTag(*tag)
	}
	if len(hosts) == 0 {
		return fmt.Errorf("no hosts selected (inventory empty or tag unmatched)")
	}

	runCfg := sshrun.DefaultConfig()
	runCfg.User = *user
	runCfg.KeyPath = *keyPath
	runCfg.InsecureHostKey = *insecure
	if *concurrency > 0 {
		runCfg.Concurrency = *concurrency
	}
	if *timeout > 0 {
		runCfg.Timeout = *timeout
	}

	runner := sshrun.New(logger, runCfg)
	result, err := runner.Run(context.Background(), hosts, command)
	if err != nil {
		return err
	}

	recordRun(logger, cfg, history.Run{
		Command:   "run",
		Target:    fmt.Sprintf("%d hosts", len(hosts)),
		Summary:   fmt.Sprintf("%q: %d ok, %d failed", command, result.Succeeded, result.Failed),
		OK:        result.Failed == 0,
		Details:   result,
		StartedAt: result.StartedAt,
	})

	if err := common.render(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d hosts failed", result.Failed, len(hosts))
	}
	return nil
}

// adHocHosts parses user@addr:port host specs given on the command line.
func adHocHosts(specs []string) ([]config.Host, error) {
	hosts := make([]config.Host, 0, len(specs))
	for _, spec := range specs {
		h := config.Host{Name: spec, Port: config.DefaultSSHPort}

		rest := spec
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			h.User = rest[:at]
			rest = rest[at+1:]
		}
		if colon := strings.LastIndex(rest, ":"); colon >= 0 {
			port := 0
			if _, err := fmt.Sscanf(rest[colon+1:], "%d", &port); err != nil || port < 1 || port > 65535 {
				return nil, fmt.Errorf("bad host spec %q", spec)
			}
			h.Port = port
			rest = rest[:colon]
		}
		if rest == "" {
			return nil, fmt.Errorf("bad host spec %q", spec)
		}
		h.Address = rest
		h.Name = rest
		hosts = append(hosts, h)
	}
	return hosts, nil
}
