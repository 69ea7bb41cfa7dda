package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/netmon"
)

// RunPing sends a burst of echoes to a target and reports statistics.
func RunPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	count := fs.Int("n", 5, "echoes to send")
	timeout := fs.Duration("timeout", 10*time.Second, "overall deadline")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return usageError(fs, "ping: exactly one target required")
	}
	target := fs.Arg(0)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	result, err := netmon.Ping(context.Background(), target, *count, *timeout)
	if err != nil {
		return err
	}

	recordRun(logger, cfg, history.Run{
		Command: "ping",
		Target:  target,
		Summary: fmt.Sprintf("%d/%d received, avg %s", result.Received, result.Sent, result.Avg),
		OK:      result.Received > 0,
		Details: result,
	})

	if err := common.render(result); err != nil {
		return err
	}
	if result.Received == 0 {
		return fmt.Errorf("%s: no replies", target)
	}
	return nil
}
