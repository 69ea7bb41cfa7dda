package cmd

import (
	"context"
	"flag"
	"fmt"

	"opshub.dev/opshub/internal/dockermon"
	"opshub.dev/opshub/internal/history"
)

// RunDocker summarizes the state and health of local containers.
func RunDocker(args []string) error {
	fs := flag.NewFlagSet("docker", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	host := fs.String("H", "", "docker daemon address (default: environment / local socket)")
	stats := fs.Bool("stats", false, "include a one-shot CPU/memory snapshot per running container")
	fs.Parse(args)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	watcher, err := dockermon.New(logger, *host)
	if err != nil {
		return err
	}

	check := watcher.Check
	if *stats {
		check = watcher.CheckStats
	}
	summary, err := check(context.Background())
	if err != nil {
		return err
	}

	recordRun(logger, cfg, history.Run{
		Command: "docker",
		Summary: fmt.Sprintf("%d containers, %d running, %d unhealthy", len(summary.Containers), summary.Running, summary.Unhealthy),
		OK:      summary.Unhealthy == 0,
		Details: summary,
	})

	if err := common.render(summary); err != nil {
		return err
	}
	if summary.Unhealthy > 0 {
		return fmt.Errorf("%d container(s) unhealthy", summary.Unhealthy)
	}
	return nil
}
