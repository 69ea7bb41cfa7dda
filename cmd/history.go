package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/report"
)

// RunHistory lists recorded runs, shows scan findings, or prunes.
func RunHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	limit := fs.Int("n", 20, "runs to show")
	command := fs.String("command", "", "filter by subcommand")
	host := fs.String("host", "", "show scan findings for one host instead of runs")
	prune := fs.Duration("prune", 0, "delete records older than this, e.g. 720h")
	fs.Parse(args)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(logger, historyPath(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if *prune > 0 {
		n, err := store.Prune(ctx, *prune)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d run(s) older than %s\n", n, *prune)
		return nil
	}

	if *host != "" {
		findings, err := store.FindingsForHost(ctx, *host)
		if err != nil {
			return err
		}
		res := report.Simple{Head: []string{"HOST", "PORT", "SERVICE", "FIRST SEEN", "LAST SEEN"}}
		for _, f := range findings {
			res.Data = append(res.Data, []string{
				f.Host,
				fmt.Sprintf("%d", f.Port),
				f.Service,
				f.FirstSeen.Format(time.RFC3339),
				f.LastSeen.Format(time.RFC3339),
			})
		}
		return common.render(res)
	}

	runs, err := store.RecentRuns(ctx, *command, *limit)
	if err != nil {
		return err
	}
	return common.render(runs)
}

// retentionFromConfig resolves the serve-mode prune window.
func retentionFromConfig(cfg *config.Config) time.Duration {
	if cfg.Server == nil || cfg.Server.HistoryRetention == "" {
		return config.DefaultHistoryRetention
	}
	d, err := config.ParseDurationField(cfg.Server.HistoryRetention, config.DefaultHistoryRetention)
	if err != nil {
		return config.DefaultHistoryRetention
	}
	return d
}
