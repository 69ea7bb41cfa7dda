// Package cmd holds the entry points for every subcommand. Each
// command parses its own flag.FlagSet, loads what it needs from the
// configuration, runs the matching internal package and renders the
// result through internal/report.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"opshub.dev/opshub/internal/brand"
	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configFile string
	output     string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "configuration file (default "+brand.DefaultConfigPath()+")")
	fs.StringVar(&c.configFile, "c", "", "configuration file (short)")
	fs.StringVar(&c.output, "o", "table", "output format: table, json or csv")
	fs.BoolVar(&c.verbose, "v", false, "verbose (debug) logging")
}

// logger builds the command logger honoring -v.
func (c *commonFlags) logger() *logging.Logger {
	cfg := logging.DefaultConfig()
	if c.verbose {
		cfg.Level = logging.LevelDebug
	}
	l := logging.New(cfg)
	logging.SetDefault(l)
	return l
}

// format parses the -o flag.
func (c *commonFlags) format() (report.Format, error) {
	return report.ParseFormat(c.output)
}

// loadConfig loads the configuration file. A missing default file is
// not an error; commands then run on built-in defaults. An explicitly
// named file must exist.
func (c *commonFlags) loadConfig() (*config.Config, error) {
	path := c.configFile
	explicit := path != ""
	if !explicit {
		path = brand.DefaultConfigPath()
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg = &config.Config{}
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// render writes res to stdout in the requested format.
func (c *commonFlags) render(res report.Result) error {
	format, err := c.format()
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, format, res)
}

// historyPath resolves the result history database location.
func historyPath(cfg *config.Config) string {
	if cfg != nil && cfg.Server != nil && cfg.Server.HistoryDB != "" {
		return cfg.Server.HistoryDB
	}
	return brand.DefaultHistoryPath()
}

// recordRun appends a run record to the history database. History is
// best effort: a failure is logged, never fatal for the command.
func recordRun(logger *logging.Logger, cfg *config.Config, run history.Run) {
	store, err := history.Open(logger, historyPath(cfg))
	if err != nil {
		logger.Debug("history unavailable", "error", err)
		return
	}
	defer store.Close()

	if run.StartedAt.IsZero() {
		run.StartedAt = clock.Now()
	}
	if _, err := store.RecordRun(context.Background(), run); err != nil {
		logger.Debug("history record failed", "error", err)
	}
}

// splitComma splits a comma-separated flag value, dropping empties.
func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// usageError prints the flag set usage and wraps the message.
func usageError(fs *flag.FlagSet, format string, args ...any) error {
	fs.Usage()
	return fmt.Errorf(format, args...)
}
