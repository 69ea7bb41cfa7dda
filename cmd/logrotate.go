package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/logrotate"
)

// RunLogrotate applies configured rotation policies.
func RunLogrotate(args []string) error {
	fs := flag.NewFlagSet("logrotate", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	all := fs.Bool("all", false, "apply every configured rotation policy")
	fs.Parse(args)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	rotations := cfg.Rotations
	if !*all {
		if fs.NArg() != 1 {
			return usageError(fs, "logrotate: policy name required (or -all)")
		}
		rot, ok := cfg.FindRotation(fs.Arg(0))
		if !ok {
			return fmt.Errorf("rotation policy %q not configured", fs.Arg(0))
		}
		rotations = append(rotations[:0:0], rot)
	}
	if len(rotations) == 0 {
		return fmt.Errorf("no rotation policies configured")
	}

	rotator := logrotate.New(logger)
	failed := 0
	for _, rot := range rotations {
		policy, err := logrotate.FromConfig(rot)
		if err != nil {
			return err
		}
		result, err := rotator.Run(context.Background(), policy)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "rotate %s: %v\n", rot.Name, err)
			continue
		}
		recordRun(logger, cfg, history.Run{
			Command: "logrotate",
			Target:  rot.Name,
			Summary: fmt.Sprintf("%d of %d files rotated", result.Rotated, len(result.Files)),
			OK:      true,
			Details: result,
		})
		if err := common.render(result); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d rotation(s) failed", failed)
	}
	return nil
}
