package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"opshub.dev/opshub/internal/backup"
	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/report"
)

// RunBackup executes configured backup jobs, or lists, verifies and
// restores archives.
func RunBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	all := fs.Bool("all", false, "run every configured backup job")
	list := fs.Bool("list", false, "list archives of the named job")
	verify := fs.String("verify", "", "verify an archive against its checksum sidecar")
	restore := fs.String("restore", "", "restore an archive")
	to := fs.String("to", "", "restore destination directory")
	fs.Parse(args)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	switch {
	case *verify != "":
		if err := backup.Verify(*verify); err != nil {
			return err
		}
		fmt.Printf("%s: checksum ok\n", filepath.Base(*verify))
		return nil

	case *restore != "":
		if *to == "" {
			return usageError(fs, "backup: -restore requires -to <dir>")
		}
		n, err := backup.NewRunner(logger).Restore(context.Background(), *restore, *to)
		if err != nil {
			return err
		}
		fmt.Printf("restored %d files to %s\n", n, *to)
		return nil

	case *list:
		if fs.NArg() != 1 {
			return usageError(fs, "backup: -list requires a job name")
		}
		job, ok := cfg.FindBackup(fs.Arg(0))
		if !ok {
			return fmt.Errorf("backup job %q not configured", fs.Arg(0))
		}
		archives, err := backup.List(job.Dest, job.Name)
		if err != nil {
			return err
		}
		res := report.Simple{Head: []string{"ARCHIVE"}}
		for _, a := range archives {
			res.Data = append(res.Data, []string{a})
		}
		return common.render(res)
	}

	jobs := cfg.Backups
	if !*all {
		if fs.NArg() != 1 {
			return usageError(fs, "backup: job name required (or -all)")
		}
		job, ok := cfg.FindBackup(fs.Arg(0))
		if !ok {
			return fmt.Errorf("backup job %q not configured", fs.Arg(0))
		}
		jobs = append(jobs[:0:0], job)
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no backup jobs configured")
	}

	runner := backup.NewRunner(logger)
	failed := 0
	for _, job := range jobs {
		result, err := runner.Run(context.Background(), job)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "backup %s: %v\n", job.Name, err)
			recordRun(logger, cfg, history.Run{
				Command: "backup",
				Target:  job.Name,
				Summary: err.Error(),
				OK:      false,
			})
			continue
		}
		recordRun(logger, cfg, history.Run{
			Command:   "backup",
			Target:    job.Name,
			Summary:   fmt.Sprintf("%s (%d files, %d skipped)", filepath.Base(result.Archive), result.Files, len(result.Skipped)),
			OK:        true,
			Details:   result,
			StartedAt: result.StartedAt,
		})
		if err := common.render(result); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d backup job(s) failed", failed)
	}
	return nil
}
