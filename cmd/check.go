package cmd

import (
	"flag"
	"fmt"

	"opshub.dev/opshub/internal/brand"
	"opshub.dev/opshub/internal/config"
)

// RunCheck validates the configuration file.
func RunCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	path := common.configFile
	if path == "" {
		if fs.NArg() == 1 {
			path = fs.Arg(0)
		} else {
			path = brand.DefaultConfigPath()
		}
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Printf("%s: configuration valid\n", path)
	fmt.Printf("  hosts:     %d\n", len(cfg.Hosts))
	fmt.Printf("  backups:   %d\n", len(cfg.Backups))
	fmt.Printf("  rotations: %d\n", len(cfg.Rotations))
	fmt.Printf("  feeds:     %d\n", len(cfg.Feeds))
	fmt.Printf("  monitors:  %d\n", len(cfg.Monitors))

	if common.verbose {
		fmt.Println()
		for _, h := range cfg.Hosts {
			fmt.Printf("  host %-20s %s:%d tags=%v\n", h.Name, h.Address, h.Port, h.Tags)
		}
		for _, b := range cfg.Backups {
			fmt.Printf("  backup %-18s %v -> %s keep=%d schedule=%q\n", b.Name, b.Sources, b.Dest, b.Keep, b.Schedule)
		}
	}
	return nil
}
