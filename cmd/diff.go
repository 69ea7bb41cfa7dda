package cmd

import (
	"flag"
	"fmt"

	"opshub.dev/opshub/internal/config"
)

// RunDiff shows a unified diff between two configuration files.
func RunDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	if fs.NArg() != 2 {
		return usageError(fs, "diff: two configuration files required")
	}

	text, err := config.DiffFiles(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("configurations are identical")
		return nil
	}
	fmt.Print(text)
	return nil
}
