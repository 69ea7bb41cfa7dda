package cmd

import (
	"context"
	"flag"
	"time"

	"opshub.dev/opshub/internal/bandwidth"
)

// RunBandwidth samples interface throughput over one interval.
func RunBandwidth(args []string) error {
	fs := flag.NewFlagSet("bandwidth", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	interval := fs.Duration("i", 2*time.Second, "sampling interval")
	ifaces := fs.String("iface", "", "comma-separated interfaces (default: all non-loopback)")
	fs.Parse(args)

	common.logger()

	fetcher, err := bandwidth.NewFetcher()
	if err != nil {
		return err
	}

	result, err := bandwidth.Sample(context.Background(), fetcher, *interval, splitComma(*ifaces))
	if err != nil {
		return err
	}
	return common.render(result)
}
