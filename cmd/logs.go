package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/logging"
)

// RunLogs fetches recent log entries from a running serve daemon.
func RunLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	limit := fs.Int("n", 50, "entries to show")
	source := fs.String("source", "", "filter by component")
	addr := fs.String("addr", "", "daemon address (default: server listen from config)")
	fs.Parse(args)

	common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	listen := *addr
	if listen == "" {
		listen = cfg.Server.Listen
	}
	if listen == "" {
		listen = config.DefaultListen
	}
	if listen[0] == ':' {
		listen = "127.0.0.1" + listen
	}

	q := url.Values{}
	q.Set("n", strconv.Itoa(*limit))
	if *source != "" {
		q.Set("source", *source)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + listen + "/logs?" + q.Encode())
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is `serve` running?): %w", listen, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var entries []logging.AppLogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("decode log entries: %w", err)
	}

	for _, e := range entries {
		fmt.Printf("%s [%-5s] %-10s %s\n",
			e.Timestamp.Format("15:04:05"), e.Level, e.Source, e.Message)
	}
	return nil
}
