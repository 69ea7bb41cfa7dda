package main

import (
	"fmt"
	"os"

	"opshub.dev/opshub/cmd"
	"opshub.dev/opshub/internal/brand"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error

	switch os.Args[1] {
	case "scan":
		err = cmd.RunScan(args)
	case "dns":
		err = cmd.RunDNS(args)
	case "blacklist":
		err = cmd.RunBlacklist(args)
	case "firewall":
		err = cmd.RunFirewall(args)
	case "run":
		err = cmd.RunSSH(args)
	case "backup":
		err = cmd.RunBackup(args)
	case "logrotate":
		err = cmd.RunLogrotate(args)
	case "bandwidth":
		err = cmd.RunBandwidth(args)
	case "ping":
		err = cmd.RunPing(args)
	case "docker":
		err = cmd.RunDocker(args)
	case "users":
		err = cmd.RunUsers(args)
	case "serve":
		err = cmd.RunServe(args)
	case "check":
		err = cmd.RunCheck(args)
	case "diff":
		err = cmd.RunDiff(args)
	case "history":
		err = cmd.RunHistory(args)
	case "logs":
		err = cmd.RunLogs(args)
	case "version", "-version", "--version":
		cmd.RunVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n\n", brand.BinaryName, os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", brand.BinaryName, os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage: %s <command> [flags]

Network:
  scan        probe hosts for open TCP ports
  dns         measure resolver latency for a domain
  blacklist   check an IP against DNSBL zones
  ping        echo a target and report RTT statistics
  bandwidth   sample interface throughput
  firewall    report nftables ruleset, manage blocklist sets

Hosts:
  run         run a command across the inventory over SSH
  backup      archive directories with retention and checksums
  logrotate   rotate and compress log files
  docker      summarize container state and health
  users       list accounts, audit account policy

Daemon:
  serve       run scheduled jobs, monitors and the metrics endpoint
  logs        fetch recent log entries from a running daemon

Other:
  check       validate the configuration file
  diff        diff two configuration files
  history     list recorded runs and scan findings
  version     print build information

Global flags (per command): -c <config> -o table|json|csv -v
`, brand.BinaryName, brand.Description, brand.BinaryName)
}
