// Command fuelctl is the operator CLI for a fuel kiosk. It talks to the
// kiosk's reporting interface over HTTP.
//
//	fuelctl status [--url URL]
//	fuelctl export [--url URL] [--out FILE]
//	fuelctl watch  [--url URL] [--interval D]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
)

// envURL overrides the default kiosk address.
const envURL = "FUEL_KIOSK_URL"

const defaultURL = "http://localhost"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		return runStatus(rest, stdout, stderr)
	case "export":
		return runExport(rest, stdout, stderr)
	case "watch":
		return runWatch(rest, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	}
	printUsage(stderr)
	return fmt.Errorf("unknown command %q", cmd)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `fuelctl: operator CLI for the fuel kiosk.

Usage:
  fuelctl status [--url URL] [-n N]    print the status feed once
  fuelctl export [--url URL] [--out F] download the session log as CSV
  fuelctl watch  [--url URL]           live view, refreshed on an interval

The kiosk address defaults to $`+envURL+` or `+defaultURL+`.
`)
}

// commonFlags declares the flags every subcommand takes.
func commonFlags(name string, stderr io.Writer) (*pflag.FlagSet, *string, *time.Duration) {
	fs := pflag.NewFlagSet("fuelctl "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	def := os.Getenv(envURL)
	if def == "" {
		def = defaultURL
	}
	url := fs.String("url", def, "kiosk reporting interface base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	return fs, url, timeout
}

func runStatus(args []string, stdout, stderr io.Writer) error {
	fs, url, timeout := commonFlags("status", stderr)
	n := fs.IntP("sessions", "n", 0, "number of recent sessions (0 = kiosk default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := newClient(*url, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	feed, err := c.Feed(ctx, *n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, renderFeed(feed))
	return err
}

func runExport(args []string, stdout, stderr io.Writer) error {
	fs, url, timeout := commonFlags("export", stderr)
	out := fs.StringP("out", "o", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := newClient(*url, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *out == "" {
		return c.ExportCSV(ctx, stdout)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	if err := c.ExportCSV(ctx, f); err != nil {
		f.Close()
		os.Remove(*out)
		return err
	}
	return f.Close()
}

func runWatch(args []string, stderr io.Writer) error {
	fs, url, timeout := commonFlags("watch", stderr)
	interval := fs.Duration("interval", time.Second, "refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %s", *interval)
	}

	model := newWatchModel(newClient(*url, *timeout), *interval)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
