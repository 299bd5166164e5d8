// Package main is airdogctl, a command-line tool that talks to one Airdog
// purifier directly over miio, without the bridge or a broker.
//
// Usage:
//
//	airdogctl -ip 192.168.1.40 -token <32 hex> status
//	airdogctl -ip 192.168.1.40 -token <32 hex> set-mode manual 3
//	airdogctl -ip 192.168.1.40 -token <32 hex> shell
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-airdog/internal/miio"
)

// Set at build time via -ldflags.
var version = "dev"

// options holds the parsed command line.
type options struct {
	host    string
	token   string
	delay   time.Duration
	timeout time.Duration
	retries int
	asJSON  bool
	verbose bool
	args    []string
}

var errUsage = errors.New("usage")

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "airdogctl: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "airdogctl: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads flags and the trailing verb. The token may also come
// from AIRDOG_TOKEN so it stays out of shell history.
func parseFlags(argv []string, stderr io.Writer) (options, error) {
	var opts options
	var delayMS int

	fs := flag.NewFlagSet("airdogctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.host, "ip", "", "Purifier address (ip or ip:port)")
	fs.StringVar(&opts.token, "token", os.Getenv("AIRDOG_TOKEN"), "32 character hex device token")
	fs.IntVar(&delayMS, "delay", 1000, "Settle delay after each command in milliseconds")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Round trip timeout")
	fs.IntVar(&opts.retries, "retries", 3, "Resends after a timeout")
	fs.BoolVar(&opts.asJSON, "json", false, "Print results as JSON")
	fs.BoolVar(&opts.verbose, "v", false, "Log protocol traffic to stderr")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "airdogctl %s\n\nUsage: airdogctl [flags] <command> [args]\n\nCommands:\n%s\nFlags:\n", version, usageText)
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv); err != nil {
		return options{}, err
	}

	if opts.host == "" {
		return options{}, fmt.Errorf("%w: -ip is required", errUsage)
	}
	if err := config.ValidateToken(opts.token); err != nil {
		return options{}, fmt.Errorf("%w: -token %v", errUsage, err)
	}
	if delayMS < 0 {
		return options{}, fmt.Errorf("%w: -delay must not be negative", errUsage)
	}
	if fs.NArg() == 0 {
		return options{}, fmt.Errorf("%w: missing command (try \"help\")", errUsage)
	}

	opts.delay = time.Duration(delayMS) * time.Millisecond
	opts.args = fs.Args()
	return opts, nil
}

// run dials the device and executes one verb, or the interactive shell.
func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log := logging.NewWithWriter(config.LoggingConfig{Level: level, Format: "text"}, version, stderr)

	client, err := miio.Dial(ctx, miio.Config{
		Host:    opts.host,
		Token:   opts.token,
		Timeout: opts.timeout,
		Retries: opts.retries,
		Logger:  log.With("device", opts.host),
	})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", opts.host, err)
	}
	defer client.Close()

	sess, err := newSession(client, opts.host, opts.delay, stdout, opts.asJSON)
	if err != nil {
		return err
	}

	if opts.args[0] == "shell" {
		return sess.shell(ctx)
	}
	return sess.exec(ctx, opts.args)
}
