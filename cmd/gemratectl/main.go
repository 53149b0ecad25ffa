// gemratectl queries a gemrated server.
//
// With arguments it runs one command and exits:
//
//	gemratectl -addr http://rates:8080 summary gold_to_gem
//
// Without arguments it starts an interactive prompt, or reads commands
// from stdin when stdin is not a terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/xtxerr/gemrate/config"
	"github.com/xtxerr/gemrate/internal/client"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/shell"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	addr := flag.String("addr", envOr("GEMRATE_ADDR", config.DefaultServerURL), "server URL (or GEMRATE_ADDR env)")
	timeout := flag.Duration("timeout", config.DefaultRequestTimeout, "request timeout")
	debug := flag.Bool("debug", false, "log requests to stderr")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("gemratectl", Version)
		return
	}

	level, _ := logging.ParseLevel("warn")
	if *debug {
		level, _ = logging.ParseLevel("debug")
	}
	logging.Init(level, false)

	c, err := client.New(&client.Config{
		BaseURL:          *addr,
		RequestTimeout:   *timeout,
		HandshakeTimeout: config.DefaultHandshakeTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "gemratectl: %v\n", err)
		os.Exit(2)
	}
	defer c.Close()

	sh := shell.New(c, os.Stdout,
		shell.WithErrorOutput(os.Stderr),
		shell.WithTerminal(os.Stdout))

	var runErr error
	switch {
	case flag.NArg() > 0:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		runErr = sh.Execute(ctx, strings.Join(flag.Args(), " "))
		stop()
		if runErr == shell.ErrExit {
			runErr = nil
		}

	case !shell.IsTerminal(os.Stdin):
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		runErr = sh.RunScript(ctx, os.Stdin)
		stop()
		if runErr != nil {
			// Already reported per line.
			os.Exit(1)
		}

	default:
		runErr = sh.Run(context.Background())
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "gemratectl: %v\n", runErr)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
