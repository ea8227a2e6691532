package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/tsurube/tsurube/internal/server"
)

var Version string

func version() string {
	if Version != "" {
		return Version
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(devel)"
	}

	return info.Main.Version
}

type CLI struct {
	stdout     io.Writer
	stderr     io.Writer
	stdin      io.Reader
	isTerminal bool
}

func NewCLI(stdout, stderr io.Writer, stdin io.Reader, isTerminal bool) *CLI {
	return &CLI{
		stdout:     stdout,
		stderr:     stderr,
		stdin:      stdin,
		isTerminal: isTerminal,
	}
}

func (c *CLI) Run(args []string) int {
	opts, err := parseFlags(args[1:])
	if err != nil {
		fmt.Fprintf(c.stderr, "failed to parse flags: %v\n", err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(c.stdout, "tsurube version %s; %s\n", version(), runtime.Version())
		return 0
	}

	// Text logs on a terminal, JSON when the output goes to a collector.
	var handler slog.Handler
	if c.isTerminal {
		handler = slog.NewTextHandler(c.stderr, nil)
	} else {
		handler = slog.NewJSONHandler(c.stderr, nil)
	}
	logger := slog.New(handler)

	srv := server.NewServer(server.Config{
		ListenAddr:  opts.listenAddr,
		BucketCount: opts.bucketCount,
		Version:     version(),
		Verbose:     opts.verbose,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(c.stderr, "server failed: %v\n", err)
		return 1
	}
	return 0
}
