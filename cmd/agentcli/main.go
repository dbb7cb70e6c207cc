package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChamsBouzaiene/agentcli/internal/config"
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// errInterrupted is returned once an interrupted session has shut down.
var errInterrupted = errors.New("interrupted")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// .env first so key fallbacks see it.
	_ = config.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err, debugEnabled())
		return 1
	}
	return 0
}

func debugEnabled() bool {
	if flags.debug {
		return true
	}
	return config.Default().DebugEnabled()
}

// reportError prints err with a hint for its kind.
func reportError(w io.Writer, err error, debug bool) {
	if errors.Is(err, errInterrupted) {
		fmt.Fprintln(w, "⚠️  interrupted, session saved")
		return
	}
	fmt.Fprintf(w, "❌ %v\n", err)
	kind := engine.KindOf(err)
	if kind != "" {
		fmt.Fprintf(w, "💡 %s\n", engine.Hint(kind))
	}
	if debug {
		var e *engine.Error
		if errors.As(err, &e) {
			fmt.Fprintf(w, "   kind=%s op=%s provider=%s status=%d\n", e.Kind, e.Op, e.Provider, e.HTTPStatus)
			if e.Err != nil {
				fmt.Fprintf(w, "   cause: %v\n", e.Err)
			}
		}
	}
}
