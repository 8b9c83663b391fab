// Command shortages loads the drug registry and shortage extracts into
// PostgreSQL, verifies the load, and serves dashboard queries.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/JonMunkholm/shortages/internal/core/tables" // Register all tables
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// exitCodeError carries a process exit code out of a command. The command
// has already reported the problem.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return "exit status " + strconv.Itoa(e.code)
}
