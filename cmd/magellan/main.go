// Command magellan is the CLI shell around the core indexing engine
// (out of core scope per spec.md §1: "command-line argument parsing,
// signal handling... are treated as external collaborators"). It owns
// flag parsing, signal-driven graceful shutdown, and envelope
// rendering; all indexing logic lives in internal/engine.
//
// Grounded on standardbeagle-lci's cmd/lci/main.go: a urfave/cli/v2 App
// with global flags plus subcommands, and a context.WithCancel wired to
// os/signal for SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/oldnordic/magellan-sub003/internal/config"
	"github.com/oldnordic/magellan-sub003/internal/engine"
	"github.com/oldnordic/magellan-sub003/internal/envelope"
	"github.com/oldnordic/magellan-sub003/internal/graphstore"
	"github.com/oldnordic/magellan-sub003/internal/magerr"
)

// version is the tool_version recorded in execution_log rows (spec.md
// §4.6). This module ships no release process of its own, so it is a
// fixed build constant rather than something injected by -ldflags.
const version = "0.1.0"

func startedAt() int64 {
	return time.Now().UnixMilli()
}

func main() {
	app := &cli.App{
		Name:  "magellan",
		Usage: "local-first syntactic fact indexer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Usage:    "path to the graph store file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "project root directory to index",
				Value: ".",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "include only files matching glob patterns",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "exclude files matching glob patterns",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "graph store backend: native or sqlite",
				Value: "native",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "envelope rendering: compact or pretty",
				Value: "compact",
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "run a one-shot baseline index and exit",
		Action: func(c *cli.Context) error {
			return runOnce(c, func(ctx context.Context, e *engine.Engine) (engine.Stats, error) {
				return e.Scan(ctx)
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "run a baseline index, then watch for changes until signaled",
		Action: func(c *cli.Context) error {
			return runOnce(c, func(ctx context.Context, e *engine.Engine) (engine.Stats, error) {
				return e.Watch(ctx)
			})
		},
	}
}

func runOnce(c *cli.Context, run func(context.Context, *engine.Engine) (engine.Stats, error)) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	backend := engine.Backend(c.String("backend"))
	e, err := engine.Open(cfg, backend)
	if err != nil {
		return exitError(err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	started := startedAt()
	stats, runErr := run(ctx, e)
	finished := startedAt()

	outcome := "ok"
	errMsg := ""
	if runErr != nil {
		outcome = "error"
		errMsg = runErr.Error()
	}
	argsJSON, _ := json.Marshal(os.Args[1:])
	logErr := e.Store.AppendExecutionLog(graphstore.ExecutionLogEntry{
		ExecutionID:       e.ExecutionID,
		ToolVersion:       version,
		ArgsJSON:          string(argsJSON),
		Root:              cfg.Project.Root,
		DBPath:            cfg.DBPath,
		StartedAt:         started,
		FinishedAt:        finished,
		DurationMs:        finished - started,
		Outcome:           outcome,
		ErrorMessage:      errMsg,
		FilesIndexed:      stats.FilesReindexed,
		SymbolsIndexed:    stats.FactCounts["symbols"],
		ReferencesIndexed: stats.FactCounts["references"],
	})
	if logErr != nil && runErr == nil {
		runErr = logErr
	}
	if runErr != nil {
		return exitError(runErr)
	}

	env, err := envelope.New(e.ExecutionID, e.Partial(), stats)
	if err != nil {
		return exitError(err)
	}
	format := envelope.Compact
	if c.String("format") == "pretty" {
		format = envelope.Pretty
	}
	out, err := env.Marshal(format)
	if err != nil {
		return exitError(err)
	}
	fmt.Println(string(out))
	return nil
}

func buildConfig(c *cli.Context) (*config.Config, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg := config.Default(root, c.String("db"))
	cfg.Project.Name = filepath.Base(root)
	cfg.Include = c.StringSlice("include")
	cfg.Exclude = c.StringSlice("exclude")
	return cfg, nil
}

// exitError surfaces a magerr.Code, when present, as the visible error
// text so an external wrapper can grep for e.g. "DB_COMPAT:" per
// spec.md §6 ("non-zero on hard failure"); the exit code itself is
// always 1, spec.md not distinguishing failure codes beyond zero/non-zero.
func exitError(err error) error {
	if code, ok := magerr.CodeOf(err); ok {
		return cli.Exit(fmt.Sprintf("%s: %v", code, err), 1)
	}
	return cli.Exit(err.Error(), 1)
}
