package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/lakehouse-tools/livygo/internal/auth"
	"github.com/lakehouse-tools/livygo/internal/config"
	"github.com/lakehouse-tools/livygo/internal/livy"
	"github.com/lakehouse-tools/livygo/internal/shortcut"
)

func main() {
	cfgPath := flag.String("config", "", "path to livygo.yaml")
	sql := flag.String("sql", "", "SQL statement to execute against the lakehouse")
	keepAlive := flag.Bool("keep-alive", false, "leave the remote session running on exit")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *cfgPath, *sql, *keepAlive); err != nil {
		logger.Error("livyctl failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfgPath, sql string, keepAlive bool) error {
	if sql == "" {
		return fmt.Errorf("no statement given, use -sql")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(logger); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	logger.Debug("configuration loaded", "config", cfg)

	fetcher, err := auth.FetcherFor(cfg)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	tokens := auth.NewCache(fetcher, logger)

	mgr := livy.NewManager(cfg, tokens, logger)
	if cfg.CreateShortcuts {
		mgr.SetShortcutProvisioner(
			shortcut.New(tokens, cfg.WorkspaceID, cfg.LakehouseID, "", logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel in-flight work on the first signal; a second one kills us.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		logger.Info("interrupted, cancelling")
		cancel()
	}()

	conn, err := mgr.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	logger.Info("session ready", "session_id", conn.SessionID())

	if !keepAlive {
		defer mgr.Disconnect(context.Background())
	}

	cur := conn.Cursor()
	if err := cur.Execute(ctx, sql); err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	return printResult(os.Stdout, cur)
}

func printResult(out *os.File, cur *livy.Cursor) error {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)

	desc := cur.Description()
	for i, col := range desc {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col.Name)
	}
	fmt.Fprintln(w)

	rows := cur.FetchAll()
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprintf(w, "%v", v)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "(%d rows)\n", len(rows))
	return nil
}
