// Command synapsevm is the embedding CLI entry point: state_new,
// state_do_file, state_run_cli, and friends, wired the way
// cmd/server/main.go composes its subsystems before calling a single
// blocking Start.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/synapticgarden/vm/internal/bridge"
	"github.com/synapticgarden/vm/internal/config"
	"github.com/synapticgarden/vm/internal/vmstate"
)

func main() {
	doFile := flag.String("f", "", "path to a source file to run instead of the REPL")
	flag.Parse()

	cfg := config.Get()
	slog.Info("synapsevm: starting", "logging_level", cfg.Logging.Level)

	// 1. Initialize the VM core: heap, symbols, evaluator, Lobby.
	state := vmstate.New(cfg.VM)
	state.ExitCallback = func(code int) {
		slog.Info("synapsevm: exiting", "code", code)
		os.Exit(code)
	}

	// 2. Initialize the Synaptic Bridge and register its worker
	// proxies. A real deployment would read proxy definitions (name,
	// image) from config; this entry point registers the one stock
	// "fs" proxy the example worker image implements.
	b := bridge.New(cfg.Bridge)
	b.RegisterProxy("fs", "synapsevm/fs-worker:latest")
	if err := b.Start(cfg.Bridge.WorkerPool.WorkerCount); err != nil {
		slog.Error("synapsevm: bridge failed to start", "error", err)
		os.Exit(1)
	}
	defer b.Stop()

	// 3. Start the admin HTTP server (health, bridge status, metrics)
	// in the background; it never blocks the VM thread.
	admin := NewAdminServer(
		b,
		cfg.Server.Interface+":"+cfg.Server.Port,
		time.Duration(cfg.Server.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.Server.WriteTimeoutSec)*time.Second,
	)
	go func() {
		if err := admin.Start(); err != nil {
			slog.Error("synapsevm: admin server failed", "error", err)
		}
	}()

	// 4. Run the requested workload: a single file, or the REPL.
	if *doFile != "" {
		if _, err := state.DoFile(*doFile); err != nil {
			fmt.Fprintf(os.Stderr, "synapsevm: %v\n", err)
			state.Exit(1)
			return
		}
		state.Exit(0)
		return
	}

	state.RunCLI(os.Stdin, os.Stdout)
	state.Exit(state.ExitResult())
}
