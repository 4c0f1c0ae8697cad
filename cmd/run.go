package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plan-agent/internal/app"
	"plan-agent/internal/config"
	"plan-agent/pkg/events"
	"plan-agent/pkg/logger"
	"plan-agent/pkg/planner"
)

// Exit codes for the run command.
const (
	exitCompleted = 0
	exitFailed    = 1
	exitStopped   = 2
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Plan and execute a query, streaming events to stdout",
	Long: `Plan and execute a single query. The synthesized plan and every
lifecycle event are printed as JSON lines; the final result is printed last.

Exit codes: 0 on completion, 1 on failure, 2 when stopped.

Examples:
  plan-agent run "What time is it?"
  plan-agent run --plan-only "List the files in the current directory"`,
	Args: cobra.ExactArgs(1),
	Run:  runQuery,
}

func init() {
	runCmd.Flags().Bool("plan-only", false, "synthesize and print the plan without executing it")
	runCmd.Flags().Duration("timeout", 10*time.Minute, "overall execution timeout")
	viper.BindPFlag("plan-only", runCmd.Flags().Lookup("plan-only"))
}

func runQuery(cmd *cobra.Command, args []string) {
	query := args[0]

	logFile, _ := cmd.Flags().GetString("log-file")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")
	planOnly, _ := cmd.Flags().GetBool("plan-only")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	// When logging to a file, keep stdout clean for the event stream.
	log, err := logger.CreateLogger(logFile, logLevel, logFormat, logFile == "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(exitFailed)
	}
	defer log.Close()

	engine, err := app.New(config.Load(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(exitFailed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p, err := engine.Planner.Plan(ctx, query)
	if err != nil {
		var perr *planner.PlanError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "Planning failed: %s\n", perr.Message)
			for _, d := range perr.Diagnostics {
				fmt.Fprintf(os.Stderr, "  - %s\n", d)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Planning failed: %v\n", err)
		}
		os.Exit(exitFailed)
	}

	out := json.NewEncoder(os.Stdout)
	if planOnly {
		out.SetIndent("", "  ")
		out.Encode(p)
		shutdown(engine)
		os.Exit(exitCompleted)
	}

	// Ctrl-C turns into a cooperative stop, surfaced as execution_stopped.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	rec := engine.Executions.Launch(p, query)
	sub := rec.Subscribe()
	defer sub.Close()

	go func() {
		<-sig
		fmt.Fprintln(os.Stderr, "Stopping execution...")
		rec.Cancel()
	}()

	code := exitFailed
	for ev := range sub.Events {
		out.Encode(ev)
		switch ev.Type {
		case events.ExecutionCompleted:
			code = exitCompleted
		case events.ExecutionFailed:
			code = exitFailed
		case events.ExecutionStopped:
			code = exitStopped
		}
	}

	shutdown(engine)
	os.Exit(code)
}

// shutdown drains the execution registry with a short deadline.
func shutdown(engine *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	engine.Executions.Shutdown(ctx)
}
