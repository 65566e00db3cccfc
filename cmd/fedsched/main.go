package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hrygo/fedsched/internal/childrun"
	"github.com/hrygo/fedsched/internal/config"
	"github.com/hrygo/fedsched/internal/engine"
	"github.com/hrygo/fedsched/internal/plan"
	"github.com/hrygo/fedsched/internal/supervisor"
	"github.com/hrygo/fedsched/internal/version"

	// registers the built-in "shell" task type so plan files can name it
	// without any further wiring.
	_ "github.com/hrygo/fedsched/internal/tasks/shelltask"
)

var rootCmd = &cobra.Command{
	Use:   "fedsched",
	Short: "A resource-aware local scheduler for heavyweight compute tasks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only load .env for direct binary execution (not when running as a
		// systemd service, which sets its own environment).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config [path]",
	Short: "Write the default config.yaml to path (or ./config.yaml)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.GenerateConfig(path); err != nil {
			return err
		}
		if path == "" {
			path = "config.yaml"
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Run a declarative plan of groups and tasks to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(args[0], runConfigPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print fedsched's version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.StringFull())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to a config.yaml override file")
	rootCmd.AddCommand(generateConfigCmd, runCmd, versionCmd)
}

func runPlan(planPath, configPath string) error {
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	p, err := plan.Load(planPath)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, logger)
	for _, groupSpec := range p.Groups {
		if cfg.GetBool("task.allow-duplicate-id") {
			groupSpec.AllowDuplicateID = true
		}
		g, dg, err := plan.BuildGroup(groupSpec)
		if err != nil {
			return err
		}
		eng.AddGroupWithDepGraph(g, dg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, terminationSignals...)
	go func() {
		<-c
		logger.Info("fedsched: received termination signal, shutting down")
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		return err
	}
	fmt.Println("All groups finished. Reports written under <workdir>/reports/.")
	return nil
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	// Child mode is intercepted before cobra ever sees argv: the scheduler
	// re-execs this same binary with ChildEntrypoint as argv[1] and the two
	// pipe fds inherited at fd 3 (commands in) and fd 4 (status out).
	if len(os.Args) > 1 && os.Args[1] == supervisor.ChildEntrypoint {
		if err := runChild(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runChild(args []string) error {
	fs := flag.NewFlagSet(supervisor.ChildEntrypoint, flag.ContinueOnError)
	taskID := fs.String("task-id", "", "task id")
	taskType := fs.String("task-type", "", "registered task type")
	workDir := fs.String("workdir", "", "task working directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmdR := os.NewFile(3, "fedsched-cmd")
	msgW := os.NewFile(4, "fedsched-msg")
	if cmdR == nil || msgW == nil {
		return fmt.Errorf("fedsched: child mode requires inherited fds 3 and 4")
	}

	return childrun.Run(*taskID, *taskType, *workDir, cmdR, msgW)
}
