package main

import (
	"context"
	"fmt"
	"github.com/notargets/gocbs/cbs"
	"github.com/notargets/gocbs/config"
	"github.com/notargets/gocbs/gmsh"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/simulator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"os"
	"os/signal"
	"syscall"
)

var (
	logLevel      string
	partitionSize int
	workers       int

	logger *zap.Logger
)

func loggerConfig(paths ...string) (zap.Config, error) {
	cfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return cfg, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if len(paths) > 0 {
		cfg.OutputPaths = append([]string{"stderr"}, paths...)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "gocbs",
	Short: "Characteristic-Based Split solver for incompressible flow",
	Long: `gocbs runs finite element simulations of incompressible flow on
triangular Gmsh meshes with the semi-implicit Characteristic-Based Split
scheme. A case directory holds simulation.toml, conditions.toml and the mesh.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loggerConfig()
		if err != nil {
			return err
		}
		if logger, err = cfg.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <case-dir>",
	Short: "Run a simulation case",
	Long: `Validates the case files, then iterates the model until convergence,
a linear solver failure or the step limit. Results, the run log and
summary.yaml are written under <case-dir>/cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runCase,
}

var checkCmd = &cobra.Command{
	Use:   "check <case-dir>",
	Short: "Validate the input files and the mesh of a case without running it",
	Long: `Loads simulation.toml and conditions.toml, then reads the mesh. Nothing
is written to the case directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadCase(args[0])
		if err != nil {
			return err
		}
		imp, err := gmsh.ReadFile(c.MeshFile(), logger)
		if err != nil {
			return err
		}
		m, err := mesh.New(imp, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: ok, %d nodes, %d elements, groups %v\n",
			c.Simulation.General.Title, c.Simulation.General.Alias,
			m.Nodes.Len(), m.TotalElements(), m.GroupNames())
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the available models",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range cbs.ModelNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func runCase(cmd *cobra.Command, args []string) error {
	c, err := config.OpenCase(args[0])
	if err != nil {
		return err
	}
	cfg, err := loggerConfig(c.LogFile())
	if err != nil {
		return err
	}
	caseLogger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to open case log: %w", err)
	}
	_ = logger.Sync()
	logger = caseLogger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, err := simulator.New(c, simulator.Options{
		PartitionSize: partitionSize,
		Workers:       workers,
	}, logger)
	if err != nil {
		logger.Error("simulator setup failed", zap.Error(err))
		return err
	}
	defer sim.Close()

	summary, err := sim.Run(ctx)
	if err != nil {
		logger.Error("simulation aborted", zap.Error(err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps, converged=%t\n%s\n",
		summary.Alias, summary.Steps, summary.Converged, summary.Status)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().IntVar(&partitionSize, "partition-size", 0, "elements per assembly partition (0 for the default)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "concurrent assembly workers (0 for GOMAXPROCS)")
	rootCmd.AddCommand(runCmd, checkCmd, modelsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
