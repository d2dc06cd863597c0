package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"percipio.com/growbench/lib/app"
	"percipio.com/growbench/lib/config"
	"percipio.com/growbench/lib/growth"
	"percipio.com/growbench/lib/logger"
	"percipio.com/growbench/lib/runner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, os.Args[1:]))
}

func execute(ctx context.Context, args []string) int {
	exitCode := 0
	registry := growth.NewRegistry(growth.SliceFactory{})

	cmd := &cobra.Command{
		Use:           "growbench [flags]",
		Short:         "Throughput benchmark of vector initialization strategies",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.Resolve()
		if err != nil {
			return err
		}
		application, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		rep, err := application.Run(cmd.Context())
		if err != nil {
			return err
		}
		if !rep.Succeeded {
			exitCode = 1
		}
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the registered operations in execution order",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    app.ForkCommand,
		Short:  "Run one fork from a request on stdin",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if os.Getenv(runner.ForkEnv) != "1" {
				return fmt.Errorf("%s is started by growbench itself", app.ForkCommand)
			}
			logger.Debug("Fork child started, pid %d", os.Getpid())
			return runner.ServeFork(cmd.Context(), os.Stdin, os.Stdout, registry)
		},
	})

	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}
