// Package main is the statesync application entrypoint.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"statesync/internal"
	"statesync/internal/app/apps"
	"statesync/internal/app/cfg"
	"statesync/internal/pkg/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI command definitions.
var (
	logger logrus.FieldLogger = logrus.StandardLogger()

	rootCmd = &cobra.Command{
		Use:          "statesync",
		Short:        "Shares a key/value state between clients.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	clientCmd = &cobra.Command{
		Use:   "client [key=value ...]",
		Short: "Joins the shared state, publishes the given entries and reports what it sees.",
		Args: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if !strings.Contains(arg, "=") {
					return errors.Errorf("argument %q is not key=value", arg)
				}
			}
			return nil
		},
		RunE: runCmd,
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Starts a state server.",
		Args:  cobra.NoArgs,
		RunE:  runCmd,
	}
)

func newApp(_ context.Context, cmd *cobra.Command, args []string) (apps.App, []string, error) {
	switch cmd.Name() {
	case "client":
		app, err := apps.NewClientApp(
			cfg.AddressFromEnv(),
			cfg.PortFromEnv(),
			cfg.SessionFromEnv(),
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new client app failed")
		}
		return app, args, nil
	case "server":
		app, err := apps.NewServerApp(
			cfg.PortFromEnv(),
			cfg.HTTPPortFromEnv(),
			cfg.SnapshotFromEnv(),
			cfg.ShutdownFromEnv(),
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new server app failed")
		}
		return app, args, nil
	default:
		return nil, nil, fmt.Errorf("unknown command: %s", cmd.Name())
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := chainedCheck(
		ctx,
		envCheck,
	); err != nil {
		return errors.Wrap(err, "chained check failed")
	}
	app, args, err := newApp(ctx, cmd, args)
	if err != nil {
		return errors.Wrapf(err, "new %s app failed", cmd.Name())
	}
	return errors.Wrap(app.Run(ctx, args), "run app failed")
}

func envCheck(_ context.Context) error {
	err := internal.ValidateEnv()
	if err != nil {
		return errors.Wrap(err, "validate env failed")
	}
	log.SetLogger(internal.LogLevel)
	return nil
}

func chainedCheck(ctx context.Context, checks ...func(context.Context) error) error {
	for _, check := range checks {
		err := check(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	err := internal.RegisterCommandFlags(rootCmd, []*internal.Flag{
		&internal.EnvFlag,
		&internal.LogLevelFlag,

		&internal.PortFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(clientCmd, []*internal.Flag{
		&internal.ServerAddressFlag,
		&internal.ClientNameFlag,
		&internal.FlushIntervalFlag,
		&internal.DrainIntervalFlag,
		&internal.UpdateIntervalFlag,
		&internal.CloseTimeoutFlag,
		&internal.ReportIntervalFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(serverCmd, []*internal.Flag{
		&internal.HTTPPortFlag,
		&internal.SnapshotURLFlag,
		&internal.SnapshotIntervalFlag,
		&internal.SeedFileFlag,
		&internal.ShutdownTimeoutFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	rootCmd.AddCommand(
		clientCmd,
		serverCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(errors.Wrap(err, "execute root command failed"))
	}
}
