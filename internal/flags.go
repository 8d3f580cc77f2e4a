// Package internal holds the process configuration shared by all commands.
//
// Every setting is a command line flag whose default can be overridden by an
// environment variable, so the same binary runs from a shell or a container.
package internal

import (
	"os"
	"time"

	"statesync/internal/pkg/validate"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Process settings, populated by RegisterCommandFlags and the command line.
var (
	Env      = "development"
	LogLevel = "info"

	Port     = 7400
	HTTPPort = 0

	ServerAddress  = ""
	ClientName     = ""
	FlushInterval  = 33 * time.Millisecond
	DrainInterval  = 16 * time.Millisecond
	UpdateInterval = 33 * time.Millisecond
	CloseTimeout   = 2 * time.Second
	ReportInterval = 5 * time.Second

	SnapshotURL      = ""
	SnapshotInterval = 5 * time.Second
	SeedFile         = ""
	ShutdownTimeout  = 5 * time.Second
)

// Flag binds a setting to a command line flag and an environment variable.
type Flag struct {
	Name  string
	Env   string
	Usage string
	bind  func(fs *pflag.FlagSet, name, usage string)
}

func stringFlag(p *string, name, env, usage string) Flag {
	return Flag{name, env, usage, func(fs *pflag.FlagSet, name, usage string) {
		fs.StringVar(p, name, *p, usage)
	}}
}

func intFlag(p *int, name, env, usage string) Flag {
	return Flag{name, env, usage, func(fs *pflag.FlagSet, name, usage string) {
		fs.IntVar(p, name, *p, usage)
	}}
}

func durationFlag(p *time.Duration, name, env, usage string) Flag {
	return Flag{name, env, usage, func(fs *pflag.FlagSet, name, usage string) {
		fs.DurationVar(p, name, *p, usage)
	}}
}

// Flag definitions.
var (
	EnvFlag      = stringFlag(&Env, "env", "ENV", "deployment environment (development, production)")
	LogLevelFlag = stringFlag(&LogLevel, "log-level", "LOG_LEVEL", "log level (trace, debug, info, warn, error)")

	PortFlag     = intFlag(&Port, "port", "PORT", "gRPC port of the state server")
	HTTPPortFlag = intFlag(&HTTPPort, "http-port", "HTTP_PORT", "port of the HTTP inspection surface, 0 disables it")

	ServerAddressFlag  = stringFlag(&ServerAddress, "server-address", "SERVER_ADDRESS", "address of the state server, defaults to localhost:<port>")
	ClientNameFlag     = stringFlag(&ClientName, "name", "CLIENT_NAME", "name published in the client's presence record")
	FlushIntervalFlag  = durationFlag(&FlushInterval, "flush-interval", "FLUSH_INTERVAL", "period between two flushes of local writes")
	DrainIntervalFlag  = durationFlag(&DrainInterval, "drain-interval", "DRAIN_INTERVAL", "period between two applications of incoming updates")
	UpdateIntervalFlag = durationFlag(&UpdateInterval, "update-interval", "UPDATE_INTERVAL", "minimum period between two updates from the server")
	CloseTimeoutFlag   = durationFlag(&CloseTimeout, "close-timeout", "CLOSE_TIMEOUT", "time allowed for cleanup on close")
	ReportIntervalFlag = durationFlag(&ReportInterval, "report-interval", "REPORT_INTERVAL", "period between two state reports of the client")

	SnapshotURLFlag      = stringFlag(&SnapshotURL, "snapshot-url", "SNAPSHOT_URL", "snapshot backend (sqlite://, postgres://, redis://), empty disables snapshots")
	SnapshotIntervalFlag = durationFlag(&SnapshotInterval, "snapshot-interval", "SNAPSHOT_INTERVAL", "period between two snapshots")
	SeedFileFlag         = stringFlag(&SeedFile, "seed", "SEED_FILE", "YAML file preloaded into an empty server")
	ShutdownTimeoutFlag  = durationFlag(&ShutdownTimeout, "shutdown-timeout", "SHUTDOWN_TIMEOUT", "time open streams get to finish on shutdown")
)

// RegisterCommandFlags adds flags to cmd as persistent flags. A set
// environment variable replaces the flag default.
func RegisterCommandFlags(cmd *cobra.Command, flags []*Flag) error {
	fs := cmd.PersistentFlags()
	for _, f := range flags {
		f.bind(fs, f.Name, f.Usage+" [$"+f.Env+"]")
		if v, ok := os.LookupEnv(f.Env); ok {
			if err := fs.Lookup(f.Name).Value.Set(v); err != nil {
				return errors.Wrapf(err, "parse %s failed", f.Env)
			}
		}
	}
	return nil
}

type settings struct {
	Env              string        `validate:"oneof=development production"`
	LogLevel         string        `validate:"oneof=trace debug info warn error"`
	Port             int           `validate:"min=1,max=65535"`
	HTTPPort         int           `validate:"min=0,max=65535"`
	FlushInterval    time.Duration `validate:"gt=0"`
	DrainInterval    time.Duration `validate:"gte=0"`
	UpdateInterval   time.Duration `validate:"gte=0"`
	CloseTimeout     time.Duration `validate:"gt=0"`
	ReportInterval   time.Duration `validate:"gt=0"`
	SnapshotURL      string        `validate:"omitempty,snapshot_url"`
	SnapshotInterval time.Duration `validate:"gt=0"`
	SeedFile         string        `validate:"omitempty,file"`
	ShutdownTimeout  time.Duration `validate:"gt=0"`
}

// ValidateEnv checks the process settings.
func ValidateEnv() error {
	return validate.Validate().Struct(settings{
		Env:              Env,
		LogLevel:         LogLevel,
		Port:             Port,
		HTTPPort:         HTTPPort,
		FlushInterval:    FlushInterval,
		DrainInterval:    DrainInterval,
		UpdateInterval:   UpdateInterval,
		CloseTimeout:     CloseTimeout,
		ReportInterval:   ReportInterval,
		SnapshotURL:      SnapshotURL,
		SnapshotInterval: SnapshotInterval,
		SeedFile:         SeedFile,
		ShutdownTimeout:  ShutdownTimeout,
	})
}
