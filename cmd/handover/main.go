package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command tree.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}
	restartFlags := &RestartFlags{}
	statusFlags := &StatusFlags{}
	historyFlags := &HistoryFlags{}
	templateFlags := &TemplateCreateFlags{}
	hashFlags := &HashTokenFlags{}

	handoverCommand := command{}

	root := createRootCommand(globalFlags, serveFlags)

	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createRestartCommand(handoverCommand, restartFlags),
		createStatusCommand(handoverCommand, statusFlags),
		createHistoryCommand(handoverCommand, globalFlags, historyFlags),
		createTemplateCommand(handoverCommand, templateFlags),
		createHashTokenCommand(handoverCommand, hashFlags),
	)

	return root
}

// createRootCommand creates the root command. Bare invocation serves.
func createRootCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "handover",
		Short: "Zero-downtime restart coordination daemon",
		Long: `Handover restarts a long-running server without dropping in-flight
connections: it spawns the next process generation, hands application
state over a private pipe, waits until the child reports ready, then
drains existing clients before exiting.

Running handover without a subcommand starts the daemon with the demo
echo service.

Examples:
  handover                          # serve with built-in defaults
  handover --config=handover.toml   # serve from a config file
  handover restart                  # trigger a restart over the unix socket
  handover history --limit=10       # list recent restart events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *serveFlags
			f.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(&f, nil)
		},
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the handover daemon",
		Long: `Start the handover daemon: the restart coordination endpoint, the demo
echo service, and optionally the admin HTTP API and metrics endpoint.

Examples:
  handover serve                    # defaults, socket /tmp/handover.sock
  handover serve handover.toml      # with specific config file
  handover serve --daemonize        # run in the background`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *serveFlags
			if f.ConfigPath == "" {
				f.ConfigPath = globalFlags.ConfigPath
			}
			return runServeCommand(&f, args)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	cmd.Flags().DurationVar(&serveFlags.DrainTimeout, "drain-timeout", 0, "max wait for connections to drain on exit (0 waits forever)")

	return cmd
}

// createRestartCommand creates the restart subcommand
func createRestartCommand(handoverCommand command, restartFlags *RestartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Trigger a restart of the running daemon",
		Long: `Connect to the coordination socket of a running daemon, ask it to hand
over to a new process generation, and wait for the reply. The exit code
reflects the outcome: 0 with the new PID on success, non-zero with the
failure reason otherwise.

Examples:
  handover restart
  handover restart --socket=/run/myservice/handover.sock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handoverCommand.Restart(*restartFlags)
		},
	}

	cmd.Flags().StringVar(&restartFlags.Socket, "socket", "", "coordination socket path (default /tmp/handover.sock)")
	cmd.Flags().DurationVar(&restartFlags.Timeout, "timeout", 30*time.Second, "max wait for the restart to conclude")

	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(handoverCommand command, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Fetch the daemon's restart, drain and process snapshot over the admin
HTTP API.

Examples:
  handover status
  handover status --api-url=http://remote:8080
  handover status --token=sekret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handoverCommand.Status(*statusFlags)
		},
	}

	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "admin API URL (default http://127.0.0.1:8080)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVar(&statusFlags.Token, "token", "", "bearer token when the API requires auth")

	return cmd
}

// createHistoryCommand creates the history subcommand
func createHistoryCommand(handoverCommand command, globalFlags *GlobalFlags, historyFlags *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent restart events",
		Long: `List recent restart events, newest first. Reads the SQL history sink
directly when --dsn (or the config's [history] dsn) is set, or the admin
HTTP API when --api-url is given.

Examples:
  handover history --dsn=/var/lib/handover/history.db
  handover history --config=handover.toml --limit=50
  handover history --api-url=http://remote:8080 --token=sekret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *historyFlags
			f.ConfigPath = globalFlags.ConfigPath
			return handoverCommand.History(f)
		},
	}

	cmd.Flags().StringVar(&historyFlags.DSN, "dsn", "", "history database DSN (overrides config)")
	cmd.Flags().IntVar(&historyFlags.Limit, "limit", 20, "max events to list")
	cmd.Flags().StringVar(&historyFlags.APIUrl, "api-url", "", "read via admin API instead of the database")
	cmd.Flags().DurationVar(&historyFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVar(&historyFlags.Token, "token", "", "bearer token when the API requires auth")

	return cmd
}

// createTemplateCommand creates the template subcommand
func createTemplateCommand(handoverCommand command, templateFlags *TemplateCreateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Generate a starter config file",
		Long: `Generate a starter TOML configuration for a deployment profile.

Profiles: minimal, daemon, scheduled, full.

Examples:
  handover template --type=daemon --name=myservice
  handover template --type=full --name=demo --output=handover.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handoverCommand.TemplateCreate(*templateFlags)
		},
	}

	cmd.Flags().StringVar(&templateFlags.Type, "type", "daemon", "profile type (minimal, daemon, scheduled, full)")
	cmd.Flags().StringVar(&templateFlags.Name, "name", "", "service name seeded into paths")
	cmd.Flags().StringVar(&templateFlags.Output, "output", "", "output file (default <name>.toml)")
	cmd.Flags().BoolVar(&templateFlags.Force, "force", false, "overwrite existing file")

	return cmd
}

// createHashTokenCommand creates the hash-token subcommand
func createHashTokenCommand(handoverCommand command, hashFlags *HashTokenFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-token",
		Short: "Hash an admin API token",
		Long: `Produce the bcrypt hash of an admin API bearer token, for the
[server] auth_token_hash config field.

Examples:
  handover hash-token --token=sekret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handoverCommand.HashToken(*hashFlags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&hashFlags.Token, "token", "", "token to hash (required)")
	if err := cmd.MarkFlagRequired("token"); err != nil {
		panic(err)
	}

	return cmd
}
