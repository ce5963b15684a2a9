package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/smallsh/smallsh/core"
	"github.com/smallsh/smallsh/core/config"
	"github.com/smallsh/smallsh/core/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	runLine string

	exitStatus int
)

// loadConfig loads the configuration from --config, or the built-in one if
// the flag wasn't given.
func loadConfig() (*config.Configuration, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}

	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// openEvents starts a new session in the configured event log.
func openEvents(configuration *config.Configuration) (*logger.SessionLogger, func() error, error) {
	if !configuration.EventLogEnabled() {
		return logger.NewNopLogger().NewSession(), func() error { return nil }, nil
	}

	fd, err := configuration.OpenEventLog()
	if err != nil {
		return nil, nil, fmt.Errorf("opening event log: %w", err)
	}

	return logger.NewJsonLinesLogRecorder(fd).NewSession(), fd.Close, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smallsh",
	Short: "A small shell with job control.",
	Long: `A small interactive shell.

Lines are split on spaces, "<" and ">" redirect standard input and output and
a trailing "&" runs the command in the background. The builtins are cd,
status and exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		events, closeEvents, err := openEvents(configuration)
		if err != nil {
			return err
		}
		defer closeEvents()

		shell := core.NewShell(configuration, core.Options{
			Events: events,
		})

		if cmd.Flags().Changed("command") {
			shell.RunLine(runLine)
		} else {
			exitStatus = shell.Run()
		}

		return shell.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitStatus)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config path, the built-in configuration is used if unset")
	rootCmd.Flags().StringVarP(&runLine, "command", "c", "", "run a single line and exit")
}
