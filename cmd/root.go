// Package cmd provides the mailwright command-line interface.
//
// Configuration is read, from highest to lowest priority, from:
//
//  1. Command-line flags (--log-level, --port, ...)
//  2. MAILWRIGHT_<SECTION>_<KEY> environment variables
//  3. The config file: --config, else MAILWRIGHT_CONFIG_FILE, else
//     .mailwright.yml in the working directory
//  4. Built-in defaults
package cmd

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// flagKeys maps flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"port":      "server.port",
	"host":      "server.host",
	"open":      "server.open",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mailwright",
	Short: "Build HTML emails with live reload",
	Long: `mailwright builds responsive HTML emails: it renders pages through layouts
and partials, compiles Sass, optimizes images and inlines CSS.

Run without a subcommand it builds once, then watches the sources and serves
the output with live reload (same as "mailwright dev").

Commands:
  mailwright dev       Build, watch and serve
  mailwright build     Build once
  mailwright clean     Remove the output directory
  mailwright config    Print the effective configuration`,
	SilenceUsage: true,
	RunE:         runDev,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .mailwright.yml, can also use MAILWRIGHT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	addDevFlags(rootCmd.Flags())
}

// newViper prepares a viper instance for cmd with the config file, the
// environment and cmd's flags bound.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()

	explicit := true
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("MAILWRIGHT_CONFIG_FILE"); envConfigFile != "" {
		v.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".mailwright")
	}

	v.SetEnvPrefix("MAILWRIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}
	return v, nil
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", used)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
}
