// Package cmd provides the command-line interface for the trattoria site.
//
// Configuration System:
//
//	Settings come from several sources with a fixed precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. TRATTORIA_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TRATTORIA_SERVER_PORT, etc.)
//	4. Configuration files (.trattoria.yml) - lowest priority
//
// Environment Variables:
//
//	TRATTORIA_CONFIG_FILE: Path to custom configuration file
//	TRATTORIA_SERVER_PORT: Override server port
//	TRATTORIA_STORAGE_DRIVER: sqlite or memory
//	And the rest following the TRATTORIA_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/trattoria/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trattoria",
	Short: "Restaurant site with live-editable page sections",
	Long: `Trattoria serves a restaurant website composed from ordered, typed
page sections and pushes admin edits to every open tab as they are saved.

Quick Start:
  trattoria serve                 Start the site and admin API
  trattoria provision             Create the standard pages
  trattoria pages                 List pages and their sections
  trattoria compose home          Render a page from the terminal

Command Aliases:
  serve (s), provision (p), pages (ls), compose (c)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .trattoria.yml, can also use TRATTORIA_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig picks the config file: --config, then TRATTORIA_CONFIG_FILE,
// then .trattoria.yml in the working directory. A missing default file is
// not an error; an explicitly named one that fails to parse is reported.
func initConfig() {
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".trattoria")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if explicit {
		fmt.Fprintf(os.Stderr, "Warning: could not read config file: %v\n", err)
	}
}
