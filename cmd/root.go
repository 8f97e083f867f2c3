// Package cmd provides the kiln command-line interface.
//
// Configuration System:
//
//	Settings are read with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. KILN_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (KILN_BRIDGE_PORT, etc.)
//	4. Configuration file (.kiln.yml) - lowest priority
//
// Environment Variables:
//
//	KILN_CONFIG_FILE: Path to custom configuration file
//	KILN_BRIDGE_PORT: Override bridge port
//	KILN_RUNTIME_PATCH_CACHE_CAPACITY: Override patch cache capacity
//	And the rest following the KILN_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/kiln/internal/config"
	"github.com/conneroisu/kiln/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "A reactive component template runtime",
	Long: `kiln compiles component templates with {{ }} interpolation, *if and *for
directives and (event) bindings, renders them against reactive state and
patches the result into shadow trees with keyed reconciliation.

Quick Start:
  kiln compile counter.html              Show bindings and referenced properties
  kiln instructions markup.html          Dump the patch instruction stream
  kiln render kiln.yml x-counter         Render a component from a manifest
  kiln watch kiln.yml x-counter          Re-render when files change
  kiln serve kiln.yml                    Serve components to a browser`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .kiln.yml, can also use KILN_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig selects the configuration file and enables KILN_ environment
// overrides.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("KILN_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kiln")
	}

	config.BindEnv(viper.GetViper())

	// A missing or unreadable file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads and validates the configuration and builds its logger.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
