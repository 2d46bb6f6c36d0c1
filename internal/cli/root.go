// Package cli implements the duckling command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	apiAddr string
	verbose bool
	quiet   bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "duckling",
	Short: "Autonomous code-change agent",
	Long: `duckling turns plain-language task descriptions into reviewed pull requests.

A background server owns the work: it generates a branch, writes the change
with a coding assistant, runs the configured checks, commits, and opens a
pull request. Every other command talks to that server over its HTTP API.

Quick start:
  duckling config init                       Write a starter config file
  duckling serve                             Start the server
  duckling repo add .                        Register the current repository
  duckling task create "Fix login bug"       Queue a task
  duckling watch                             Follow progress live`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .duckling/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "address of the duckling server (default http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newRepoCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in .duckling directory
		viper.AddConfigPath(".duckling")
		viper.AddConfigPath("$HOME/.duckling")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("DUCKLING")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
