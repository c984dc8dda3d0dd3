package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "training-timer",
	Short: "Workout training timer",
	Long: `training-timer runs a workout as a live timeline of timed steps. It keeps
the session in durable storage so an interrupted training resumes where it was
left, and reports the finished training to the backend.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags. Dotted names match config keys so viper can bind them.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "./configs/config.yaml", "Path to configuration file")
	flags.String("backend.url", "", "Training backend base URL")
	flags.String("storage.type", "", "Session storage: file or redis")
	flags.String("audio.player", "", "Cue player: bell or none")
	flags.String("logging.level", "", "Log level: debug, info, warn or error")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
