package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "beamcast",
		Short: "beamcast - mirror your screen to a GM12U320 USB pico-projector",
		Long: `beamcast streams live screen content to a GM12U320-class USB
pico-projector. The device speaks no standard video protocol: beamcast
captures the screen, converts it to the projector's raster format and feeds
it over USB within the device's strict keep-alive window.

Modes:
  • stream  - capture and project in one process
  • capture - capture only, publishing raw frames to a file
  • pattern - project animated test bars (no display server needed)`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/beamcast/config.yaml)")
	rootCmd.PersistentFlags().Float64("fps", 0, "capture rate in frames per second, (0, 60]")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console log output")

	viper.BindPFlag("fps", rootCmd.PersistentFlags().Lookup("fps"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
