package commands

import (
	"github.com/spf13/cobra"

	"github.com/beamcast/beamcast/internal/config"
)

var patternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Project animated test bars",
	Long: `Pattern streams the animated color-bar test pattern to the projector.
Useful for verifying the USB path and focus without a display server.`,
	RunE: runPattern,
}

func init() {
	patternCmd.Flags().Bool("eco", false, "enable the projector's eco mode")
	rootCmd.AddCommand(patternCmd)
}

func runPattern(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Source = config.SourcePattern
	if eco, _ := cmd.Flags().GetBool("eco"); eco {
		cfg.Eco = true
	}
	return runPipeline(cfg)
}
