package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beamcast/beamcast/internal/capture"
	"github.com/beamcast/beamcast/internal/config"
	"github.com/beamcast/beamcast/internal/logger"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the screen to a raw frame file (no projector needed)",
	Long: `Capture runs the producer half of the pipeline on its own: it grabs the
screen at the configured rate, converts frames to the projector raster format
and publishes them to a frame file via atomic rename. A separate
"beamcast stream --source file" process picks them up, which allows capture
and transmission to run under different privileges or on different cadences.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().String("frame-path", "", "destination raw frame file")
	viper.BindPFlag("frame_path", captureCmd.Flags().Lookup("frame-path"))

	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := newCaptureSource(cfg)
	if err != nil {
		return fmt.Errorf("capture setup: %w", err)
	}

	sink := capture.NewFileSink(cfg.FramePath)
	producer, err := capture.NewProducer(src, sink, cfg.FPS, nil)
	if err != nil {
		src.Close()
		return fmt.Errorf("capture setup: %w", err)
	}
	defer producer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithComponent("capture").Info().
		Str("source", src.Name()).
		Str("frame_path", cfg.FramePath).
		Float64("fps", cfg.FPS).
		Msg("writing frames, press Ctrl+C to stop")
	return producer.Run(ctx)
}

// newCaptureSource picks the capture backend for capture mode. The file
// source is excluded here: capture mode is the process that writes the frame
// file.
func newCaptureSource(cfg config.Config) (capture.Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		return nil, fmt.Errorf("capture mode cannot read from the frame file it writes")
	case config.SourcePattern:
		return capture.NewBars(), nil
	default:
		return capture.NewX11Source()
	}
}
