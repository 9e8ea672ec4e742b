package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beamcast/beamcast/internal/api"
	"github.com/beamcast/beamcast/internal/capture"
	"github.com/beamcast/beamcast/internal/config"
	"github.com/beamcast/beamcast/internal/gm12u320"
	"github.com/beamcast/beamcast/internal/logger"
	"github.com/beamcast/beamcast/internal/mailbox"
	"github.com/beamcast/beamcast/internal/metrics"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Capture the screen and stream it to the projector",
	Example: `  # Mirror the X11 root window at the configured rate
  beamcast stream

  # Mirror at 25 fps in eco mode
  beamcast stream --fps 25 --eco

  # Consume raw frames written by a separate "beamcast capture" process
  beamcast stream --source file --frame-path /tmp/beamcast_frame.raw

  # Expose status API and Prometheus metrics on port 9221
  beamcast stream --api-port 9221`,
	RunE: runStream,
}

func init() {
	streamCmd.Flags().String("source", "", "capture source: x11, file or pattern")
	streamCmd.Flags().String("frame-path", "", "raw frame file for the file source")
	streamCmd.Flags().Bool("eco", false, "enable the projector's eco mode")
	streamCmd.Flags().Int("api-port", 0, "serve status API and metrics on this port (0 disables)")

	viper.BindPFlag("source", streamCmd.Flags().Lookup("source"))
	viper.BindPFlag("frame_path", streamCmd.Flags().Lookup("frame-path"))
	viper.BindPFlag("eco_mode", streamCmd.Flags().Lookup("eco"))
	viper.BindPFlag("api_port", streamCmd.Flags().Lookup("api-port"))

	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runPipeline(cfg)
}

// loadConfig merges the config file with any flag overrides and validates
// the result.
func loadConfig() (config.Config, error) {
	if lvl := viper.GetString("log_level"); lvl != "" {
		logger.Init(lvl, viper.GetBool("log_pretty"))
	} else {
		logger.Init("info", viper.GetBool("log_pretty"))
	}

	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading configuration: %w", err)
	}

	cfg := mgr.Get()
	if viper.GetFloat64("fps") > 0 {
		cfg.FPS = viper.GetFloat64("fps")
	}
	if s := viper.GetString("source"); s != "" {
		cfg.Source = s
	}
	if p := viper.GetString("frame_path"); p != "" {
		cfg.FramePath = p
	}
	if viper.IsSet("eco_mode") && viper.GetBool("eco_mode") {
		cfg.Eco = true
	}
	if viper.GetInt("api_port") > 0 {
		cfg.APIPort = viper.GetInt("api_port")
	}
	if lvl := viper.GetString("log_level"); lvl == "" && cfg.LogLevel != "" {
		logger.Init(cfg.LogLevel, viper.GetBool("log_pretty"))
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runPipeline wires capture → mailbox → engine and runs until interrupted.
func runPipeline(cfg config.Config) error {
	log := logger.WithComponent("stream")
	met := metrics.New(prometheus.DefaultRegisterer)

	transport, err := gm12u320.Open()
	if err != nil {
		return fmt.Errorf("projector setup: %w", err)
	}
	defer transport.Close()

	mbox := mailbox.New()
	engine := gm12u320.NewEngine(transport, mbox, gm12u320.Options{
		Interval: time.Duration(cfg.IdleIntervalMS) * time.Millisecond,
		Eco:      cfg.Eco,
		Metrics:  met,
	})

	producer, err := newProducer(cfg, mbox, met)
	if err != nil {
		return fmt.Errorf("capture setup: %w", err)
	}
	defer producer.Close()

	if err := engine.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		if err := producer.Run(ctx); err != nil {
			log.Error().Err(err).Msg("producer exited")
		}
	}()

	var apiServer *api.Server
	if cfg.APIPort > 0 {
		apiServer = api.NewServer(func() api.Snapshot {
			published, dropped := mbox.Stats()
			return api.Snapshot{
				Engine:          engine.Stats(),
				FramesPublished: published,
				FramesDropped:   dropped,
			}
		})
		go func() {
			if err := apiServer.Start(cfg.APIPort); err != nil {
				log.Error().Err(err).Msg("status API failed")
			}
		}()
	}

	log.Info().
		Float64("fps", cfg.FPS).
		Str("source", cfg.Source).
		Bool("eco", cfg.Eco).
		Msg("streaming, press Ctrl+C to stop")
	<-ctx.Done()

	log.Info().Msg("shutting down")
	cancel()
	<-producerDone
	engine.Stop()
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		apiServer.Stop(shutdownCtx)
	}
	return nil
}

// newProducer builds the producer matching the configured source.
func newProducer(cfg config.Config, out capture.Publisher, met *metrics.Metrics) (*capture.Producer, error) {
	switch cfg.Source {
	case config.SourceFile:
		return capture.NewRawProducer(capture.NewFileSource(cfg.FramePath), out, cfg.FPS, met)
	case config.SourcePattern:
		return capture.NewProducer(capture.NewBars(), out, cfg.FPS, met)
	default:
		src, err := capture.NewX11Source()
		if err != nil {
			return nil, err
		}
		return capture.NewProducer(src, out, cfg.FPS, met)
	}
}
