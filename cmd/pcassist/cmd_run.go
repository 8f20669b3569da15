package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/pcassist/internal/api"
	"github.com/AaronLay10/pcassist/internal/config"
	"github.com/AaronLay10/pcassist/internal/mqtt"
	"github.com/AaronLay10/pcassist/internal/overlay"
	"github.com/AaronLay10/pcassist/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("print", false, "also write overlay messages to stdout as JSON lines")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Attach to the memory-reading agent over MQTT and serve the overlay",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := startSession(cfg, "run")
	err = run(ctx, cfg, cmd, s)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.end(err)
	return err
}

func run(ctx context.Context, cfg *config.Config, cmd *cobra.Command, s *session) error {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	prefix := cfg.TopicPrefix()
	client := mqtt.NewClient(mqtt.Options{
		URL:           cfg.MQTT.URL,
		ClientID:      cfg.MQTTClientID(),
		Username:      cfg.MQTT.Username,
		Password:      secrets.MQTTPassword,
		PresenceTopic: mqtt.Topic(prefix, mqtt.PresenceTopic),
	})

	source := mqtt.NewSampleSource(cfg.Heartbeat(), cfg.MQTT.Tolerance)
	if err := client.Start(func(t mqtt.Transport) error {
		return source.Subscribe(t, prefix)
	}); err != nil {
		return err
	}
	defer client.Disconnect()

	var sinks []overlay.Sink
	if cfg.MQTT.Publish {
		sinks = append(sinks, mqtt.NewPublisher(client, prefix))
	}
	if printOverlay, _ := cmd.Flags().GetBool("print"); printOverlay {
		sinks = append(sinks, jsonSink{w: cmd.OutOrStdout()})
	}

	pcfg, err := pipelineConfig(cfg, source, sinks...)
	if err != nil {
		return err
	}
	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.APIEnabled() {
		if err := startAPI(gctx, g, cfg, p, s); err != nil {
			return err
		}
	}
	g.Go(func() error {
		mqttStatePoll(client.IsConnected, gctx.Done())
		return nil
	})

	g.Go(func() error {
		// The game exiting ends the run, so stop the server too.
		defer cancel()
		api.SetPipelineRunning(true)
		defer api.SetPipelineRunning(false)
		return p.Run(gctx)
	})

	return g.Wait()
}

// startAPI serves the HTTP surface and the alert monitor until ctx is done.
func startAPI(ctx context.Context, g *errgroup.Group, cfg *config.Config, p *pipeline.Pipeline, s *session) error {
	if err := api.InitTLS(); err != nil {
		return err
	}
	if err := api.InitAuth(); err != nil {
		return err
	}
	api.InitMetrics(cfg.InstanceID())
	api.InitAlerts(cfg.DisplayName())
	api.SetOverlaySource(p)
	if s.store != nil {
		api.SetEventHistory(s.store)
	}

	g.Go(func() error {
		return api.Serve(ctx, cfg.APIPort())
	})
	g.Go(func() error {
		api.RunAlertMonitor(ctx, 5*time.Second)
		return nil
	})
	return nil
}
