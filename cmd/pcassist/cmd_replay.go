package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/pcassist/internal/handoff"
	"github.com/AaronLay10/pcassist/internal/pipeline"
	"github.com/AaronLay10/pcassist/internal/reader"
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("realtime", false, "pace polls at the recorded sampling interval")
	replayCmd.Flags().String("handoff", "fifo", "hand-off policy for the replay (latest, fifo)")
}

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Run the pipeline over a recorded sample script and print each overlay message",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	replay, err := reader.LoadReplay(args[0])
	if err != nil {
		return err
	}

	pcfg, err := pipelineConfig(cfg, replay, jsonSink{w: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	// The replay clock keeps boundary timing identical however fast the
	// script is polled.
	pcfg.Detector.Now = replay.Now
	pcfg.PollInterval = 0
	if realtime, _ := cmd.Flags().GetBool("realtime"); realtime {
		pcfg.PollInterval = replay.Step
	}
	// Drain every frame the loop can take, so no message is skipped.
	pcfg.FPS = 1000
	policy, _ := cmd.Flags().GetString("handoff")
	switch handoff.Policy(policy) {
	case handoff.Latest, handoff.FIFO:
		pcfg.Handoff = handoff.Policy(policy)
	default:
		return errors.New("--handoff must be latest or fifo")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := startSession(cfg, "replay")
	err = pipeline.Run(ctx, pcfg)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.end(err)
	return err
}
