package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/config"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/logging"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/media"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/negotiation"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/signaling"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/ui"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/webrtc"
)

var (
	flagNoAudio bool
	flagNoVideo bool
	flagLogFile string
)

var callCmd = &cobra.Command{
	Use:     "call <room-id | room-url>",
	Aliases: []string{"join", "c"},
	Short:   "Join a room and start a call",
	Long: `Join a room on the signaling server and call the other participant.

The first participant in a room is the initiator and sends the offer once
the second one arrives. Rooms hold at most two participants.

Examples:
  axivid call standup
  axivid call wss://calls.example.com/ws/standup
  axivid call --no-video --domain localhost:3000 standup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd.Context(), args[0])
	},
}

func runCall(ctx context.Context, arg string) error {
	roomID, domain, insecure, err := config.ParseRoomArg(arg)
	if err != nil {
		return err
	}
	opts := globalOptions()
	if domain != "" {
		opts.Domain = domain
		opts.Insecure = opts.Insecure || insecure
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.InitFile(flagLogFile)
	if err != nil {
		return callerr.New("open log file", err)
	}
	defer closeLog()

	stopSpinner := ui.RunConnectionSpinner("Connecting to signaling server...")
	client := signaling.NewClient(cfg.RoomWebSocketURL(roomID), signaling.WithLogger(logger))
	err = client.Connect(ctx)
	stopSpinner()
	if err != nil {
		return callerr.New("connect to server", err)
	}
	defer client.Close()

	source := media.NewSynthetic(!flagNoAudio, !flagNoVideo)
	var screen *ui.CallUI
	machine := negotiation.New(negotiation.Config{
		Signaler: client,
		Media: negotiation.MediaSourceFunc(func(ctx context.Context) (negotiation.LocalMedia, error) {
			local, err := source.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return local, nil
		}),
		Peers:  webrtc.Factory(cfg, logger),
		Status: newAPIClient(cfg).StatusFetcher(roomID),
		Logger: logger,
		OnChange: func(s negotiation.Snapshot) {
			screen.Update(s)
		},
	})
	screen = ui.NewCallUI(machine, roomID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	machineDone := make(chan struct{})
	go func() {
		defer close(machineDone)
		machine.Run(runCtx)
	}()
	go machine.Follow(client.Events())
	go func() {
		select {
		case <-ctx.Done():
			screen.Quit()
		case <-runCtx.Done():
		}
	}()

	machine.StartCall()
	uiErr := screen.Run()

	machine.HangUp()
	client.Leave()
	cancel()
	<-machineDone

	if uiErr != nil {
		return callerr.New("call screen", uiErr)
	}
	err = client.Err()
	switch {
	case errors.Is(err, callerr.ErrChannelDisconnected):
		ui.PrintWarning("The signaling server closed the connection")
	case err != nil:
		return err
	}
	ui.PrintInfo("Left room " + roomID)
	return nil
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Join without a microphone track")
	callCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Join without a camera track")
	callCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file while the call screen is open")
}
