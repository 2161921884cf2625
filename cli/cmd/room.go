package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/config"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/ui"
)

const roomCapacity = 2

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room with a fresh id",
	Long: `Ask the signaling server for a new room id and print how to join it.

The room is created lazily: it exists once the first participant connects.

Examples:
  axivid create
  axivid create --domain calls.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(globalOptions())
		if err != nil {
			return err
		}

		sp := ui.NewSimpleSpinner("Creating room...")
		sp.Start()
		room, err := newAPIClient(cfg).CreateRoom(cmd.Context())
		sp.Stop()
		if err != nil {
			return callerr.New("create room", err)
		}

		fmt.Println()
		ui.RenderRoomInfo(room.RoomID, cfg.RoomWebSocketURL(room.RoomID))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <room-id | room-url>",
	Short: "Show how many participants are in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, domain, insecure, err := config.ParseRoomArg(args[0])
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

		stopSpinner := ui.RunSpinner("Checking room...")
		status, err := newAPIClient(cfg).RoomStatus(cmd.Context(), roomID)
		stopSpinner()
		if err != nil {
			return callerr.New("room status", err)
		}

		ui.RenderRoomStatus(ui.RoomStatus{
			RoomID:    status.RoomID,
			PeerCount: status.PeerCount,
			Capacity:  roomCapacity,
			Available: status.Available,
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(statusCmd)
}
