package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/api"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/config"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/ui"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/version"
)

var (
	flagDomain   string
	flagInsecure bool
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "axivid",
	Short:   "Two-party video calls over WebRTC from the terminal",
	Long:    `axivid joins a room on an Axi-Vid signaling server and sets up a direct WebRTC call with the other participant. The server only relays the offer, answer and ICE candidates; media flows peer to peer, falling back to TURN when a direct path is not possible.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(callerr.Reason(err))
		stop()
		os.Exit(1)
	}
}

func globalOptions() config.Options {
	return config.Options{
		Domain:     flagDomain,
		Insecure:   flagInsecure,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	}
}

func loadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, callerr.New("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

func newAPIClient(cfg *config.Config) *api.Client {
	return api.NewClient(cfg.APIBaseURL())
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagDomain, "domain", "d", "", "Signaling server host[:port] (env DOMAIN)")
	flags.BoolVar(&flagInsecure, "insecure", false, "Use ws:// and http:// instead of wss:// and https://")
	flags.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server (env STUN_SERVER)")
	flags.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server (env TURN_SERVER)")
	flags.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username (env TURN_USERNAME)")
	flags.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password (env TURN_PASSWORD)")
	flags.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
}
