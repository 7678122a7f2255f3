package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backkem/naisho/pkg/channel"
	"github.com/backkem/naisho/pkg/channel/webrtc"
	"github.com/backkem/naisho/pkg/config"
	"github.com/backkem/naisho/pkg/diceword"
)

// app is the state shared by the subcommands of one root command.
type app struct {
	configPath string
	logLevel   string
	dictPath   string
	dictURL    string

	cfg           config.Config
	loggerFactory logging.LoggerFactory

	// newProvider creates the transport for share and receive.
	newProvider func(*app) channel.Provider
}

func webrtcProvider(a *app) channel.Provider {
	return webrtc.NewProvider(webrtc.ProviderConfig{
		ICEServers:    a.cfg.ICEServers,
		GatherTimeout: a.cfg.GatherTimeout,
		LoggerFactory: a.loggerFactory,
	})
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd(&app{newProvider: webrtcProvider}).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "naisho",
		Short:        "Pair two terminals with copy-pasted tokens",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded := config.Default()
			if a.configPath != "" {
				var err error
				if loaded, err = config.Load(a.configPath); err != nil {
					return err
				}
			}

			flags := cmd.Flags()
			if flags.Changed("log-level") {
				loaded.LogLevel = a.logLevel
			}
			if flags.Changed("dictionary") {
				loaded.DictionaryPath = a.dictPath
			}
			if flags.Changed("dictionary-url") {
				loaded.DictionaryURL = a.dictURL
			}
			if err := loaded.Validate(); err != nil {
				return err
			}

			lf, err := loaded.LoggerFactory(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if loaded.DictionaryPath != "" || loaded.DictionaryURL != "" {
				diceword.SetDefaultLoader(loaded.DictionaryLoader(), lf)
			}

			a.cfg = loaded
			a.loggerFactory = lf
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML config file")
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level (disabled, error, warn, info, debug, trace)")
	pf.StringVar(&a.dictPath, "dictionary", "", "word list file (default: built-in list)")
	pf.StringVar(&a.dictURL, "dictionary-url", "", "fetch the word list from this URL")

	root.AddCommand(
		shareCmd(a),
		receiveCmd(a),
		sasCmd(),
		inspectCmd(),
		wordsCmd(),
	)
	return root
}
