package main

import (
	"fmt"
	"os"

	"github.com/danmuck/ratlink/internal/observability"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ratctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:   "ratctl",
		Short: "Drive and observe a Rat robot over Wi-Fi or a BLE serial bridge",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.InitLogger("ratctl")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&opts.url, "url", "", "websocket url, overrides the config transport")
	flags.StringVar(&opts.device, "serial", "", "serial device of a BLE UART bridge, overrides the config transport")
	flags.StringVar(&opts.logLevel, "log-level", "", "trace|debug|info|warn|error|off")

	root.AddCommand(
		watchCmd(&opts),
		sendCmd(&opts),
		configureCmd(&opts),
		tagsCmd(),
		configCmd(),
	)
	return root
}
