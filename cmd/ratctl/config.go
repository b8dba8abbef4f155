package main

import (
	"fmt"

	"github.com/danmuck/ratlink/internal/config"
	"github.com/danmuck/ratlink/internal/logging"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	url        string
	device     string
	logLevel   string
}

// load resolves the config file, then applies flag overrides.
func (o *globalOptions) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	switch {
	case o.url != "" && o.device != "":
		return config.Config{}, fmt.Errorf("--url and --serial are mutually exclusive")
	case o.url != "":
		cfg.Link = config.LinkWebSocket
		cfg.WebSocket.URL = o.url
	case o.device != "":
		cfg.Link = config.LinkSerial
		cfg.Serial.Device = o.device
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}
	return cfg, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ratctl config files",
	}

	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "ratlink.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
