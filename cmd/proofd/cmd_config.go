package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"proofd/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the daemon configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var configPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration the daemon would run with: file values merged
over defaults, with environment overrides applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(configPath)
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			return toml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path (default: user config dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of TOML")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the default config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.ConfigPath())
		},
	}
}
