package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"proofd/internal/bridge"
)

func newStatusCmd() *cobra.Command {
	var addr, configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(addr, configPath)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.send(bridge.MsgStatus, nil); err != nil {
				return err
			}
			env, err := c.await(bridge.MsgStatusResult)
			if err != nil {
				return err
			}

			var res bridge.StatusResult
			if err := json.Unmarshal(env.Payload, &res); err != nil {
				return err
			}

			fmt.Println("proofd is running")
			fmt.Printf("  Attached surfaces: %d\n", res.Surfaces)
			fmt.Printf("  Auto-correct:      %s\n", onOff(res.AutoCorrect))
			fmt.Printf("  Debug border:      %s\n", onOff(res.DebugBorder))
			fmt.Printf("  Debug messages:    %s\n", onOff(res.DebugMessages))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "bridge address (default: from config)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	return cmd
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
