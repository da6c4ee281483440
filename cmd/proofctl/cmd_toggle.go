package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proofd/internal/bridge"
	"proofd/internal/settings"
)

var toggleTypes = map[string]string{
	"auto-correct":   settings.ToggleAutoCorrect,
	"debug-border":   settings.ToggleDebugBorder,
	"debug-messages": settings.ToggleDebugMessages,
}

func newToggleCmd() *cobra.Command {
	var addr, configPath string

	cmd := &cobra.Command{
		Use:   "toggle <flag> <on|off>",
		Short: "Flip a runtime feature flag",
		Long: `Flip one of the daemon's runtime feature flags:

  auto-correct     Apply top suggestions on word boundaries
  debug-border     Draw a visible border around overlay elements
  debug-messages   Log at debug verbosity`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, ok := toggleTypes[args[0]]
			if !ok {
				return fmt.Errorf("unknown flag %q (want auto-correct, debug-border, or debug-messages)", args[0])
			}
			var enabled bool
			switch args[1] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("want on or off, got %q", args[1])
			}

			c, err := dial(addr, configPath)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.send(bridge.MsgToggle, settings.Notification{Type: typ, Enabled: enabled}); err != nil {
				return err
			}

			// Toggles are fire-and-forget; confirm via a status round trip.
			if err := c.send(bridge.MsgStatus, nil); err != nil {
				return err
			}
			if _, err := c.await(bridge.MsgStatusResult); err != nil {
				return err
			}

			fmt.Printf("%s is now %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "bridge address (default: from config)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	return cmd
}
