package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kurir/config"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Channel related commands",
}

var channelLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List configured channels in failover order",
	Args:  cobra.NoArgs,
	RunE:  runChannelLs,
}

func init() {
	channelCmd.AddCommand(channelLsCmd)
	rootCmd.AddCommand(channelCmd)
}

func runChannelLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for i, ch := range cfg.Channels {
		state := "disabled"
		if ch.Enabled {
			state = "enabled"
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\t%s\n", i+1, ch.ID, ch.Name, state, ch.SessionPath)
	}
	return nil
}
