package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notelock/core/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the core configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(cfgFile); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", cfgFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		for _, key := range []string{
			config.KeyMessagingChannel,
			config.KeyMessagingEvents,
			config.KeyAPIEndpoint,
			config.KeyDBPath,
			config.KeyOutgoingDelayMS,
			config.KeyIncomingDelayMS,
			config.KeyGatewayPort,
			config.KeyLogLevel,
			config.KeyLogFile,
		} {
			fmt.Printf("%s = %s\n", key, cfg.GetString(key))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
