package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/notelock/core/internal/config"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe a running core over the websocket gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		url := fmt.Sprintf("ws://localhost:%d/ws", cfg.GetInt(config.KeyGatewayPort))
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return fmt.Errorf("failed to reach core at %s: %w", url, err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		start := time.Now()
		if err := conn.Write(ctx, websocket.MessageText, []byte(`["cli-ping","ping"]`)); err != nil {
			return fmt.Errorf("failed to send ping: %w", err)
		}

		_, resp, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("no response from core: %w", err)
		}

		fmt.Printf("core answered in %s: %s\n", time.Since(start).Round(time.Millisecond), resp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
