package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vfx-pipeline/asset-server/pkg/syncagent"
)

func main() {
	var (
		server   string
		apiKey   string
		root     string
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "sync_agent",
		Short: "Push local pipeline exports to the asset server and follow its change feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			agent := syncagent.NewAgent(syncagent.NewClient(server, apiKey), root, interval)
			if once {
				return agent.PushLocal(ctx)
			}
			err := agent.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:5000", "asset server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "demo-edit", "API key presented on every request")
	cmd.Flags().StringVar(&root, "root", "exports", "local exports directory")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "poll interval for the change feed")
	cmd.Flags().BoolVar(&once, "once", false, "push local exports once and exit without polling")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
