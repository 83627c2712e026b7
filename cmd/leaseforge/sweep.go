package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
	"github.com/Strob0t/LeaseForge/internal/service"
)

func newSweepCmd(configPath *string) *cobra.Command {
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire fully executed leases past their end date, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, flush, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer flush()

			ctx := cmd.Context()
			var cl cleanups
			defer cl.run()

			store, err := openStore(ctx, cfg, inMemory, false, &cl)
			if err != nil {
				return err
			}
			queue, err := connectQueue(ctx, cfg, true, &cl)
			if err != nil {
				return err
			}
			var mq messagequeue.Queue
			if queue != nil {
				mq = queue
			}
			notifiers, breakers, err := buildNotifiers(cfg)
			if err != nil {
				return fmt.Errorf("notifiers: %w", err)
			}
			notifications := service.NewNotificationService(nil, mq, notifiers)
			for name, b := range breakers {
				notifications.SetBreaker(name, b)
			}
			cl.add(notifications.Wait)

			leases := service.NewLeaseService(store, notifications)
			res, err := service.NewExpirySweeper(store, leases, cfg.Expiry).SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "memory", false, "sweep an empty in-memory store (smoke test)")
	return cmd
}
