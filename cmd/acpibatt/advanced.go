package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "interval [milliseconds]",
		Short:   "Set the standard polling interval",
		GroupID: gAdvanced,
		Long: `Set the standard polling interval in milliseconds.

Batteries are polled at this interval while on AC power and not nearly empty. A polling period override in the config file takes precedence.`,
		RunE: func(_ *cobra.Command, args []string) error {
			ms, err := parseIntArg(args, "interval")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetPollingInterval(ms)
			if err != nil {
				return fmt.Errorf("failed to set polling interval: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			return nil
		},
	}
}

func NewPollCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "poll",
		Short:   "Poll every battery now",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.Poll()
			if err != nil {
				return fmt.Errorf("failed to poll: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Short:   "Stream daemon events",
		GroupID: gAdvanced,
		Long:    `Print every state change and firmware error the daemon publishes, one JSON object per line, until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.Events(ctx)
			if err != nil {
				return err
			}
			for ev := range ch {
				cmd.Printf("%s %s\n", bold("%s", ev.Name), ev.Data)
			}
			return nil
		},
	}
}

func NewNotifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "notify adapter|SLOT",
		Short:   "Deliver a firmware notification",
		GroupID: gAdvanced,
		Long: `Make the daemon act as if firmware had signalled a change.

"adapter" re-reads the AC adapter and tells every battery if it changed. A slot name re-reads that battery's status and handles an insertion, removal or alarm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "adapter" {
				connected, err := apiClient.NotifyAdapter()
				if err != nil {
					return fmt.Errorf("failed to notify power adapter: %w", err)
				}
				cmd.Printf("AC adapter connected: %s\n", bool2Text(connected))
				return nil
			}

			st, err := apiClient.NotifyBattery(args[0])
			if err != nil {
				return fmt.Errorf("failed to notify battery: %w", err)
			}
			cmd.Printf("%s: %s\n", st.Slot, st.Condition)
			return nil
		},
	}
}

func NewRefreshCommand() *cobra.Command {
	var skip bool

	cmd := &cobra.Command{
		Use:     "refresh",
		Short:   "Show or skip the scheduled full refresh",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			get := apiClient.GetRefresh
			if skip {
				get = apiClient.SkipRefresh
			}
			r, err := get()
			if err != nil {
				return fmt.Errorf("failed to get refresh schedule: %w", err)
			}

			if r.Schedule == "" {
				cmd.Println("No refresh scheduled")
				return nil
			}
			cmd.Printf("Schedule: %s\n", r.Schedule)
			if !r.NextRun.IsZero() {
				cmd.Printf("Next run: %s\n", r.NextRun.Local().Format(time.DateTime))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skip, "skip", false, "skip the next scheduled refresh")

	return cmd
}
