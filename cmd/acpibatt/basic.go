package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewAdapterCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "adapter",
		Short:   "Print whether the AC adapter is connected",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			connected, err := apiClient.GetAdapter()
			if err != nil {
				return fmt.Errorf("failed to get power adapter status: %v", err)
			}
			cmd.Printf("AC adapter connected: %s\n", bool2Text(connected))
			return nil
		},
	}
}
