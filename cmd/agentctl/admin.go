package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Show the scheduler failure report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodGet, "/api/admin/scheduler/report")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodGet, "/api/health")
		},
	})
}
