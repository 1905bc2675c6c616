package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	meetingsCmd := &cobra.Command{Use: "meetings", Short: "Meeting operations"}

	// create
	var subject, start, end, attendees string
	var autoJoin, captureChat, postInsights bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a meeting",
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			endTime, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			payload := map[string]interface{}{
				"subject":   subject,
				"startTime": startTime,
				"endTime":   endTime,
				"attendees": splitList(attendees),
				"agentConfig": map[string]bool{
					"autoJoin":     autoJoin,
					"captureChat":  captureChat,
					"postInsights": postInsights,
				},
			}
			return call(client().R().SetBody(payload), http.MethodPost, "/api/meetings")
		},
	}
	createCmd.Flags().StringVarP(&subject, "subject", "s", "", "Meeting subject (required)")
	createCmd.Flags().StringVar(&start, "start", "", "Start time, RFC3339 (required)")
	createCmd.Flags().StringVar(&end, "end", "", "End time, RFC3339 (required)")
	createCmd.Flags().StringVar(&attendees, "attendees", "", "Comma-separated attendee emails (required)")
	createCmd.Flags().BoolVar(&autoJoin, "auto-join", true, "Schedule the agent to join automatically")
	createCmd.Flags().BoolVar(&captureChat, "capture-chat", true, "Capture the meeting chat")
	createCmd.Flags().BoolVar(&postInsights, "post-insights", false, "Post insight replies into the chat")
	_ = createCmd.MarkFlagRequired("subject")
	_ = createCmd.MarkFlagRequired("start")
	_ = createCmd.MarkFlagRequired("end")
	_ = createCmd.MarkFlagRequired("attendees")
	meetingsCmd.AddCommand(createCmd)

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodGet, "/api/meetings")
		},
	})

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "get MEETING_ID",
		Short: "Get a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodGet, "/api/meetings/"+args[0])
		},
	})

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "cancel MEETING_ID",
		Short: "Cancel a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodDelete, "/api/meetings/"+args[0])
		},
	})

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "join MEETING_ID",
		Short: "Join the agent to a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodPost, "/api/meetings/"+args[0]+"/join-agent")
		},
	})

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "leave MEETING_ID",
		Short: "Remove the agent from a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodPost, "/api/meetings/"+args[0]+"/leave-agent")
		},
	})

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "summary MEETING_ID",
		Short: "Fetch the latest meeting summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodGet, "/api/meetings/"+args[0]+"/summary")
		},
	})

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "messages MEETING_ID",
		Short: "List captured chat messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodGet, "/api/meetings/"+args[0]+"/messages")
		},
	})

	meetingsCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show agent attendance status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(client().R(), http.MethodGet, "/api/meetings/status")
		},
	})

	rootCmd.AddCommand(meetingsCmd)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
