package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over saved items",
	Long: `Semantic search over a user's saved items.

Examples:
  secondbrain search "that pasta recipe" --owner user-1
  secondbrain search hippocampus place cells --owner user-1 --limit 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		owner, _ := cmd.Flags().GetString("owner")
		limit, _ := cmd.Flags().GetInt("limit")
		if owner == "" {
			return fmt.Errorf("--owner is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/search?q=%s&ownerId=%s&limit=%d",
			url.QueryEscape(query), url.QueryEscape(owner), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var payload struct {
			Results []struct {
				Item  storage.Item `json:"item"`
				Score float64      `json:"score"`
			} `json:"results"`
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &payload); err != nil {
			return err
		}

		if payload.Count == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range payload.Results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score)
			fmt.Printf("  %s\n", r.Item.Title)
			if r.Item.URL != "" {
				fmt.Printf("  %s\n", r.Item.URL)
			}
			if len(r.Item.Tags) > 0 {
				fmt.Printf("  Tags: %s\n", strings.Join(r.Item.Tags, ", "))
			}
			summary := r.Item.Summary
			if len(summary) > 300 {
				summary = summary[:300] + "..."
			}
			if summary != "" {
				fmt.Printf("  %s\n", summary)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("owner", "", "owner user ID")
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- preview ---

var previewCmd = &cobra.Command{
	Use:   "preview <url>",
	Short: "Extract and analyze a URL without saving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		caption, _ := cmd.Flags().GetString("caption")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"url": args[0]}
		if owner != "" {
			body["ownerId"] = owner
		}
		if caption != "" {
			body["caption"] = caption
		}

		resp, err := client.post(cmd.Context(), "/preview", body)
		if err != nil {
			return err
		}

		var item any
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	},
}

func init() {
	previewCmd.Flags().String("owner", "", "owner user ID (enables related-item linking)")
	previewCmd.Flags().String("caption", "", "caption text sent along with the URL")
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reminder sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reminders/sweep", nil)
		if err != nil {
			return err
		}

		var report struct {
			UsersChecked   int      `json:"usersChecked"`
			RemindersFound int      `json:"remindersFound"`
			RemindersSent  int      `json:"remindersSent"`
			Errors         []string `json:"errors"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printSuccess("Swept %d users: %d due, %d sent", report.UsersChecked, report.RemindersFound, report.RemindersSent)
		for _, e := range report.Errors {
			printError("%s", e)
		}
		return nil
	},
}

// --- item ---

var itemCmd = &cobra.Command{
	Use:   "item <id>",
	Short: "Show a single saved item as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/items/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var item any
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	},
}
