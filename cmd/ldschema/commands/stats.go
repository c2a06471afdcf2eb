package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// StatsCmd shows validation health and completion usage
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show validation health, the review backlog and completion usage",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	StatsCmd.Flags().Duration("since", 24*time.Hour, "Window for completion usage")
	StatsCmd.Flags().Int("limit", 10, "Number of recent events to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	ctx := cmd.Context()

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.events.Stats(ctx)
	if err != nil {
		return err
	}
	pending, err := a.review.Count(ctx)
	if err != nil {
		return err
	}
	usage, err := a.tracker.GetUsageStats(ctx, time.Now().Add(-since))
	if err != nil {
		return err
	}
	byClass, err := a.tracker.GetErrorBreakdown(ctx, time.Now().Add(-since))
	if err != nil {
		return err
	}
	recent, err := a.events.Recent(ctx, limit)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Validation")
	pterm.Printfln("Database:        %s", a.cfg.Database.Path)
	pterm.Printfln("Subjects:        %d", stats.Total)
	pterm.Printfln("Invalid:         %d", stats.Invalid)
	pterm.Printfln("Fixes:           %d", stats.Fixes)
	pterm.Printfln("Health:          %d%%", stats.Health)
	pterm.Printfln("Pending review:  %d", pending)

	pterm.DefaultSection.Printfln("Completion usage (last %s)", since)
	pterm.Printfln("Requests:        %d (%.0f%% successful)", usage.TotalRequests, usage.SuccessRate*100)
	pterm.Printfln("Cache hits:      %d", usage.CacheHits)
	pterm.Printfln("Tokens:          %d", usage.TotalTokens)
	for _, c := range byClass {
		pterm.Printfln("  %-14s %d", c.ErrorClass+":", c.Count)
	}

	if len(recent) == 0 {
		return nil
	}
	pterm.DefaultSection.Println("Recent events")
	data := pterm.TableData{{"Time", "Type", "Status", "Subject", "Message"}}
	for _, e := range recent {
		subject := e.SubjectID
		if e.URL != "" {
			subject = e.URL
		}
		data = append(data, []string{
			e.CreatedAt.Local().Format("01-02 15:04:05"),
			e.Type,
			e.Status,
			truncate(subject, 40),
			truncate(e.Message, 50),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
