package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ReviewCmd manages the review queue
var ReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage results awaiting human review",
	Long: `Results that did not converge or scored below the confidence threshold
wait here. Approving publishes the parked candidate; discarding drops it
and leaves any previously published data live.

Examples:
  ldschema review ls              # List pending entries
  ldschema review approve about   # Publish the parked candidate
  ldschema review discard about   # Drop it`,
}

var reviewLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List pending review entries",
	Args:    cobra.NoArgs,
	RunE:    runReviewLs,
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <subject-id>",
	Short: "Publish a parked candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewApprove,
}

var reviewDiscardCmd = &cobra.Command{
	Use:   "discard <subject-id>",
	Short: "Drop a parked candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewDiscard,
}

func init() {
	reviewLsCmd.Flags().Bool("json", false, "Output entries as JSON")

	ReviewCmd.AddCommand(reviewLsCmd)
	ReviewCmd.AddCommand(reviewApproveCmd)
	ReviewCmd.AddCommand(reviewDiscardCmd)
}

func runReviewLs(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.review.Pending(cmd.Context())
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, entries)
	}
	if len(entries) == 0 {
		pterm.Info.Println("Review queue is empty")
		return nil
	}

	data := pterm.TableData{{"Subject", "Confidence", "Flagged", "Reason"}}
	for _, e := range entries {
		data = append(data, []string{
			e.SubjectID,
			fmt.Sprintf("%.2f", e.Confidence),
			e.FlaggedAt.Local().Format("2006-01-02 15:04"),
			truncate(e.Reason, 70),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runReviewApprove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.workflow.Approve(cmd.Context(), args[0], actorFrom(cmd))
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func runReviewDiscard(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.workflow.Discard(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}
