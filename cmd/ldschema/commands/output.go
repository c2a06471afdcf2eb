package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/workflow"
)

// printJSON writes v indented to the command's stdout
func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// readInput reads a file, or stdin for "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func printReport(report jsonld.Report) {
	if report.Valid {
		pterm.Success.Println("Valid")
	} else {
		pterm.Error.Printfln("Invalid: %d error(s)", len(report.Errors))
	}
	for _, e := range report.Errors {
		pterm.Printfln("  ✗ %s", e)
	}
	for _, w := range report.Warnings {
		pterm.Printfln("  ! %s", w)
	}
}

func printOutcome(out *workflow.Outcome) {
	switch out.State {
	case quality.StatePublished:
		pterm.Success.Printfln("%s %s: published (confidence %.2f, %d retries)",
			out.Operation, out.SubjectID, out.Overall, out.RetryCount)
	case quality.StatePendingReview:
		pterm.Warning.Printfln("%s %s: pending review: %s", out.Operation, out.SubjectID, out.Reason)
	default:
		pterm.Info.Printfln("%s %s: %s", out.Operation, out.SubjectID, out.State)
	}
	for _, e := range out.Report.Errors {
		pterm.Printfln("  ✗ %s", e)
	}
}

func printOutcomes(outcomes []workflow.Outcome) error {
	data := pterm.TableData{{"Subject", "State", "Confidence", "Retries", "Detail"}}
	for _, out := range outcomes {
		detail := out.Reason
		if out.Error != "" {
			detail = out.Error
		}
		data = append(data, []string{
			out.SubjectID,
			string(out.State),
			fmt.Sprintf("%.2f", out.Overall),
			fmt.Sprintf("%d", out.RetryCount),
			truncate(detail, 60),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
