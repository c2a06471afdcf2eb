package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ldschema/errors"
)

// HistoryCmd manages schema version history
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List, diff or restore published schema versions",
	Long: `Every publication saves a version; the oldest are dropped beyond
history.limit. Index 0 is the oldest kept version.

Examples:
  ldschema history ls about           # List versions
  ldschema history diff about 0 2     # Compare two versions
  ldschema history restore about 1    # Republish version 1`,
}

var historyLsCmd = &cobra.Command{
	Use:     "ls <content-id>",
	Aliases: []string{"list"},
	Short:   "List versions of a content item's schema",
	Args:    cobra.ExactArgs(1),
	RunE:    runHistoryLs,
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore <content-id> <index>",
	Short: "Republish a previous version",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryRestore,
}

var historyDiffCmd = &cobra.Command{
	Use:   "diff <content-id> <index-a> <index-b>",
	Short: "Show top-level fields added, removed and changed between two versions",
	Args:  cobra.ExactArgs(3),
	RunE:  runHistoryDiff,
}

func init() {
	historyLsCmd.Flags().Bool("json", false, "Output versions as JSON")

	HistoryCmd.AddCommand(historyLsCmd)
	HistoryCmd.AddCommand(historyRestoreCmd)
	HistoryCmd.AddCommand(historyDiffCmd)
}

func runHistoryLs(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	versions, err := a.history.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, versions)
	}
	if len(versions) == 0 {
		pterm.Info.Printfln("No versions saved for %s", args[0])
		return nil
	}

	data := pterm.TableData{{"Index", "Saved", "User", "Size"}}
	for i, v := range versions {
		data = append(data, []string{
			strconv.Itoa(i),
			v.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			v.UserName,
			fmt.Sprintf("%d B", len(v.Data)),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runHistoryRestore(cmd *cobra.Command, args []string) error {
	index, err := parseIndex(args[1])
	if err != nil {
		return err
	}

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.workflow.Restore(cmd.Context(), args[0], index, actorFrom(cmd))
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func runHistoryDiff(cmd *cobra.Command, args []string) error {
	ia, err := parseIndex(args[1])
	if err != nil {
		return err
	}
	ib, err := parseIndex(args[2])
	if err != nil {
		return err
	}

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	diff, err := a.history.Compare(cmd.Context(), args[0], ia, ib)
	if err != nil {
		return err
	}

	if len(diff.Added)+len(diff.Removed)+len(diff.Changed) == 0 {
		pterm.Info.Println("Versions are identical at the top level")
		return nil
	}
	for _, k := range sortedKeys(diff.Added) {
		pterm.Printfln("+ %s", k)
	}
	for _, k := range sortedKeys(diff.Removed) {
		pterm.Printfln("- %s", k)
	}
	for _, k := range sortedKeys(diff.Changed) {
		pterm.Printfln("~ %s", k)
	}
	return nil
}

func parseIndex(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewInvalidRequestError("index must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
