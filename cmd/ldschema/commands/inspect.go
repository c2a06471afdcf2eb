package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// InspectCmd validates the structured data of a live page
var InspectCmd = &cobra.Command{
	Use:   "inspect <url>",
	Short: "Fetch a live page and validate its JSON-LD",
	Long: `Fetch a page over HTTP(S), extract every <script type="application/ld+json">
block and validate them together as one graph. Results are cached; run
'ldschema cache clear' to force a refetch.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	InspectCmd.Flags().Bool("json", false, "Output the inspection as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	insp, err := a.inspector.Inspect(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, insp)
	}

	source := "fetched"
	if insp.Cached {
		source = "cached"
	}
	pterm.Info.Printfln("%s (%s): %d block(s), types: %s", insp.URL, source, insp.Blocks, strings.Join(insp.Types, ", "))
	printReport(insp.Report)
	return nil
}
