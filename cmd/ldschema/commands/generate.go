package commands

import (
	"github.com/spf13/cobra"
)

// GenerateCmd generates structured data for a content item
var GenerateCmd = &cobra.Command{
	Use:     "generate <content-id>",
	Short:   "Generate structured data for a content item",
	Example: `  ldschema generate careers-engineer --type JobPosting`,
	Args:    cobra.ExactArgs(1),
	RunE:    runGenerate,
}

func init() {
	GenerateCmd.Flags().String("type", "", "schema.org type to generate (required)")
	GenerateCmd.Flags().Bool("json", false, "Output the outcome as JSON")
	GenerateCmd.MarkFlagRequired("type")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	schemaType, _ := cmd.Flags().GetString("type")

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.workflow.Generate(cmd.Context(), args[0], schemaType, actorFrom(cmd))
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, out)
	}
	printOutcome(out)
	return nil
}
