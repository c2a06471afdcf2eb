package commands

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/workflow"
)

// RepairCmd runs the repair workflow
var RepairCmd = &cobra.Command{
	Use:   "repair [file]",
	Short: "Repair structured data",
	Long: `Repair structured data until it validates, then score it and either
publish it or park it for review.

With a file argument the file's contents are repaired under --subject
(default: the file name without extension). With --content the stored
schema of that content item is repaired. With --all every item in the
content directory is repaired concurrently.`,
	Example: `  ldschema repair page.jsonld
  ldschema repair --content about
  ldschema repair --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepair,
}

func init() {
	RepairCmd.Flags().String("subject", "", "Subject id for a repaired file")
	RepairCmd.Flags().String("content", "", "Repair the stored schema of this content item")
	RepairCmd.Flags().Bool("all", false, "Repair every content item")
	RepairCmd.Flags().Bool("json", false, "Output outcomes as JSON")
}

func runRepair(cmd *cobra.Command, args []string) error {
	contentID, _ := cmd.Flags().GetString("content")
	all, _ := cmd.Flags().GetBool("all")
	asJSON, _ := cmd.Flags().GetBool("json")

	modes := 0
	for _, set := range []bool{len(args) == 1, contentID != "", all} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("give exactly one of a file, --content or --all")
	}

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	actor := actorFrom(cmd)

	if all {
		ids, err := a.content.List(ctx)
		if err != nil {
			return err
		}
		outcomes := a.workflow.RepairAll(ctx, ids, actor)
		if asJSON {
			return printJSON(cmd, outcomes)
		}
		return printOutcomes(outcomes)
	}

	var out *workflow.Outcome
	if contentID != "" {
		out, err = a.workflow.Repair(ctx, contentID, actor)
	} else {
		var data []byte
		data, err = readInput(cmd, args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", args[0])
		}
		subject, _ := cmd.Flags().GetString("subject")
		if subject == "" {
			subject = subjectFromPath(args[0])
		}
		out, err = a.workflow.RepairRaw(ctx, subject, string(data), actor)
	}
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(cmd, out)
	}
	printOutcome(out)
	return nil
}

func subjectFromPath(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
