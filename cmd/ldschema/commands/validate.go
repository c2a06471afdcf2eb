package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/catalog"
	"github.com/teranos/ldschema/jsonld/repair"
	"github.com/teranos/ldschema/jsonld/validate"
	"github.com/teranos/ldschema/logger"
)

// ValidateCmd validates a document without touching the database
var ValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a JSON-LD document",
	Long: `Validate a JSON-LD document (object, array or @graph wrapper) against the
schema.org type catalog. Use - to read from stdin. Exits non-zero when the
document is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	ValidateCmd.Flags().Bool("json", false, "Output the report as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}
	doc, err := jsonld.Parse(data)
	if err != nil {
		return errors.Wrapf(err, "%s is not valid JSON", args[0])
	}

	v := validate.New(catalog.Default(), validate.WithLogger(logger.Logger))
	report := repair.New(nil, v).Check(doc)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if !report.Valid {
		return errors.Newf("%s: %d validation error(s)", args[0], len(report.Errors))
	}
	return nil
}
