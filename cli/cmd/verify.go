package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/islet/cli/output"
	"github.com/fluxbase-eu/islet/internal/hydrate/htmldom"
)

var verifySlotID string

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Check that a rendered page can be hydrated",
	Long: `Parse a rendered HTML page and check its hydration roots against the
manifest embedded in the page: every root needs its attributes, roots cannot be
nested, every component needs an island script and every props hash must be
present. Use "-" to read the page from stdin.

Examples:
  islet verify dist/index.html
  curl -s localhost:3000/ | islet verify -`,
	Args:    cobra.ExactArgs(1),
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close() //nolint:errcheck // read-only
			r = file
		}

		doc, err := htmldom.Parse(r)
		if err != nil {
			return err
		}

		slotID := verifySlotID
		if slotID == "" {
			slotID = cfg.Manifest.SlotID
		}

		report, err := htmldom.Verify(doc, slotID)
		if err != nil {
			if htmldom.IsManifestUnavailable(err) {
				return fmt.Errorf("no manifest found in #%s: %w", slotID, err)
			}
			return err
		}

		f := GetFormatter()
		if f.Format != output.FormatTable {
			if err := f.Print(report.Problems); err != nil {
				return err
			}
		} else if !report.OK() {
			data := output.TableData{Headers: []string{"ROOT", "PROBLEM"}}
			for _, problem := range report.Problems {
				data.Rows = append(data.Rows, []string{problem.Root, problem.Message})
			}
			f.PrintTable(data)
		}

		if !report.OK() {
			return fmt.Errorf("%d hydration problem(s) in %d root(s)", len(report.Problems), report.Roots)
		}
		f.PrintSuccess(fmt.Sprintf("%d hydration root(s) OK", report.Roots))
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifySlotID, "slot", "", "id of the manifest script element (default manifest.slot_id)")
}
