package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/islet/cli/output"
	"github.com/fluxbase-eu/islet/internal/api"
	"github.com/fluxbase-eu/islet/internal/assets"
)

var manifestBuilds bool

var manifestCmd = &cobra.Command{
	Use:   "manifest [build-id]",
	Short: "Show a stored build manifest",
	Long: `Show the latest stored build manifest, or the manifest of the given build.

Examples:
  islet manifest
  islet manifest 3f2b8c1e-... -o yaml
  islet manifest --builds`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		deps, err := api.NewDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.Close(ctx)

		f := GetFormatter()

		if manifestBuilds {
			builds, err := deps.Store.Builds(ctx)
			if err != nil {
				return err
			}
			data := output.TableData{Headers: []string{"KEY", "SIZE", "MODIFIED"}}
			for _, build := range builds {
				data.Rows = append(data.Rows, []string{
					build.Key,
					fmt.Sprintf("%d", build.Size),
					build.LastModified.Format("2006-01-02 15:04:05"),
				})
			}
			f.PrintTable(data)
			return nil
		}

		var m *assets.BuildManifest
		if len(args) == 1 {
			m, err = deps.Store.LoadBuild(ctx, args[0])
		} else {
			m, err = deps.Store.Load(ctx)
		}
		if err != nil {
			return err
		}

		if f.Format != output.FormatTable {
			return f.Print(m)
		}

		f.PrintKeyValue("Build", m.BuildID)
		f.PrintKeyValue("Created", m.CreatedAt.Format("2006-01-02 15:04:05"))
		printEntries(f, m.Entries)
		return nil
	},
}

func init() {
	manifestCmd.Flags().BoolVar(&manifestBuilds, "builds", false, "list stored builds instead")
}
