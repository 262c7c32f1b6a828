package cmd

import (
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/islet/cli/output"
	"github.com/fluxbase-eu/islet/internal/build"
)

var componentsCmd = &cobra.Command{
	Use:   "components",
	Short: "List the components found below the source directory",
	Long: `List component files (PascalCase .ts/.tsx/.js/.jsx files) below the source
directory and whether each has a default export.`,
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		builder, err := build.NewBuilder(cfg.Build)
		if err != nil {
			return err
		}

		components, err := build.DiscoverComponents(builder.SourceDir())
		if err != nil {
			return err
		}

		f := GetFormatter()
		if f.Format != output.FormatTable {
			return f.Print(components)
		}

		data := output.TableData{Headers: []string{"NAME", "PATH", "DEFAULT EXPORT"}}
		for _, component := range components {
			path, err := filepath.Rel(builder.SourceDir(), component.Path)
			if err != nil {
				path = component.Path
			}
			data.Rows = append(data.Rows, []string{component.Name, path, strconv.FormatBool(component.HasDefaultExport)})
		}
		f.PrintTable(data)
		return nil
	},
}
