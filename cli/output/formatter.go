// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses the --output flag
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
}

// Formatter writes command results in one format. Quiet suppresses everything
// except warnings going to ErrWriter.
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewFormatter creates a formatter writing to stdout and stderr
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Print writes data as JSON or YAML. In table mode flat string maps become
// sorted key/value lines and anything else is written as JSON.
func (f *Formatter) Print(data any) error {
	if f.Quiet {
		return nil
	}

	switch f.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		if values, ok := data.(map[string]string); ok {
			keys := make([]string, 0, len(values))
			for key := range values {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				f.PrintKeyValue(key, values[key])
			}
			return nil
		}
	}

	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Headers []string
	Rows    [][]string
}

// PrintTable writes data as an aligned table, or as a list of header-keyed
// objects in JSON and YAML mode
func (f *Formatter) PrintTable(data TableData) {
	if f.Quiet {
		return
	}

	if f.Format != FormatTable {
		rows := make([]map[string]string, 0, len(data.Rows))
		for _, row := range data.Rows {
			object := make(map[string]string, len(row))
			for i, cell := range row {
				if i < len(data.Headers) {
					object[data.Headers[i]] = cell
				}
			}
			rows = append(rows, object)
		}
		_ = f.Print(rows)
		return
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	}
	// kubectl-style: no borders, tab padded, left aligned
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data.Rows)
	table.Render()
}

// PrintKeyValue writes one "key: value" line
func (f *Formatter) PrintKeyValue(key, value string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintf(f.Writer, "%s: %s\n", key, value)
}

// PrintSuccess writes a closing status line
func (f *Formatter) PrintSuccess(message string) {
	f.PrintInfo(message)
}

// PrintInfo writes a plain line
func (f *Formatter) PrintInfo(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintWarning writes a warning to ErrWriter, even in quiet mode
func (f *Formatter) PrintWarning(message string) {
	_, _ = fmt.Fprintln(f.ErrWriter, "Warning:", message)
}
