package render

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/fluxbase-eu/islet/internal/manifest"
	"github.com/fluxbase-eu/islet/internal/observability"
)

// DefaultSlotID is the id of the script element carrying the manifest
const DefaultSlotID = "__isletManifest"

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{.Head}}
<script id="{{.SlotID}}" type="application/json">{{.Manifest}}</script>
{{range .Scripts}}<script type="module" src="{{.}}"></script>
{{end}}</head>
<body>
{{.Body}}
</body>
</html>
`))

// DocumentData is the input of Document
type DocumentData struct {
	Lang     string
	Title    string
	Head     template.HTML
	Body     template.HTML
	Manifest *manifest.Manifest
	SlotID   string
	Metrics  *observability.Metrics
}

// Title joins prefix, title and suffix with separator, skipping empty parts
func Title(title, prefix, suffix, separator string) string {
	if separator == "" {
		separator = " | "
	}
	parts := make([]string, 0, 3)
	for _, part := range []string{prefix, title, suffix} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, separator)
}

// Document writes a complete HTML page: the manifest goes into the slot element
// and every asset of the manifest is loaded as a module script.
func Document(w io.Writer, data DocumentData) error {
	m := data.Manifest
	if m == nil {
		m = manifest.NewBuilder(manifest.Options{LimitClientManifest: true}).Build()
	}

	encoded, err := manifest.Encode(m)
	if err != nil {
		return err
	}
	if data.Metrics != nil {
		data.Metrics.RecordManifestSize(len(encoded))
	}

	slotID := data.SlotID
	if slotID == "" {
		slotID = DefaultSlotID
	}
	lang := data.Lang
	if lang == "" {
		lang = "en"
	}

	scripts := make([]string, 0, len(m.Assets))
	for _, asset := range m.Assets {
		scripts = append(scripts, asset.Path)
	}

	err = documentTemplate.Execute(w, struct {
		Lang     string
		Title    string
		Head     template.HTML
		Body     template.HTML
		SlotID   string
		Manifest template.JS
		Scripts  []string
	}{
		Lang:     lang,
		Title:    data.Title,
		Head:     data.Head,
		Body:     data.Body,
		SlotID:   slotID,
		Manifest: template.JS(encoded), //nolint:gosec // HTML-safe JSON from manifest.Encode
		Scripts:  scripts,
	})
	if err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	return nil
}
