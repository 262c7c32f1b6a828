package cmd

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/manifest"
	"github.com/fluxbase-eu/islet/internal/render"
)

// runCLI executes the root command and returns what it printed
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		outputFmt, cfgFile, verifySlotID = "table", "", ""
		formatter = nil
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writePage(t *testing.T, nested bool) string {
	t.Helper()

	builder := manifest.NewBuilder(manifest.Options{
		BuildManifest: &assets.BuildManifest{
			Schema: assets.BuildManifestSchema,
			Entries: []assets.Entry{
				{Key: "Counter.island.js", Type: assets.IslandScript, PublicPath: "/build/Counter.island.js", Islands: []string{"Counter"}},
			},
		},
		LimitClientManifest: true,
	})
	session := render.NewSession(builder, nil)

	root, err := session.Root("Counter", map[string]int{"start": 1}, nil)
	require.NoError(t, err)
	if nested {
		root = template.HTML(strings.Replace(string(root), "></div>", ">"+string(root)+"</div>", 1))
	}

	var page strings.Builder
	require.NoError(t, render.Document(&page, render.DocumentData{Body: root, Manifest: builder.Build()}))

	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(page.String()), 0o644))
	return path
}

// =============================================================================
// verify
// =============================================================================

func TestVerify_OK(t *testing.T) {
	out, err := runCLI(t, "verify", writePage(t, false))

	require.NoError(t, err)
	assert.Contains(t, out, "1 hydration root(s) OK")
}

func TestVerify_NestedRoot(t *testing.T) {
	out, err := runCLI(t, "verify", writePage(t, true))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "hydration problem(s)")
	assert.Contains(t, out, "nested inside root")
}

func TestVerify_MissingManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body></body></html>"), 0o644))

	_, err := runCLI(t, "verify", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no manifest found")
}

// =============================================================================
// components / version
// =============================================================================

func TestComponents_JSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Counter.tsx"), []byte("export default function Counter() {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Badge.ts"), []byte("export const Badge = 1"), 0o644))

	configPath := filepath.Join(dir, "islet.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("build:\n  working_dir: "+dir+"\n  source_dir: src\n"), 0o644))

	out, err := runCLI(t, "components", "--config", configPath, "-o", "json")

	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Badge"`)
	assert.Contains(t, out, `"name": "Counter"`)
	assert.Contains(t, out, `"hasDefaultExport": true`)
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version", "-o", "json")

	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := runCLI(t, "verify", "-o", "xml", "page.html")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}
