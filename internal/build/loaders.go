package build

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ErrUnknownLoader is returned for source files whose extension has no loader
var ErrUnknownLoader = errors.New("no loader for file")

// loaders maps file extensions to esbuild loaders. Plain .js sources may contain JSX.
var loaders = map[string]api.Loader{
	".aac":   api.LoaderFile,
	".eot":   api.LoaderFile,
	".flac":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".ico":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".jpg":   api.LoaderFile,
	".js":    api.LoaderJSX,
	".jsx":   api.LoaderJSX,
	".json":  api.LoaderJSON,
	".mp3":   api.LoaderFile,
	".mp4":   api.LoaderFile,
	".ogg":   api.LoaderFile,
	".otf":   api.LoaderFile,
	".png":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".ts":    api.LoaderTS,
	".tsx":   api.LoaderTSX,
	".ttf":   api.LoaderFile,
	".wav":   api.LoaderFile,
	".webm":  api.LoaderFile,
	".webp":  api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
}

// LoaderForFile returns the esbuild loader for path based on its extension
func LoaderForFile(path string) (api.Loader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if loader, ok := loaders[ext]; ok {
		return loader, nil
	}
	return api.LoaderNone, fmt.Errorf("%w %s", ErrUnknownLoader, path)
}

// Loaders returns the extension table in the form esbuild's Loader option expects
func Loaders() map[string]api.Loader {
	out := make(map[string]api.Loader, len(loaders))
	for ext, loader := range loaders {
		out[ext] = loader
	}
	return out
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// TargetFor maps a configured target name such as "es2020" to the esbuild constant
func TargetFor(name string) (api.Target, error) {
	if name == "" {
		return api.ES2020, nil
	}
	target, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unsupported build target: %s", name)
	}
	return target, nil
}

// outputLoader picks the loader used to minify an output file, if any
func outputLoader(path string) (api.Loader, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs":
		return api.LoaderJS, true
	case ".css":
		return api.LoaderCSS, true
	default:
		return api.LoaderNone, false
	}
}
