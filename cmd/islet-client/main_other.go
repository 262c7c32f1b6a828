//go:build !(js && wasm)

package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	log.Fatal().Msg("islet-client runs in the browser; build it with GOOS=js GOARCH=wasm")
}
