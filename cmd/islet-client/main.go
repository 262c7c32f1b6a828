//go:build js && wasm

// Command islet-client is the browser hydration coordinator, built with
// GOOS=js GOARCH=wasm. Island bundles register their components through
// globalThis.__isletRegister; registrations queued on __isletRegistry before
// start-up are drained first.
package main

import (
	"os"
	"syscall/js"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/islet/internal/hydrate"
	"github.com/fluxbase-eu/islet/internal/hydrate/jsdom"
)

const slotID = "__isletManifest"

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	doc := jsdom.NewDocument()
	manager := hydrate.NewManager(doc.ObserverFactory(), hydrate.NewManifestCache(doc.Slot(slotID)))

	register := func(args []js.Value) {
		if len(args) < 2 {
			log.Error().Msg("Island registration needs an identifier and a component")
			return
		}
		manager.RegisterComponent(args[0].String(), jsdom.Component{Value: args[1]})
	}

	queue := js.Global().Get("__isletRegistry")
	if queue.Type() == js.TypeObject {
		for i := 0; i < queue.Length(); i++ {
			entry := queue.Index(i)
			register([]js.Value{entry.Index(0), entry.Index(1)})
		}
		queue.Set("length", 0)
	}

	js.Global().Set("__isletRegister", js.FuncOf(func(this js.Value, args []js.Value) any {
		register(args)
		return nil
	}))

	hydrateRoots := func() {
		count := manager.HydrateRoots(doc)
		log.Info().Int("roots", count).Msg("Observing hydration roots")
	}

	if js.Global().Get("document").Get("readyState").String() == "loading" {
		js.Global().Get("document").Call("addEventListener", "DOMContentLoaded",
			js.FuncOf(func(this js.Value, args []js.Value) any {
				hydrateRoots()
				return nil
			}))
	} else {
		hydrateRoots()
	}

	select {}
}
