package build

// RuntimeNamespace is the esbuild namespace serving the registration shim
const RuntimeNamespace = "islet-runtime"

// runtimeShim is what island bundles import as the runtime module. When the
// coordinator is already running it registers immediately, otherwise the call
// is queued on __isletRegistry and drained once the coordinator starts.
const runtimeShim = `const queue = (globalThis.__isletRegistry = globalThis.__isletRegistry || []);

export function __internal__hydrateIsland(identifier, component) {
  if (typeof globalThis.__isletRegister === "function") {
    globalThis.__isletRegister(identifier, component);
  } else {
    queue.push([identifier, component]);
  }
  return component;
}
`
