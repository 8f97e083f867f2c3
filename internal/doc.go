// Package internal contains the core implementation packages for kiln.
//
// These packages follow Go's internal package convention and are only
// consumed by the kiln CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - expr: Expression parsing and evaluation for {{ }} and directives
//   - template: Template compilation into render functions, with a cache
//   - markup: Rendered markup to keyed open/close/text instructions
//   - patch: Patch function cache (LRU) and keyed replay into a tree
//   - dom: In-memory element tree with shadow roots and event dispatch
//   - scheduler: Event loop with tasks, frames and idle callbacks
//   - component: Reactive component instances, fields and handlers
//   - registry: Component definitions and dependency graph
//   - document: Hosts instances and upgrades nested component tags
//   - manifest: YAML component manifests
//   - watcher: File watching with debouncing and manifest hot reload
//   - bridge: WebSocket bridge serving components to a browser
//   - middleware: HTTP middleware in front of the bridge
//   - config: Configuration loading with viper, and validation
//   - errors: Typed errors, error handling and diagnostics
//   - logging: Structured logging on log/slog
//
// # Rendering Pipeline
//
// A render flows through the packages in order:
//
//   - template compiles the component template once per source
//   - component renders it against the instance model
//   - markup and patch turn the output into a cached patch function
//   - patch replays it into the instance's shadow root by key
//   - component attaches host-level listeners for the bindings
//
// Every instance belongs to one runtime and is only touched from its
// scheduler loop goroutine.
package internal
