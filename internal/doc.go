// Package internal contains the implementation packages of the trattoria
// site. They are not importable from outside the module.
//
// # Package Organization
//
//   - content: page and section records, typed section bodies, the repository contract
//   - storage: SQLite and in-memory repositories, plus the deadline and breaker guard
//   - registry: section type tag to render function lookup
//   - renderer: the built-in section renderers and HTML sanitizing
//   - defaults: curated content shown for pages with no visible sections
//   - composer: turns a slug into ordered rendered blocks with a state
//   - editor: per-section draft sessions and the save pipeline
//   - pubsub: in-process change events
//   - websocket: pushes change events to open browser tabs
//   - seed: YAML page provisioning and the seed file watcher
//   - server: public pages, JSON API, admin API, health and metrics
//   - config, logging, errors, metrics, validation, version: ambient support
//
// # Data Flow
//
// Admin edits go through the editor, which writes via the guarded repository
// and publishes a change event on success. The websocket manager forwards
// events to connected tabs, which refetch the affected page from the JSON
// API. Reads go through the composer, which never fails a visitor request
// for a missing or empty page; it falls back to defaults instead and only
// reports unavailable when storage itself cannot be read.
//
// # Testing Strategy
//
//   - Unit tests with testify in every package
//   - Property tests behind the "property" build tag, using gopter
//   - Fuzz tests for slug, config and registry inputs
//   - End-to-end tests over httptest servers and real websocket clients
package internal
