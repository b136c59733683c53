// Package agent drives the multi-turn conversation between a user, a model
// backend, and a set of invocable tools.
//
// A Loop owns one conversation run: it calls the provider, dispatches the
// model's tool calls through an Executor, watches the context window, and
// compacts the history when it grows too large. Tools live in a Registry
// keyed by name and tagged with a capability used for permission gating and
// for keeping agent-spawning tools out of nested runs.
package agent
