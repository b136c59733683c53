// Package provider adapts the internal conversation model to concrete LLM
// backends. It owns the only code aware of wire formats.
//
// A Client wraps one backend Adapter and drives the full request pipeline:
// outbound sanitization, rate pacing, bounded retries with escalating
// per-attempt timeouts, inbound repair of malformed tool-call arguments, and
// cost/usage accounting from the model rate table.
//
// Two interchangeable backend profiles implement Adapter: ChatAPI, a stable
// chat-completions-style backend, and OpenAICompat, a high-throughput
// OpenAI-compatible HTTP backend whose raw tool-call argument strings are
// the primary source of the malformed input the repair pass exists for.
// Backend selection is a configuration concern; see Config.
package provider
