// Package message defines the conversation data model shared by every
// component of the runtime: messages, their tagged-union content blocks,
// usage metadata, and the pairing invariants between tool-use and
// tool-result blocks.
//
// A conversation history is an ordered, append-only []Message owned by one
// agent loop run. Messages are immutable once appended, with one exception:
// large binary payloads (image and document bytes) may be released in place
// and replaced by a size-bearing placeholder once the provider has consumed
// them, to bound memory in long conversations.
package message
