// Package compact shrinks conversation histories that have outgrown a
// model's context window.
//
// A Window decides when compaction is needed. A Compactor applies one of
// four strategies, from plain tail retention to a full rewrite where eight
// parallel extraction passes distill the conversation into a single
// synthetic assistant message.
package compact
