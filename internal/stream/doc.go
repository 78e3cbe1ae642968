// Package stream aggregates incremental assistant output into messages.
//
// The backend delivers an answer as a sequence of partial-text chunks
// correlated by a response id. The Aggregator owns that correlation: Begin
// opens an empty assistant message, ApplyChunk appends text in strict
// arrival order (partial UTF-8 and Markdown tokens may span chunk
// boundaries, so chunks are never reordered or coalesced), and Finish or
// Fail seals the message as terminal.
//
// Once terminal, a message is never mutated again. Chunks addressed to an
// unknown or terminal response id are silently dropped rather than raising;
// that is what makes late callbacks from cancelled streams inert.
package stream
