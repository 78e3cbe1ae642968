// Package render exports conversation transcripts to HTML and Markdown.
//
// Assistant output is Markdown by convention, so HTML export runs it through
// goldmark. User input is untrusted text and is escaped verbatim.
package render
