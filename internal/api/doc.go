// Package api is the JSON client for the gateway's conversation endpoints.
//
// It covers the non-streaming surface: listing, creating, renaming, and
// deleting conversations, plus fetching message history. Responses arrive in
// several envelope shapes depending on gateway version; the client normalizes
// bare arrays and the known wrapper keys before decoding.
//
// Streaming sends live in the transport package.
package api
