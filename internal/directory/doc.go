// Package directory maintains the cached, searchable list of conversation
// summaries shared by every UI surface.
//
// Mutations (create, rename, delete) flow through the Directory's own
// methods: cache updates are optimistic and rolled back when the storage
// collaborator rejects the change. Components that cannot hold a Directory
// reference request a reload through the package-level refresh signal
// (Install / Uninstall / Refresh), which is a safe no-op while no Directory
// is mounted.
//
// Deleting the active conversation triggers fallback selection via the
// ActivePort so the UI is never left pointing at a deleted conversation.
package directory
