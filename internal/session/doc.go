// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the client's in-memory view of the backend's
// conversations: the list, the single selection, and the lazily fetched
// per-conversation message logs.
//
// Invariants maintained here:
//   - Zero or one conversation is selected; selection only ever moves
//     to an id present in the current list.
//   - A fetched log is authoritative until the next fetch or mutation;
//     placeholder entries are local-only and removed on every settle.
//   - Deleting the selected conversation reselects a survivor, or
//     reports that a fresh conversation must be created.
//
// Nothing in this package persists across process exit.
package session
