// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared across the client:
// conversations and their message logs, catalog model descriptors, and
// the download phase state machine.
//
// The download Phase type is the heart of the client's consistency
// story. Every phase mutation is validated through Phase.CanTransition,
// and the invariant "an active phase implies a live poll loop, a
// terminal phase implies none" is enforced by the download package on
// every transition.
package model
