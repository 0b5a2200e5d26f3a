// Package core provides the business logic for lock audit log exports.
//
// This package is the heart of the exporter, containing all domain logic
// independent of any UI, session or transport layer. It talks to the lock
// platform only through the [Client] interface, so it can be driven by web
// handlers, a CLI or tests with a fake client.
//
// # Pipeline
//
// An export joins four remote collections into one table:
//
//  1. Log entries of the scope are paged with [FetchAll] ($skip/$top, stop on
//     a short page), restricted server side to TriggerLock commands
//  2. The distinct contact, card and lock ids they reference are collected in
//     a [KeySet] per collection
//  3. [ResolveByID] fetches just those entities with chunked `id eq` filters
//     (or the whole collection when [LookupFull] is configured)
//  4. Rows are joined in fetch order; each lock's physical id is decoded once
//     with [DecodeLockID]
//
// [EncodeReport] then writes the header and rows with every field quoted.
//
// # Scopes
//
// A [Scope] covers either a whole owner account or a single bound lock. The
// two variants have different column layouts; see [Columns].
//
// # Error Handling
//
// [ValidationError] is raised before any remote call, [RetrievalError] aborts
// the whole export (no partial CSV is ever produced), and [DecodeError] is
// handled fail-soft: the row keeps an empty serial and a warning is logged.
// Technical errors are mapped to user-friendly messages with [MapError].
package core
