// Package core provides the business logic for lock audit log exports.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"strconv"
	"time"
)

// LogEntry is one audit record of a lock-triggering command.
//
// Foreign keys are nil when the entry does not reference that entity.
// EntryNo is nil when the remote sends null or omits it.
type LogEntry struct {
	ID            string  `json:"id"`
	EntryNo       *int64  `json:"entryNo"`
	LockTimestamp string  `json:"lockTimestamp"`
	ReceivedAt    string  `json:"receivedAt"`
	BoundLockID   *string `json:"boundLockId"`
	BoundCardID   *string `json:"boundCardId"`
	ContactID     *string `json:"contactId"`
}

// Contact is a person known to an owner account.
type Contact struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
}

// BoundCard is an NFC transponder registered with an owner account.
type BoundCard struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// BoundLock is a physical lock registered with an owner account.
// PhysicalLockID is base64 packed binary (see DecodeLockID).
type BoundLock struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	PhysicalLockID string `json:"physicalLockId"`
}

// OwnerAccount is a tenant scope under which locks, contacts and cards live.
type OwnerAccount struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	BoundLocks []BoundLock `json:"-"`
}

// Scope selects what an export covers: every lock of an owner account, or a
// single bound lock when BoundLockID is set.
type Scope struct {
	OwnerAccountID string
	BoundLockID    string
}

// ScopeKind distinguishes the two export variants.
type ScopeKind string

const (
	ScopeAccount ScopeKind = "account"
	ScopeLock    ScopeKind = "lock"
)

// Kind returns the export variant for s.
func (s Scope) Kind() ScopeKind {
	if s.BoundLockID != "" {
		return ScopeLock
	}
	return ScopeAccount
}

// LookupMode controls how referenced entities are resolved.
type LookupMode string

const (
	// LookupBatch fetches only the referenced ids through id filters.
	LookupBatch LookupMode = "batch"
	// LookupFull pages through the whole collection.
	LookupFull LookupMode = "full"
)

// ExportRow is one log entry joined with whatever it references.
// Nil pointers are unresolved references and render as empty fields.
type ExportRow struct {
	Entry      LogEntry
	Contact    *Contact
	Card       *BoundCard
	Lock       *BoundLock
	LockSerial *string
}

// Account scope columns.
var accountColumns = []string{
	"BoundLockId",
	"Lock Serial Number",
	"Lock Name",
	"Contact ID",
	"Contact Identifier",
	"NFC Transponder ID",
	"NFC Transponder Title",
	"Lock Timestamp",
	"Entry Number",
	"Received At",
	"ID",
}

// Lock scope columns. The lock itself is implied by the file.
var lockColumns = []string{
	"Contact ID",
	"Contact Email",
	"NFC Transponder ID",
	"NFC Transponder Title",
	"Lock Timestamp",
	"Entry Number",
	"Received At",
	"ID",
}

// Columns returns the CSV header for kind.
func Columns(kind ScopeKind) []string {
	if kind == ScopeLock {
		return append([]string(nil), lockColumns...)
	}
	return append([]string(nil), accountColumns...)
}

// Values flattens r into the column order of Columns(kind).
func (r ExportRow) Values(kind ScopeKind) []string {
	e := r.Entry
	entryNo := formatInt(e.EntryNo)

	if kind == ScopeLock {
		var email string
		if r.Contact != nil {
			email = r.Contact.Email
		}
		return []string{
			deref(e.ContactID),
			email,
			deref(e.BoundCardID),
			cardTitle(r.Card),
			e.LockTimestamp,
			entryNo,
			e.ReceivedAt,
			e.ID,
		}
	}

	var lockID, lockTitle, identifier string
	if r.Lock != nil {
		lockID = r.Lock.ID
		lockTitle = r.Lock.Title
	}
	if r.Contact != nil {
		identifier = r.Contact.Identifier
	}
	return []string{
		lockID,
		deref(r.LockSerial),
		lockTitle,
		deref(e.ContactID),
		identifier,
		deref(e.BoundCardID),
		cardTitle(r.Card),
		e.LockTimestamp,
		entryNo,
		e.ReceivedAt,
		e.ID,
	}
}

// Report is the finished, not yet encoded, result of one export.
type Report struct {
	Scope       Scope
	Kind        ScopeKind
	Columns     []string
	Rows        []ExportRow
	Filename    string
	GeneratedAt time.Time
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatInt(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func cardTitle(c *BoundCard) string {
	if c == nil {
		return ""
	}
	return c.Title
}
