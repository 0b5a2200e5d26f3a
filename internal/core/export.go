package core

// export.go joins log entries with the contacts, cards and locks they
// reference and produces one ExportRow per entry.
//
// The flow for one export:
//  1. Page through the log entries of the scope (only TriggerLock commands,
//     filtered server side)
//  2. Collect the distinct foreign keys per referenced collection
//  3. Resolve contacts, cards and locks concurrently and index them by id
//  4. Emit rows in fetch order, decoding each lock's physical id once
//
// Any fetch failure aborts the export; no partial report is returned.

import (
	"context"
	"strings"
	"time"

	"github.com/JonMunkholm/lockexport/internal/logging"
	"golang.org/x/sync/errgroup"
)

// TriggerLockFilter restricts log entries to lock-trigger commands.
const TriggerLockFilter = "logType eq 'Command' and command eq 'TriggerLock'"

// FilenameTimeLayout is the timestamp layout used in report filenames.
const FilenameTimeLayout = "2006-01-02T150405"

var (
	accountEntryFields = []string{"id", "entryNo", "lockTimestamp", "receivedAt", "boundLockId", "boundCardId", "contactId"}
	lockEntryFields    = []string{"id", "entryNo", "lockTimestamp", "receivedAt", "boundCardId", "contactId"}

	accountContactFields = []string{"id", "identifier"}
	lockContactFields    = []string{"id", "email"}
	cardFields           = []string{"id", "title"}
	lockFields           = []string{"id", "title", "physicalLockId"}
)

// ExportOptions tunes remote retrieval for an export.
type ExportOptions struct {
	// PageSize is the $top used when paging log entries (default: 500).
	PageSize int

	// LookupChunkSize is the maximum number of ids per lookup filter (default: 40).
	LookupChunkSize int

	// LookupMode selects id-filtered lookups or full collection fetches (default: batch).
	LookupMode LookupMode

	// OrderBy is passed through as $orderby for log entries, e.g. "lockTimestamp desc".
	OrderBy string
}

// Exporter builds export reports from the remote API.
// It holds no per-export state and is safe for concurrent use.
type Exporter struct {
	client  Client
	opts    ExportOptions
	metrics Metrics
	now     func() time.Time
}

// NewExporter creates an Exporter that reads through client.
// A nil metrics discards observations.
func NewExporter(client Client, opts ExportOptions, metrics Metrics) *Exporter {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.LookupChunkSize <= 0 {
		opts.LookupChunkSize = DefaultLookupChunkSize
	}
	if opts.LookupMode == "" {
		opts.LookupMode = LookupBatch
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Exporter{
		client:  client,
		opts:    opts,
		metrics: metrics,
		now:     time.Now,
	}
}

// Export retrieves and joins everything in scope.
func (e *Exporter) Export(ctx context.Context, scope Scope) (*Report, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}

	var (
		rows []ExportRow
		err  error
	)
	kind := scope.Kind()
	if kind == ScopeLock {
		rows, err = e.exportLock(ctx, scope)
	} else {
		rows, err = e.exportAccount(ctx, scope)
	}
	if err != nil {
		return nil, err
	}

	generatedAt := e.now()
	return &Report{
		Scope:       scope,
		Kind:        kind,
		Columns:     Columns(kind),
		Rows:        rows,
		Filename:    ReportFilename(scope, generatedAt),
		GeneratedAt: generatedAt,
	}, nil
}

// ValidateScope checks the scope before anything is sent to the remote API.
func ValidateScope(scope Scope) error {
	owner := strings.TrimSpace(scope.OwnerAccountID)
	if owner == "" {
		return &ValidationError{Field: "owner_account_id", Reason: "is required"}
	}
	if !ValidID(owner) {
		return &ValidationError{Field: "owner_account_id", Reason: "is malformed"}
	}
	if scope.BoundLockID != "" && !ValidID(scope.BoundLockID) {
		return &ValidationError{Field: "bound_lock_id", Reason: "is malformed"}
	}
	return nil
}

// ReportFilename returns "{scopeId}_{timestamp}.csv" where scopeId is the
// bound lock for lock scope and the owner account otherwise.
func ReportFilename(scope Scope, at time.Time) string {
	id := scope.OwnerAccountID
	if scope.Kind() == ScopeLock {
		id = scope.BoundLockID
	}
	return id + "_" + at.Format(FilenameTimeLayout) + ".csv"
}

func (e *Exporter) exportAccount(ctx context.Context, scope Scope) ([]ExportRow, error) {
	owner := ownerPath(scope.OwnerAccountID)

	entries, err := FetchAll[LogEntry](ctx, e.client, owner+"/LogEntries", e.entryQuery(accountEntryFields), e.opts.PageSize)
	if err != nil {
		return nil, err
	}

	contactKeys, cardKeys, lockKeys := KeySet{}, KeySet{}, KeySet{}
	for _, entry := range entries {
		contactKeys.Add(entry.ContactID)
		cardKeys.Add(entry.BoundCardID)
		lockKeys.Add(entry.BoundLockID)
	}

	var (
		contacts []Contact
		cards    []BoundCard
		locks    []BoundLock
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		contacts, err = lookup[Contact](gctx, e, owner+"/Contacts", contactKeys, accountContactFields)
		return err
	})
	g.Go(func() (err error) {
		cards, err = lookup[BoundCard](gctx, e, owner+"/BoundCards", cardKeys, cardFields)
		return err
	})
	g.Go(func() (err error) {
		locks, err = lookup[BoundLock](gctx, e, owner+"/BoundLocks", lockKeys, lockFields)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.WithFields(ctx, "owner_account_id", scope.OwnerAccountID).Debug("resolved references",
		"entries", len(entries),
		"contacts", len(contacts),
		"cards", len(cards),
		"locks", len(locks),
	)

	return e.join(ctx, entries, IndexContacts(contacts), IndexCards(cards), IndexLocks(locks), nil), nil
}

func (e *Exporter) exportLock(ctx context.Context, scope Scope) ([]ExportRow, error) {
	owner := ownerPath(scope.OwnerAccountID)
	lockPath := owner + "/BoundLocks/" + scope.BoundLockID

	lock, err := getObject[BoundLock](ctx, e.client, lockPath, nil)
	if err != nil {
		return nil, err
	}

	entries, err := FetchAll[LogEntry](ctx, e.client, lockPath+"/LogEntries", e.entryQuery(lockEntryFields), e.opts.PageSize)
	if err != nil {
		return nil, err
	}

	contactKeys, cardKeys := KeySet{}, KeySet{}
	for _, entry := range entries {
		contactKeys.Add(entry.ContactID)
		cardKeys.Add(entry.BoundCardID)
	}

	var (
		contacts []Contact
		cards    []BoundCard
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		contacts, err = lookup[Contact](gctx, e, owner+"/Contacts", contactKeys, lockContactFields)
		return err
	})
	g.Go(func() (err error) {
		cards, err = lookup[BoundCard](gctx, e, owner+"/BoundCards", cardKeys, cardFields)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return e.join(ctx, entries, IndexContacts(contacts), IndexCards(cards), nil, lock), nil
}

// lookup resolves keys in the collection at path according to the lookup mode.
func lookup[T any](ctx context.Context, e *Exporter, path string, keys KeySet, fields []string) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if e.opts.LookupMode == LookupFull {
		q := Query{}.With(ParamSelect, strings.Join(fields, ","))
		return FetchAll[T](ctx, e.client, path, q, e.opts.PageSize)
	}
	return ResolveByID[T](ctx, e.client, path, keys, fields, e.opts.LookupChunkSize)
}

func (e *Exporter) entryQuery(fields []string) Query {
	return Query{}.
		With(ParamFilter, TriggerLockFilter).
		With(ParamSelect, strings.Join(fields, ",")).
		With(ParamOrderBy, e.opts.OrderBy)
}

// join produces one row per entry, in entry order. When fixed is non-nil every
// row refers to that lock (lock scope); otherwise locks are looked up per entry.
func (e *Exporter) join(ctx context.Context, entries []LogEntry, contacts map[string]*Contact, cards map[string]*BoundCard, locks map[string]*BoundLock, fixed *BoundLock) []ExportRow {
	serials := newSerialCache(func(lock *BoundLock, err error) {
		e.metrics.IncDecodeFailure()
		logging.FromContext(ctx).Warn("physical lock id could not be decoded",
			"bound_lock_id", lock.ID,
			"error", err,
		)
	})

	rows := make([]ExportRow, 0, len(entries))
	for _, entry := range entries {
		row := ExportRow{
			Entry:   entry,
			Contact: lookupRef(contacts, entry.ContactID),
			Card:    lookupRef(cards, entry.BoundCardID),
		}
		if fixed != nil {
			// Lock scope has no serial column.
			row.Lock = fixed
		} else if row.Lock = lookupRef(locks, entry.BoundLockID); row.Lock != nil {
			row.LockSerial = serials.get(row.Lock)
		}
		rows = append(rows, row)
	}
	return rows
}

func ownerPath(ownerAccountID string) string {
	return "Owners/" + ownerAccountID
}

// lookupRef resolves an optional foreign key; nil key or unknown id yields nil.
func lookupRef[T any](index map[string]*T, key *string) *T {
	if key == nil {
		return nil
	}
	return index[*key]
}

// IndexContacts maps contacts by id. Ids are unique in the source collection.
func IndexContacts(contacts []Contact) map[string]*Contact {
	return indexByID(contacts, func(c *Contact) string { return c.ID })
}

// IndexCards maps bound cards by id.
func IndexCards(cards []BoundCard) map[string]*BoundCard {
	return indexByID(cards, func(c *BoundCard) string { return c.ID })
}

// IndexLocks maps bound locks by id.
func IndexLocks(locks []BoundLock) map[string]*BoundLock {
	return indexByID(locks, func(l *BoundLock) string { return l.ID })
}

func indexByID[T any](items []T, id func(*T) string) map[string]*T {
	index := make(map[string]*T, len(items))
	for i := range items {
		index[id(&items[i])] = &items[i]
	}
	return index
}

// serialCache decodes each lock's physical id at most once per export.
// A failed decode is cached as nil so the failure is reported once.
type serialCache struct {
	decoded  map[string]*string
	onFailed func(*BoundLock, error)
}

func newSerialCache(onFailed func(*BoundLock, error)) *serialCache {
	return &serialCache{decoded: make(map[string]*string), onFailed: onFailed}
}

func (c *serialCache) get(lock *BoundLock) *string {
	if s, ok := c.decoded[lock.ID]; ok {
		return s
	}
	var result *string
	if serial, err := DecodeLockID(lock.PhysicalLockID); err != nil {
		c.onFailed(lock, err)
	} else {
		result = &serial
	}
	c.decoded[lock.ID] = result
	return result
}
