package qsl

import "qslm/internal/model"

// Filters are the combinable search predicates. Blank fields are no-ops;
// non-blank fields combine conjunctively.
type Filters struct {
	MyCallsign      string // substring match
	StationCallsign string // substring match
	Mode            string // exact match
	CardID          string // substring match, joined through card links
}

// DuplicateKey is the case-insensitive grouping key for duplicate
// candidates. All fields are stored uppercased.
type DuplicateKey struct {
	StationCallsign string
	QSODate         string
	Band            string
	Mode            string
}

// LogTime is an (id, time_on) pair used by the duplicate reconciler.
type LogTime struct {
	ID     int64
	TimeOn string
}

// Store provides persistence for logs, cards and their links.
// Every multi-statement mutation (CreateCard, ApplyMerge, ReorderByTime,
// ResetAll) commits in a single transaction: observers never see a card
// without its links or a half-renumbered ordering.
type Store interface {
	// Log operations

	// InsertLog creates a log record and assigns sort_id equal to the new
	// id. The caller is responsible for duplicate checks beforehand.
	InsertLog(log *model.Log) (int64, error)

	// UpdateLog replaces every field of the record.
	// Returns ErrNotFound if the id is absent.
	UpdateLog(id int64, log *model.Log) error

	// DeleteLog removes the record and cascades its card links.
	// Returns false (not an error) if the id was already absent.
	DeleteLog(id int64) (bool, error)

	// GetLog returns nil, nil if the id is absent.
	GetLog(id int64) (*model.Log, error)

	// SearchLogs returns summaries matching the filters, ordered by
	// sort_id descending.
	SearchLogs(f Filters) ([]model.LogSummary, error)

	// FindDuplicate returns the id of an existing log matching the
	// candidate key whose time lies within the 5-minute window.
	FindDuplicate(stationCallsign, qsoDate, timeOn, band, mode string) (int64, bool, error)

	// DuplicateCandidateKeys returns the keys shared by two or more logs.
	DuplicateCandidateKeys() ([]DuplicateKey, error)

	// LogsForKey returns the (id, time_on) pairs for one candidate key,
	// ordered by time_on ascending.
	LogsForKey(k DuplicateKey) ([]LogTime, error)

	// ApplyMerge updates the canonical record and deletes the merged-away
	// members in one transaction. Links of deleted members cascade.
	ApplyMerge(canonicalID int64, canonical *model.Log, removeIDs []int64) error

	// ReorderByTime rewrites every sort_id as the record's 1-based rank
	// when sorted ascending by (qso_date, time_on), atomically.
	ReorderByTime() error

	// Card operations

	// CreateCard inserts the card, one link per log id, and sets the
	// matching qsl flag to Y on every linked log, all-or-nothing.
	// Returns ErrDuplicateCardID if the id already exists.
	CreateCard(card *model.Card, logIDs []int64) error

	// CardsForLog returns the cards linked to a log.
	CardsForLog(logID int64) ([]model.Card, error)

	// LogIDsForCard returns the log ids linked to a card.
	LogIDsForCard(cardID string) ([]int64, error)

	// LastCardID returns the id of the most recently created card of the
	// given direction, or false if none exists.
	LastCardID(direction string) (string, bool, error)

	// RecycleCard resets the log's flag for that direction, deletes the
	// single link row, and deletes the card if it has no links left.
	// Returns false if no such card/link exists.
	RecycleCard(logID int64, direction string) (bool, error)

	// ResetAll deletes every link and card and resets both flags on every
	// log, in one transaction.
	ResetAll() error

	// Callsign registry

	Callsigns() ([]string, error)
	AddCallsign(callsign string) error
	RemoveCallsign(callsign string) (bool, error)

	// Stats returns the dashboard counters with up to recentLimit
	// activity entries, newest card first.
	Stats(recentLimit int) (*model.Stats, error)

	// Close closes the underlying connection.
	Close() error
}
