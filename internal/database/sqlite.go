package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"qslm/internal/database/migrations"
	"qslm/internal/model"
	"qslm/internal/qsl"
)

// SQLiteDatabase implements the qsl.Store interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. The link table relies on cascading foreign keys, which SQLite
// leaves OFF by default.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

const logColumns = `id, sort_id, my_callsign, station_callsign, qso_date, time_on,
	band, band_rx, freq, freq_rx, mode, submode, rst_sent, rst_rcvd,
	comment, audit_blob, qsl_sent, qsl_rcvd, sat_name, prop_mode`

// auditBlob serializes the structured record. Regenerated on every write
// so the snapshot can never drift from the columns.
func auditBlob(log *model.Log) (string, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return "", fmt.Errorf("serializing audit blob: %w", err)
	}
	return string(data), nil
}

// Log operations

func (s *SQLiteDatabase) InsertLog(log *model.Log) (int64, error) {
	blob, err := auditBlob(log)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO logs (my_callsign, station_callsign, qso_date, time_on,
			band, band_rx, freq, freq_rx, mode, submode, rst_sent, rst_rcvd,
			comment, audit_blob, qsl_sent, qsl_rcvd, sat_name, prop_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.MyCallsign, log.StationCallsign, log.QSODate, log.TimeOn,
		log.Band, log.BandRX, log.Freq, log.FreqRX, log.Mode, log.Submode,
		log.RSTSent, log.RSTRcvd, log.Comment, blob, log.QSLSent, log.QSLRcvd,
		log.SatName, log.PropMode)
	if err != nil {
		return 0, fmt.Errorf("inserting log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	// sort_id starts equal to the id: a stable insertion-order proxy.
	if _, err := tx.Exec("UPDATE logs SET sort_id = ? WHERE id = ?", id, id); err != nil {
		return 0, fmt.Errorf("assigning sort_id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) UpdateLog(id int64, log *model.Log) error {
	blob, err := auditBlob(log)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`UPDATE logs SET my_callsign=?, station_callsign=?, qso_date=?, time_on=?,
			band=?, band_rx=?, freq=?, freq_rx=?, mode=?, submode=?, rst_sent=?, rst_rcvd=?,
			comment=?, audit_blob=?, qsl_sent=?, qsl_rcvd=?, sat_name=?, prop_mode=?
		WHERE id=?`,
		log.MyCallsign, log.StationCallsign, log.QSODate, log.TimeOn,
		log.Band, log.BandRX, log.Freq, log.FreqRX, log.Mode, log.Submode,
		log.RSTSent, log.RSTRcvd, log.Comment, blob, log.QSLSent, log.QSLRcvd,
		log.SatName, log.PropMode, id)
	if err != nil {
		return fmt.Errorf("updating log: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("log %d: %w", id, qsl.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteLog(id int64) (bool, error) {
	res, err := s.db.Exec("DELETE FROM logs WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) GetLog(id int64) (*model.Log, error) {
	row := s.db.QueryRow("SELECT "+logColumns+" FROM logs WHERE id = ?", id)
	log, err := scanLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("loading log: %w", err)
	}
	return log, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*model.Log, error) {
	var l model.Log
	var sortID sql.NullInt64
	err := row.Scan(&l.ID, &sortID, &l.MyCallsign, &l.StationCallsign, &l.QSODate, &l.TimeOn,
		&l.Band, &l.BandRX, &l.Freq, &l.FreqRX, &l.Mode, &l.Submode, &l.RSTSent, &l.RSTRcvd,
		&l.Comment, &l.AuditBlob, &l.QSLSent, &l.QSLRcvd, &l.SatName, &l.PropMode)
	if err != nil {
		return nil, err
	}
	l.SortID = sortID.Int64
	return &l, nil
}

func (s *SQLiteDatabase) SearchLogs(f qsl.Filters) ([]model.LogSummary, error) {
	query := `SELECT DISTINCT l.id, l.my_callsign, l.station_callsign, l.qso_date, l.time_on,
		l.band, l.band_rx, l.freq, l.freq_rx, l.mode, l.qsl_sent, l.qsl_rcvd, l.comment
		FROM logs l`
	var conds []string
	var params []any

	if f.CardID != "" {
		query += " JOIN card_links cl ON l.id = cl.log_id JOIN cards c ON cl.card_id = c.id"
		conds = append(conds, "c.id LIKE ?")
		params = append(params, "%"+f.CardID+"%")
	}
	if f.MyCallsign != "" {
		conds = append(conds, "l.my_callsign LIKE ?")
		params = append(params, "%"+f.MyCallsign+"%")
	}
	if f.StationCallsign != "" {
		conds = append(conds, "l.station_callsign LIKE ?")
		params = append(params, "%"+f.StationCallsign+"%")
	}
	if f.Mode != "" {
		conds = append(conds, "l.mode = ?")
		params = append(params, f.Mode)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY l.sort_id DESC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("searching logs: %w", err)
	}
	defer rows.Close()

	var results []model.LogSummary
	for rows.Next() {
		var m model.LogSummary
		if err := rows.Scan(&m.ID, &m.MyCallsign, &m.StationCallsign, &m.QSODate, &m.TimeOn,
			&m.Band, &m.BandRX, &m.Freq, &m.FreqRX, &m.Mode, &m.QSLSent, &m.QSLRcvd, &m.Comment); err != nil {
			return nil, fmt.Errorf("scanning log summary: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *SQLiteDatabase) FindDuplicate(stationCallsign, qsoDate, timeOn, band, mode string) (int64, bool, error) {
	rows, err := s.db.Query(`SELECT id, time_on FROM logs
		WHERE UPPER(station_callsign) = UPPER(?) AND qso_date = ?
		AND UPPER(band) = UPPER(?) AND UPPER(mode) = UPPER(?)`,
		stationCallsign, qsoDate, band, mode)
	if err != nil {
		return 0, false, fmt.Errorf("querying duplicate candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var existing string
		if err := rows.Scan(&id, &existing); err != nil {
			return 0, false, fmt.Errorf("scanning candidate: %w", err)
		}
		if qsl.WithinWindow(timeOn, existing) {
			return id, true, nil
		}
	}
	return 0, false, rows.Err()
}

func (s *SQLiteDatabase) DuplicateCandidateKeys() ([]qsl.DuplicateKey, error) {
	rows, err := s.db.Query(`SELECT UPPER(station_callsign), qso_date, UPPER(band), UPPER(mode)
		FROM logs
		GROUP BY UPPER(station_callsign), qso_date, UPPER(band), UPPER(mode)
		HAVING COUNT(id) > 1`)
	if err != nil {
		return nil, fmt.Errorf("querying candidate groups: %w", err)
	}
	defer rows.Close()

	var keys []qsl.DuplicateKey
	for rows.Next() {
		var k qsl.DuplicateKey
		if err := rows.Scan(&k.StationCallsign, &k.QSODate, &k.Band, &k.Mode); err != nil {
			return nil, fmt.Errorf("scanning candidate group: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteDatabase) LogsForKey(k qsl.DuplicateKey) ([]qsl.LogTime, error) {
	rows, err := s.db.Query(`SELECT id, time_on FROM logs
		WHERE UPPER(station_callsign) = ? AND qso_date = ?
		AND UPPER(band) = ? AND UPPER(mode) = ?
		ORDER BY time_on`,
		k.StationCallsign, k.QSODate, k.Band, k.Mode)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	var members []qsl.LogTime
	for rows.Next() {
		var m qsl.LogTime
		if err := rows.Scan(&m.ID, &m.TimeOn); err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ApplyMerge persists the folded canonical record and removes the
// merged-away members in one transaction. Member links cascade; a card
// whose only links belonged to removed members disappears with them only
// via explicit cleanup at recycle time, so orphan cards are removed here.
func (s *SQLiteDatabase) ApplyMerge(canonicalID int64, canonical *model.Log, removeIDs []int64) error {
	blob, err := auditBlob(canonical)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE logs SET my_callsign=?, station_callsign=?, qso_date=?, time_on=?,
			band=?, band_rx=?, freq=?, freq_rx=?, mode=?, submode=?, rst_sent=?, rst_rcvd=?,
			comment=?, audit_blob=?, qsl_sent=?, qsl_rcvd=?, sat_name=?, prop_mode=?
		WHERE id=?`,
		canonical.MyCallsign, canonical.StationCallsign, canonical.QSODate, canonical.TimeOn,
		canonical.Band, canonical.BandRX, canonical.Freq, canonical.FreqRX, canonical.Mode,
		canonical.Submode, canonical.RSTSent, canonical.RSTRcvd, canonical.Comment, blob,
		canonical.QSLSent, canonical.QSLRcvd, canonical.SatName, canonical.PropMode, canonicalID)
	if err != nil {
		return fmt.Errorf("updating canonical log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("log %d: %w", canonicalID, qsl.ErrNotFound)
	}

	for _, id := range removeIDs {
		if _, err := tx.Exec("DELETE FROM logs WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting merged log %d: %w", id, err)
		}
	}

	// Cards left with zero links by the cascade are not kept empty.
	if _, err := tx.Exec(`DELETE FROM cards
		WHERE id NOT IN (SELECT DISTINCT card_id FROM card_links)`); err != nil {
		return fmt.Errorf("removing orphaned cards: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReorderByTime rewrites every sort_id as the record's 1-based rank by
// (qso_date, time_on). The whole renumbering is one transaction: readers
// see either the old or the fully-new ordering.
func (s *SQLiteDatabase) ReorderByTime() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM logs ORDER BY qso_date, time_on")
	if err != nil {
		return fmt.Errorf("ordering logs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning log id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("reading ordered logs: %w", err)
	}
	rows.Close()

	for rank, id := range ids {
		if _, err := tx.Exec("UPDATE logs SET sort_id = ? WHERE id = ?", rank+1, id); err != nil {
			return fmt.Errorf("renumbering log %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Card operations

func (s *SQLiteDatabase) CreateCard(card *model.Card, logIDs []int64) error {
	flagColumn, err := flagColumnFor(card.Direction)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO cards (id, direction, status, created_at) VALUES (?, ?, ?, ?)",
		card.ID, card.Direction, card.Status, card.CreatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("card %s: %w", card.ID, qsl.ErrDuplicateCardID)
		}
		return fmt.Errorf("inserting card: %w", err)
	}

	for _, logID := range logIDs {
		if _, err := tx.Exec("INSERT INTO card_links (card_id, log_id) VALUES (?, ?)", card.ID, logID); err != nil {
			return fmt.Errorf("linking log %d: %w", logID, err)
		}
		if _, err := tx.Exec("UPDATE logs SET "+flagColumn+" = ? WHERE id = ?", model.FlagYes, logID); err != nil {
			return fmt.Errorf("flagging log %d: %w", logID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CardsForLog(logID int64) ([]model.Card, error) {
	rows, err := s.db.Query(`SELECT c.id, c.direction, c.status, c.created_at
		FROM cards c JOIN card_links cl ON c.id = cl.card_id
		WHERE cl.log_id = ?
		ORDER BY c.created_at`, logID)
	if err != nil {
		return nil, fmt.Errorf("querying cards for log: %w", err)
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		var c model.Card
		if err := rows.Scan(&c.ID, &c.Direction, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *SQLiteDatabase) LogIDsForCard(cardID string) ([]int64, error) {
	rows, err := s.db.Query("SELECT log_id FROM card_links WHERE card_id = ? ORDER BY log_id", cardID)
	if err != nil {
		return nil, fmt.Errorf("querying logs for card: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning log id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteDatabase) LastCardID(direction string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM cards WHERE direction = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, direction).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("querying last card: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteDatabase) RecycleCard(logID int64, direction string) (bool, error) {
	flagColumn, err := flagColumnFor(direction)
	if err != nil {
		return false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var cardID string
	err = tx.QueryRow(`SELECT c.id FROM cards c JOIN card_links cl ON c.id = cl.card_id
		WHERE cl.log_id = ? AND c.direction = ?`, logID, direction).Scan(&cardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("finding card to recycle: %w", err)
	}

	if _, err := tx.Exec("UPDATE logs SET "+flagColumn+" = ? WHERE id = ?", model.FlagNo, logID); err != nil {
		return false, fmt.Errorf("resetting flag: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM card_links WHERE card_id = ? AND log_id = ?", cardID, logID); err != nil {
		return false, fmt.Errorf("deleting link: %w", err)
	}

	var remaining int64
	if err := tx.QueryRow("SELECT COUNT(*) FROM card_links WHERE card_id = ?", cardID).Scan(&remaining); err != nil {
		return false, fmt.Errorf("counting remaining links: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.Exec("DELETE FROM cards WHERE id = ?", cardID); err != nil {
			return false, fmt.Errorf("deleting empty card: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func (s *SQLiteDatabase) ResetAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM card_links"); err != nil {
		return fmt.Errorf("deleting links: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM cards"); err != nil {
		return fmt.Errorf("deleting cards: %w", err)
	}
	if _, err := tx.Exec("UPDATE logs SET qsl_sent = ?, qsl_rcvd = ?", model.FlagNo, model.FlagNo); err != nil {
		return fmt.Errorf("resetting flags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Callsign registry

func (s *SQLiteDatabase) Callsigns() ([]string, error) {
	rows, err := s.db.Query("SELECT callsign FROM callsigns ORDER BY callsign")
	if err != nil {
		return nil, fmt.Errorf("querying callsigns: %w", err)
	}
	defer rows.Close()

	var callsigns []string
	for rows.Next() {
		var cs string
		if err := rows.Scan(&cs); err != nil {
			return nil, fmt.Errorf("scanning callsign: %w", err)
		}
		callsigns = append(callsigns, cs)
	}
	return callsigns, rows.Err()
}

func (s *SQLiteDatabase) AddCallsign(callsign string) error {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO callsigns (callsign) VALUES (?)", callsign); err != nil {
		return fmt.Errorf("adding callsign: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RemoveCallsign(callsign string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM callsigns WHERE callsign = ?", callsign)
	if err != nil {
		return false, fmt.Errorf("removing callsign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) Stats(recentLimit int) (*model.Stats, error) {
	stats := &model.Stats{}

	if err := s.db.QueryRow("SELECT COUNT(id) FROM logs").Scan(&stats.TotalLogs); err != nil {
		return nil, fmt.Errorf("counting logs: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(id) FROM cards WHERE direction = ?", model.DirectionTC).Scan(&stats.SentCards); err != nil {
		return nil, fmt.Errorf("counting sent cards: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(id) FROM cards WHERE direction = ?", model.DirectionRC).Scan(&stats.ReceivedCards); err != nil {
		return nil, fmt.Errorf("counting received cards: %w", err)
	}

	rows, err := s.db.Query(`SELECT c.direction, l.station_callsign
		FROM cards c
		JOIN card_links cl ON c.id = cl.card_id
		JOIN logs l ON cl.log_id = l.id
		GROUP BY c.id
		ORDER BY c.created_at DESC
		LIMIT ?`, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("querying recent activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.Direction, &a.StationCallsign); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		stats.Recent = append(stats.Recent, a)
	}
	return stats, rows.Err()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate runs all pending migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// flagColumnFor maps a card direction to the log flag column it drives.
func flagColumnFor(direction string) (string, error) {
	switch direction {
	case model.DirectionRC:
		return "qsl_rcvd", nil
	case model.DirectionTC:
		return "qsl_sent", nil
	default:
		return "", fmt.Errorf("%w: %q", qsl.ErrInvalidDirection, direction)
	}
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// Compile-time check that SQLiteDatabase implements the qsl.Store interface
var _ qsl.Store = (*SQLiteDatabase)(nil)
