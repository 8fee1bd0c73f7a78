package qsl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"qslm/internal/model"
)

// BatchMode selects how a card issuance batch maps contacts to cards.
type BatchMode string

const (
	// BatchSingle links every contact in the batch to one minted card.
	BatchSingle BatchMode = "single"
	// BatchMulti mints one card per contact.
	BatchMulti BatchMode = "multi"
)

// IssueResult reports a card issuance batch: the minted card ids, the log
// ids that were linked, and the log ids skipped because they already
// carried a card of that direction.
type IssueResult struct {
	CardIDs []string
	Issued  []int64
	Skipped []int64
}

// ImportResult reports an ADIF import: new records, records merged into
// existing ones, and exact duplicates skipped.
type ImportResult struct {
	Imported   int
	Updated    int
	Duplicates int
}

// Service is the engine facade: the only component the CLI (or any other
// shell) talks to. Every operation runs to completion on the calling
// goroutine before returning.
type Service struct {
	store      Store
	logger     Logger
	clock      Clock
	idgen      *CardIDGenerator
	reconciler *Reconciler
}

// NewService creates a Service. entropy feeds card id generation;
// production wiring passes crypto/rand.Reader.
func NewService(store Store, logger Logger, clock Clock, entropy io.Reader) *Service {
	return &Service{
		store:      store,
		logger:     logger,
		clock:      clock,
		idgen:      NewCardIDGenerator(clock, entropy),
		reconciler: NewReconciler(store, logger),
	}
}

// AddLog checks for a fuzzy duplicate and inserts the record. The operator
// callsign is an explicit parameter rather than ambient state. Returns the
// new log id, or ErrDuplicateLog naming the conflicting record.
func (s *Service) AddLog(log *model.Log, myCallsign string) (int64, error) {
	log.MyCallsign = strings.ToUpper(strings.TrimSpace(myCallsign))
	log.StationCallsign = strings.ToUpper(strings.TrimSpace(log.StationCallsign))
	if log.QSLSent == "" {
		log.QSLSent = model.FlagNo
	}
	if log.QSLRcvd == "" {
		log.QSLRcvd = model.FlagNo
	}

	existing, found, err := s.store.FindDuplicate(log.StationCallsign, log.QSODate, log.TimeOn, log.Band, log.Mode)
	if err != nil {
		return 0, fmt.Errorf("checking for duplicate: %w", err)
	}
	if found {
		return 0, fmt.Errorf("%w: matches existing log %d", ErrDuplicateLog, existing)
	}

	id, err := s.store.InsertLog(log)
	if err != nil {
		return 0, fmt.Errorf("inserting log: %w", err)
	}

	s.logger.Info("log added", "id", id, "station", log.StationCallsign)
	return id, nil
}

// UpdateLog replaces every field of the record.
func (s *Service) UpdateLog(id int64, log *model.Log) error {
	log.StationCallsign = strings.ToUpper(strings.TrimSpace(log.StationCallsign))
	if err := s.store.UpdateLog(id, log); err != nil {
		return fmt.Errorf("updating log %d: %w", id, err)
	}
	return nil
}

// DeleteLog removes the record and its card links. Deleting an absent id
// returns false, not an error.
func (s *Service) DeleteLog(id int64) (bool, error) {
	deleted, err := s.store.DeleteLog(id)
	if err != nil {
		return false, fmt.Errorf("deleting log %d: %w", id, err)
	}
	if deleted {
		s.logger.Info("log deleted", "id", id)
	}
	return deleted, nil
}

// GetLog returns nil, nil if the id is absent.
func (s *Service) GetLog(id int64) (*model.Log, error) {
	return s.store.GetLog(id)
}

// SearchLogs returns summaries matching the filters, most recent sort
// order first.
func (s *Service) SearchLogs(f Filters) ([]model.LogSummary, error) {
	return s.store.SearchLogs(f)
}

// ReorderByTime renumbers every log's sort_id by chronological rank.
func (s *Service) ReorderByTime() error {
	if err := s.store.ReorderByTime(); err != nil {
		return fmt.Errorf("reordering logs: %w", err)
	}
	s.logger.Info("logs reordered by time")
	return nil
}

// FindDuplicateClusters returns every duplicate cluster of size >= 2.
func (s *Service) FindDuplicateClusters() ([][]int64, error) {
	return s.reconciler.FindAllClusters()
}

// MergeCluster merges one cluster into its lowest-id member.
func (s *Service) MergeCluster(cluster []int64) (int64, error) {
	return s.reconciler.Merge(cluster)
}

// MergeAllDuplicates scans the whole store and merges every cluster.
// Clusters are independent units of work: one failed cluster is reported
// but does not abort the rest.
func (s *Service) MergeAllDuplicates() (int, error) {
	clusters, err := s.reconciler.FindAllClusters()
	if err != nil {
		return 0, err
	}

	merged := 0
	var failures []error
	for _, cluster := range clusters {
		if _, err := s.reconciler.Merge(cluster); err != nil {
			s.logger.Error("cluster merge failed", "cluster", cluster, "error", err)
			failures = append(failures, err)
			continue
		}
		merged++
	}
	return merged, errors.Join(failures...)
}

// IssueCards mints cards for the given logs. In single mode every eligible
// log links to one card; in multi mode each log gets its own. Logs already
// flagged for the direction are skipped and reported, not failed. Each
// card's links and flag updates commit atomically; in multi mode a failed
// unit is reported but does not abort later units.
func (s *Service) IssueCards(logIDs []int64, direction string, mode BatchMode) (*IssueResult, error) {
	if direction != model.DirectionRC && direction != model.DirectionTC {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	if mode != BatchSingle && mode != BatchMulti {
		return nil, fmt.Errorf("invalid batch mode: %q", mode)
	}

	result := &IssueResult{}
	var eligible []int64
	for _, id := range logIDs {
		log, err := s.store.GetLog(id)
		if err != nil {
			return nil, fmt.Errorf("loading log %d: %w", id, err)
		}
		if log == nil || flagFor(log, direction) == model.FlagYes {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return result, nil
	}

	if mode == BatchSingle {
		cardID, err := s.issueOne(eligible, direction)
		if err != nil {
			return nil, err
		}
		result.CardIDs = append(result.CardIDs, cardID)
		result.Issued = append(result.Issued, eligible...)
		return result, nil
	}

	var failures []error
	for _, id := range eligible {
		cardID, err := s.issueOne([]int64{id}, direction)
		if err != nil {
			s.logger.Error("card issuance failed", "log", id, "error", err)
			failures = append(failures, fmt.Errorf("log %d: %w", id, err))
			continue
		}
		result.CardIDs = append(result.CardIDs, cardID)
		result.Issued = append(result.Issued, id)
	}
	return result, errors.Join(failures...)
}

// issueOne mints an id and creates the card with its links and flag
// updates in a single transaction.
func (s *Service) issueOne(logIDs []int64, direction string) (string, error) {
	cardID, err := s.idgen.Generate(s.store, direction)
	if err != nil {
		return "", fmt.Errorf("generating card id: %w", err)
	}

	card := &model.Card{
		ID:        cardID,
		Direction: direction,
		Status:    model.StatusInStock,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.CreateCard(card, logIDs); err != nil {
		return "", fmt.Errorf("creating card: %w", err)
	}

	s.logger.Info("card issued", "card", cardID, "direction", direction, "logs", len(logIDs))
	return cardID, nil
}

// RecycleCard unwinds one (log, direction) link. Returns false if the log
// has no card of that direction.
func (s *Service) RecycleCard(logID int64, direction string) (bool, error) {
	if direction != model.DirectionRC && direction != model.DirectionTC {
		return false, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	recycled, err := s.store.RecycleCard(logID, direction)
	if err != nil {
		return false, fmt.Errorf("recycling card for log %d: %w", logID, err)
	}
	if recycled {
		s.logger.Info("card recycled", "log", logID, "direction", direction)
	}
	return recycled, nil
}

// ResetAll deletes every card and link and clears both flags on every log.
// The confirmation step guarding this lives at the shell boundary; the
// engine only guarantees it is a single atomic operation.
func (s *Service) ResetAll() error {
	if err := s.store.ResetAll(); err != nil {
		return fmt.Errorf("resetting card data: %w", err)
	}
	s.logger.Warn("all card data reset")
	return nil
}

// CardsForLog returns the cards linked to a log.
func (s *Service) CardsForLog(logID int64) ([]model.Card, error) {
	return s.store.CardsForLog(logID)
}

// LogsForCard returns the log ids linked to a card.
func (s *Service) LogsForCard(cardID string) ([]int64, error) {
	return s.store.LogIDsForCard(cardID)
}

// Stats returns the dashboard counters with the ten most recent cards.
func (s *Service) Stats() (*model.Stats, error) {
	return s.store.Stats(10)
}

// Callsigns returns the operator callsign registry.
func (s *Service) Callsigns() ([]string, error) {
	return s.store.Callsigns()
}

// AddCallsign registers an operator callsign, uppercased. Adding an
// existing callsign is a no-op.
func (s *Service) AddCallsign(callsign string) error {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return fmt.Errorf("callsign must not be empty")
	}
	return s.store.AddCallsign(callsign)
}

// RemoveCallsign removes an operator callsign from the registry.
func (s *Service) RemoveCallsign(callsign string) (bool, error) {
	return s.store.RemoveCallsign(strings.ToUpper(strings.TrimSpace(callsign)))
}

// ImportADIF reads records from r and stores them. A record matching an
// existing log through the duplicate window merges into it with the same
// first-non-empty-wins policy as cluster merge, comments marked IMPORTED.
// Records missing any of CALL, QSO_DATE, TIME_ON or BAND are skipped.
func (s *Service) ImportADIF(r io.Reader, myCallsigns []string, primary string) (*ImportResult, error) {
	records, err := ParseADIF(r)
	if err != nil {
		return nil, fmt.Errorf("parsing adif: %w", err)
	}

	known := make(map[string]bool, len(myCallsigns))
	for _, cs := range myCallsigns {
		known[strings.ToUpper(cs)] = true
	}

	result := &ImportResult{}
	for _, rec := range records {
		if rec["CALL"] == "" || rec["QSO_DATE"] == "" || rec["TIME_ON"] == "" || rec["BAND"] == "" {
			continue
		}
		incoming := logFromADIF(rec)

		existingID, found, err := s.store.FindDuplicate(incoming.StationCallsign, incoming.QSODate, incoming.TimeOn, incoming.Band, incoming.Mode)
		if err != nil {
			return result, fmt.Errorf("checking for duplicate: %w", err)
		}

		if found {
			existing, err := s.store.GetLog(existingID)
			if err != nil {
				return result, fmt.Errorf("loading log %d: %w", existingID, err)
			}
			if existing == nil {
				continue
			}
			if foldLog(existing, incoming, mergeLabelImport) {
				if err := s.store.UpdateLog(existingID, existing); err != nil {
					return result, fmt.Errorf("merging into log %d: %w", existingID, err)
				}
				result.Updated++
			} else {
				result.Duplicates++
			}
			continue
		}

		operator := strings.ToUpper(rec["OPERATOR"])
		if !known[operator] {
			operator = strings.ToUpper(primary)
		}
		incoming.MyCallsign = operator
		if _, err := s.store.InsertLog(incoming); err != nil {
			return result, fmt.Errorf("inserting imported log: %w", err)
		}
		result.Imported++
	}

	s.logger.Info("adif import finished",
		"imported", result.Imported, "updated", result.Updated, "duplicates", result.Duplicates)
	return result, nil
}

// ExportADIF writes every log as an ADIF record to w, in ascending sort
// order (oldest display position first).
func (s *Service) ExportADIF(w io.Writer) error {
	summaries, err := s.store.SearchLogs(Filters{})
	if err != nil {
		return fmt.Errorf("listing logs: %w", err)
	}
	for i := len(summaries) - 1; i >= 0; i-- {
		log, err := s.store.GetLog(summaries[i].ID)
		if err != nil {
			return fmt.Errorf("loading log %d: %w", summaries[i].ID, err)
		}
		if log == nil {
			continue
		}
		if _, err := io.WriteString(w, ADIFRecord(log)); err != nil {
			return fmt.Errorf("writing adif record: %w", err)
		}
	}
	return nil
}

// logFromADIF maps an uppercase-tag ADIF field map onto a log record.
func logFromADIF(rec map[string]string) *model.Log {
	return &model.Log{
		StationCallsign: strings.ToUpper(rec["CALL"]),
		QSODate:         rec["QSO_DATE"],
		TimeOn:          rec["TIME_ON"],
		Band:            rec["BAND"],
		BandRX:          rec["BAND_RX"],
		Freq:            rec["FREQ"],
		FreqRX:          rec["FREQ_RX"],
		Mode:            rec["MODE"],
		Submode:         rec["SUBMODE"],
		RSTSent:         rec["RST_SENT"],
		RSTRcvd:         rec["RST_RCVD"],
		Comment:         rec["COMMENT"],
		SatName:         rec["SAT_NAME"],
		PropMode:        rec["PROP_MODE"],
		QSLSent:         model.FlagNo,
		QSLRcvd:         model.FlagNo,
	}
}

// flagFor returns the log's flag matching a card direction.
func flagFor(log *model.Log, direction string) string {
	if direction == model.DirectionRC {
		return log.QSLRcvd
	}
	return log.QSLSent
}
