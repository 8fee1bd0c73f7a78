package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qslm/internal/database/migrations"
	"qslm/internal/model"
	"qslm/internal/qsl"
)

// newTestDB creates a new in-memory database with all migrations applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	if err := migrations.MigrateUp(db.db); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func insertLog(t *testing.T, db *SQLiteDatabase, station, date, timeOn, band, mode string) int64 {
	t.Helper()

	id, err := db.InsertLog(&model.Log{
		MyCallsign:      "BG5ABC",
		StationCallsign: station,
		QSODate:         date,
		TimeOn:          timeOn,
		Band:            band,
		Mode:            mode,
		QSLSent:         model.FlagNo,
		QSLRcvd:         model.FlagNo,
	})
	if err != nil {
		t.Fatalf("InsertLog() error = %v", err)
	}
	return id
}

func TestSQLiteDatabase_InsertLog(t *testing.T) {
	db := newTestDB(t)

	id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

	got, err := db.GetLog(id)
	if err != nil {
		t.Fatalf("GetLog() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetLog() returned nil for inserted log")
	}
	if got.StationCallsign != "JA1ABC" {
		t.Errorf("StationCallsign = %q, want JA1ABC", got.StationCallsign)
	}
	if got.SortID != id {
		t.Errorf("SortID = %d, want %d (id)", got.SortID, id)
	}
	if !strings.Contains(got.AuditBlob, "JA1ABC") {
		t.Errorf("AuditBlob = %q, expected serialized record", got.AuditBlob)
	}
}

func TestSQLiteDatabase_GetLog_NotFound(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetLog(999)
	if err != nil {
		t.Fatalf("GetLog() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetLog() = %v, want nil", got)
	}
}

func TestSQLiteDatabase_UpdateLog(t *testing.T) {
	t.Run("updates fields and audit blob", func(t *testing.T) {
		db := newTestDB(t)
		id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

		l, _ := db.GetLog(id)
		l.Comment = "great signal"
		l.RSTSent = "59"
		if err := db.UpdateLog(id, l); err != nil {
			t.Fatalf("UpdateLog() error = %v", err)
		}

		got, _ := db.GetLog(id)
		if got.Comment != "great signal" {
			t.Errorf("Comment = %q, want %q", got.Comment, "great signal")
		}
		if !strings.Contains(got.AuditBlob, "great signal") {
			t.Errorf("AuditBlob not regenerated: %q", got.AuditBlob)
		}
	})

	t.Run("returns ErrNotFound for missing id", func(t *testing.T) {
		db := newTestDB(t)

		err := db.UpdateLog(42, &model.Log{StationCallsign: "JA1ABC"})
		if !errors.Is(err, qsl.ErrNotFound) {
			t.Errorf("UpdateLog() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteDatabase_DeleteLog(t *testing.T) {
	db := newTestDB(t)
	id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

	deleted, err := db.DeleteLog(id)
	if err != nil {
		t.Fatalf("DeleteLog() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteLog() = false, want true")
	}

	deleted, err = db.DeleteLog(id)
	if err != nil {
		t.Fatalf("second DeleteLog() error = %v", err)
	}
	if deleted {
		t.Error("second DeleteLog() = true, want false")
	}
}

func TestSQLiteDatabase_DeleteLog_CascadesLinks(t *testing.T) {
	db := newTestDB(t)
	id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

	card := &model.Card{ID: "25000001TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
	if err := db.CreateCard(card, []int64{id}); err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}

	if _, err := db.DeleteLog(id); err != nil {
		t.Fatalf("DeleteLog() error = %v", err)
	}

	ids, err := db.LogIDsForCard(card.ID)
	if err != nil {
		t.Fatalf("LogIDsForCard() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("links not cascaded: %v", ids)
	}
}

func TestSQLiteDatabase_SearchLogs(t *testing.T) {
	db := newTestDB(t)
	id1 := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
	id2 := insertLog(t, db, "W1AW", "20250311", "130000", "40m", "CW")
	id3 := insertLog(t, db, "JA2XYZ", "20250312", "140000", "20m", "SSB")

	t.Run("no filters returns all, newest sort_id first", func(t *testing.T) {
		got, err := db.SearchLogs(qsl.Filters{})
		if err != nil {
			t.Fatalf("SearchLogs() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if got[0].ID != id3 || got[1].ID != id2 || got[2].ID != id1 {
			t.Errorf("order = [%d %d %d], want [%d %d %d]", got[0].ID, got[1].ID, got[2].ID, id3, id2, id1)
		}
	})

	t.Run("station substring filter", func(t *testing.T) {
		got, err := db.SearchLogs(qsl.Filters{StationCallsign: "JA"})
		if err != nil {
			t.Fatalf("SearchLogs() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
	})

	t.Run("mode exact filter", func(t *testing.T) {
		got, err := db.SearchLogs(qsl.Filters{Mode: "CW"})
		if err != nil {
			t.Fatalf("SearchLogs() error = %v", err)
		}
		if len(got) != 1 || got[0].ID != id2 {
			t.Errorf("got %v, want one result with id %d", got, id2)
		}
	})

	t.Run("filters combine conjunctively", func(t *testing.T) {
		got, err := db.SearchLogs(qsl.Filters{StationCallsign: "JA", Mode: "CW"})
		if err != nil {
			t.Fatalf("SearchLogs() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("len = %d, want 0", len(got))
		}
	})

	t.Run("card id substring filter joins links", func(t *testing.T) {
		card := &model.Card{ID: "25000007RC0000000000000000", Direction: model.DirectionRC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
		if err := db.CreateCard(card, []int64{id1}); err != nil {
			t.Fatalf("CreateCard() error = %v", err)
		}

		got, err := db.SearchLogs(qsl.Filters{CardID: "25000007"})
		if err != nil {
			t.Fatalf("SearchLogs() error = %v", err)
		}
		if len(got) != 1 || got[0].ID != id1 {
			t.Errorf("got %v, want one result with id %d", got, id1)
		}
	})
}

func TestSQLiteDatabase_FindDuplicate(t *testing.T) {
	db := newTestDB(t)
	id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

	t.Run("exact boundary is a duplicate", func(t *testing.T) {
		got, found, err := db.FindDuplicate("ja1abc", "20250310", "120500", "20M", "ssb")
		if err != nil {
			t.Fatalf("FindDuplicate() error = %v", err)
		}
		if !found || got != id {
			t.Errorf("FindDuplicate() = (%d, %v), want (%d, true)", got, found, id)
		}
	})

	t.Run("outside window is not", func(t *testing.T) {
		_, found, err := db.FindDuplicate("JA1ABC", "20250310", "120501", "20m", "SSB")
		if err != nil {
			t.Fatalf("FindDuplicate() error = %v", err)
		}
		if found {
			t.Error("FindDuplicate() found a match outside the window")
		}
	})

	t.Run("different band is not", func(t *testing.T) {
		_, found, err := db.FindDuplicate("JA1ABC", "20250310", "120000", "40m", "SSB")
		if err != nil {
			t.Fatalf("FindDuplicate() error = %v", err)
		}
		if found {
			t.Error("FindDuplicate() matched across bands")
		}
	})
}

func TestSQLiteDatabase_DuplicateCandidateKeys(t *testing.T) {
	db := newTestDB(t)
	insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
	insertLog(t, db, "ja1abc", "20250310", "120100", "20M", "ssb")
	insertLog(t, db, "W1AW", "20250310", "120000", "20m", "SSB")

	keys, err := db.DuplicateCandidateKeys()
	if err != nil {
		t.Fatalf("DuplicateCandidateKeys() error = %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("len = %d, want 1", len(keys))
	}
	if keys[0].StationCallsign != "JA1ABC" || keys[0].Band != "20M" || keys[0].Mode != "SSB" {
		t.Errorf("key = %+v, want uppercased JA1ABC/20M/SSB", keys[0])
	}

	members, err := db.LogsForKey(keys[0])
	if err != nil {
		t.Fatalf("LogsForKey() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
	if members[0].TimeOn > members[1].TimeOn {
		t.Errorf("members not ordered by time_on: %v", members)
	}
}

func TestSQLiteDatabase_ApplyMerge(t *testing.T) {
	db := newTestDB(t)
	id1 := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
	id2 := insertLog(t, db, "JA1ABC", "20250310", "120100", "20m", "SSB")

	canonical, _ := db.GetLog(id1)
	canonical.Comment = "merged record"

	if err := db.ApplyMerge(id1, canonical, []int64{id2}); err != nil {
		t.Fatalf("ApplyMerge() error = %v", err)
	}

	got, _ := db.GetLog(id1)
	if got.Comment != "merged record" {
		t.Errorf("canonical Comment = %q, want %q", got.Comment, "merged record")
	}

	gone, _ := db.GetLog(id2)
	if gone != nil {
		t.Errorf("merged-away log %d still present", id2)
	}
}

func TestSQLiteDatabase_ApplyMerge_RemovesOrphanedCards(t *testing.T) {
	db := newTestDB(t)
	id1 := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
	id2 := insertLog(t, db, "JA1ABC", "20250310", "120100", "20m", "SSB")

	card := &model.Card{ID: "25000001TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
	if err := db.CreateCard(card, []int64{id2}); err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}

	canonical, _ := db.GetLog(id1)
	if err := db.ApplyMerge(id1, canonical, []int64{id2}); err != nil {
		t.Fatalf("ApplyMerge() error = %v", err)
	}

	_, found, err := db.LastCardID(model.DirectionTC)
	if err != nil {
		t.Fatalf("LastCardID() error = %v", err)
	}
	if found {
		t.Error("card with no remaining links survived the merge")
	}
}

func TestSQLiteDatabase_ReorderByTime(t *testing.T) {
	db := newTestDB(t)
	// Inserted out of chronological order.
	late := insertLog(t, db, "JA1ABC", "20250312", "090000", "20m", "SSB")
	early := insertLog(t, db, "W1AW", "20250310", "080000", "40m", "CW")
	mid := insertLog(t, db, "JA2XYZ", "20250310", "230000", "20m", "FT8")

	if err := db.ReorderByTime(); err != nil {
		t.Fatalf("ReorderByTime() error = %v", err)
	}

	wantRank := map[int64]int64{early: 1, mid: 2, late: 3}
	for id, want := range wantRank {
		got, _ := db.GetLog(id)
		if got.SortID != want {
			t.Errorf("log %d SortID = %d, want %d", id, got.SortID, want)
		}
	}
}

func TestSQLiteDatabase_CreateCard(t *testing.T) {
	t.Run("links logs and sets direction flag", func(t *testing.T) {
		db := newTestDB(t)
		id1 := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
		id2 := insertLog(t, db, "W1AW", "20250311", "130000", "40m", "CW")

		card := &model.Card{ID: "25000001TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
		if err := db.CreateCard(card, []int64{id1, id2}); err != nil {
			t.Fatalf("CreateCard() error = %v", err)
		}

		ids, err := db.LogIDsForCard(card.ID)
		if err != nil {
			t.Fatalf("LogIDsForCard() error = %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("len(ids) = %d, want 2", len(ids))
		}

		for _, id := range []int64{id1, id2} {
			l, _ := db.GetLog(id)
			if l.QSLSent != model.FlagYes {
				t.Errorf("log %d QSLSent = %q, want Y", id, l.QSLSent)
			}
			if l.QSLRcvd != model.FlagNo {
				t.Errorf("log %d QSLRcvd = %q, want N", id, l.QSLRcvd)
			}
		}
	})

	t.Run("duplicate card id", func(t *testing.T) {
		db := newTestDB(t)
		id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

		card := &model.Card{ID: "25000001RC0000000000000000", Direction: model.DirectionRC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
		if err := db.CreateCard(card, []int64{id}); err != nil {
			t.Fatalf("CreateCard() error = %v", err)
		}

		err := db.CreateCard(card, nil)
		if !errors.Is(err, qsl.ErrDuplicateCardID) {
			t.Errorf("CreateCard() error = %v, want ErrDuplicateCardID", err)
		}
	})

	t.Run("invalid direction", func(t *testing.T) {
		db := newTestDB(t)

		card := &model.Card{ID: "25000001XX0000000000000000", Direction: "XX", Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
		err := db.CreateCard(card, nil)
		if !errors.Is(err, qsl.ErrInvalidDirection) {
			t.Errorf("CreateCard() error = %v, want ErrInvalidDirection", err)
		}
	})
}

func TestSQLiteDatabase_LastCardID(t *testing.T) {
	db := newTestDB(t)

	_, found, err := db.LastCardID(model.DirectionTC)
	if err != nil {
		t.Fatalf("LastCardID() error = %v", err)
	}
	if found {
		t.Error("LastCardID() found a card in an empty database")
	}

	id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	older := &model.Card{ID: "25000001TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: base}
	newer := &model.Card{ID: "25000002TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: base.Add(time.Minute)}
	other := &model.Card{ID: "25000009RC0000000000000000", Direction: model.DirectionRC, Status: model.StatusInStock, CreatedAt: base.Add(time.Hour)}

	for _, c := range []*model.Card{older, newer, other} {
		if err := db.CreateCard(c, []int64{id}); err != nil {
			t.Fatalf("CreateCard(%s) error = %v", c.ID, err)
		}
	}

	got, found, err := db.LastCardID(model.DirectionTC)
	if err != nil {
		t.Fatalf("LastCardID() error = %v", err)
	}
	if !found || got != newer.ID {
		t.Errorf("LastCardID() = (%q, %v), want (%q, true)", got, found, newer.ID)
	}
}

func TestSQLiteDatabase_RecycleCard(t *testing.T) {
	t.Run("single-link card is deleted", func(t *testing.T) {
		db := newTestDB(t)
		id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

		card := &model.Card{ID: "25000001RC0000000000000000", Direction: model.DirectionRC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
		if err := db.CreateCard(card, []int64{id}); err != nil {
			t.Fatalf("CreateCard() error = %v", err)
		}

		recycled, err := db.RecycleCard(id, model.DirectionRC)
		if err != nil {
			t.Fatalf("RecycleCard() error = %v", err)
		}
		if !recycled {
			t.Fatal("RecycleCard() = false, want true")
		}

		l, _ := db.GetLog(id)
		if l.QSLRcvd != model.FlagNo {
			t.Errorf("QSLRcvd = %q, want N", l.QSLRcvd)
		}
		_, found, _ := db.LastCardID(model.DirectionRC)
		if found {
			t.Error("empty card was not deleted")
		}
	})

	t.Run("multi-link card survives", func(t *testing.T) {
		db := newTestDB(t)
		id1 := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
		id2 := insertLog(t, db, "W1AW", "20250311", "130000", "40m", "CW")

		card := &model.Card{ID: "25000001TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
		if err := db.CreateCard(card, []int64{id1, id2}); err != nil {
			t.Fatalf("CreateCard() error = %v", err)
		}

		recycled, err := db.RecycleCard(id1, model.DirectionTC)
		if err != nil {
			t.Fatalf("RecycleCard() error = %v", err)
		}
		if !recycled {
			t.Fatal("RecycleCard() = false, want true")
		}

		ids, _ := db.LogIDsForCard(card.ID)
		if len(ids) != 1 || ids[0] != id2 {
			t.Errorf("remaining links = %v, want [%d]", ids, id2)
		}

		l2, _ := db.GetLog(id2)
		if l2.QSLSent != model.FlagYes {
			t.Errorf("unrelated log flag reset: QSLSent = %q", l2.QSLSent)
		}
	})

	t.Run("no card for direction", func(t *testing.T) {
		db := newTestDB(t)
		id := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

		recycled, err := db.RecycleCard(id, model.DirectionRC)
		if err != nil {
			t.Fatalf("RecycleCard() error = %v", err)
		}
		if recycled {
			t.Error("RecycleCard() = true for log without a card")
		}
	})
}

func TestSQLiteDatabase_ResetAll(t *testing.T) {
	db := newTestDB(t)
	id1 := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
	id2 := insertLog(t, db, "W1AW", "20250311", "130000", "40m", "CW")

	c1 := &model.Card{ID: "25000001TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
	c2 := &model.Card{ID: "25000001RC0000000000000000", Direction: model.DirectionRC, Status: model.StatusInStock, CreatedAt: time.Now().UTC()}
	if err := db.CreateCard(c1, []int64{id1}); err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}
	if err := db.CreateCard(c2, []int64{id2}); err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}

	if err := db.ResetAll(); err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}

	for _, id := range []int64{id1, id2} {
		l, _ := db.GetLog(id)
		if l == nil {
			t.Fatalf("log %d deleted by reset", id)
		}
		if l.QSLSent != model.FlagNo || l.QSLRcvd != model.FlagNo {
			t.Errorf("log %d flags = (%q, %q), want (N, N)", id, l.QSLSent, l.QSLRcvd)
		}
		cards, _ := db.CardsForLog(id)
		if len(cards) != 0 {
			t.Errorf("log %d still has cards: %v", id, cards)
		}
	}
}

func TestSQLiteDatabase_Callsigns(t *testing.T) {
	db := newTestDB(t)

	if err := db.AddCallsign("BG5ABC"); err != nil {
		t.Fatalf("AddCallsign() error = %v", err)
	}
	// Adding again is a no-op.
	if err := db.AddCallsign("BG5ABC"); err != nil {
		t.Fatalf("second AddCallsign() error = %v", err)
	}
	if err := db.AddCallsign("BH1XYZ"); err != nil {
		t.Fatalf("AddCallsign() error = %v", err)
	}

	got, err := db.Callsigns()
	if err != nil {
		t.Fatalf("Callsigns() error = %v", err)
	}
	if len(got) != 2 || got[0] != "BG5ABC" || got[1] != "BH1XYZ" {
		t.Errorf("Callsigns() = %v, want [BG5ABC BH1XYZ]", got)
	}

	removed, err := db.RemoveCallsign("BG5ABC")
	if err != nil {
		t.Fatalf("RemoveCallsign() error = %v", err)
	}
	if !removed {
		t.Error("RemoveCallsign() = false, want true")
	}

	removed, _ = db.RemoveCallsign("BG5ABC")
	if removed {
		t.Error("second RemoveCallsign() = true, want false")
	}
}

func TestSQLiteDatabase_Stats(t *testing.T) {
	db := newTestDB(t)
	id1 := insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")
	id2 := insertLog(t, db, "W1AW", "20250311", "130000", "40m", "CW")

	base := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	sent := &model.Card{ID: "25000001TC0000000000000000", Direction: model.DirectionTC, Status: model.StatusInStock, CreatedAt: base}
	rcvd := &model.Card{ID: "25000001RC0000000000000000", Direction: model.DirectionRC, Status: model.StatusInStock, CreatedAt: base.Add(time.Minute)}
	if err := db.CreateCard(sent, []int64{id1}); err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}
	if err := db.CreateCard(rcvd, []int64{id2}); err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}

	stats, err := db.Stats(10)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalLogs != 2 {
		t.Errorf("TotalLogs = %d, want 2", stats.TotalLogs)
	}
	if stats.SentCards != 1 {
		t.Errorf("SentCards = %d, want 1", stats.SentCards)
	}
	if stats.ReceivedCards != 1 {
		t.Errorf("ReceivedCards = %d, want 1", stats.ReceivedCards)
	}
	if len(stats.Recent) != 2 {
		t.Fatalf("len(Recent) = %d, want 2", len(stats.Recent))
	}
	// Newest card first.
	if stats.Recent[0].Direction != model.DirectionRC || stats.Recent[0].StationCallsign != "W1AW" {
		t.Errorf("Recent[0] = %+v, want RC/W1AW", stats.Recent[0])
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	insertLog(t, db, "JA1ABC", "20250310", "120000", "20m", "SSB")

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("backup file is empty")
	}
}
