package qsl

import (
	"testing"

	"qslm/internal/model"
)

func TestFoldLog(t *testing.T) {
	t.Run("fills empty fields only", func(t *testing.T) {
		dst := &model.Log{StationCallsign: "JA1ABC", Band: "", RSTSent: "59"}
		src := &model.Log{StationCallsign: "OTHER", Band: "20m", RSTSent: "55", Freq: "14.074"}

		changed := foldLog(dst, src, mergeLabelCluster)

		if !changed {
			t.Fatal("foldLog() = false, want true")
		}
		if dst.StationCallsign != "JA1ABC" {
			t.Errorf("StationCallsign = %q, canonical value must win", dst.StationCallsign)
		}
		if dst.Band != "20m" {
			t.Errorf("Band = %q, want filled from member", dst.Band)
		}
		if dst.RSTSent != "59" {
			t.Errorf("RSTSent = %q, canonical value must win", dst.RSTSent)
		}
		if dst.Freq != "14.074" {
			t.Errorf("Freq = %q, want filled from member", dst.Freq)
		}
	})

	t.Run("comments concatenate with label", func(t *testing.T) {
		dst := &model.Log{Comment: "hi"}
		src := &model.Log{Comment: "there"}

		foldLog(dst, src, mergeLabelCluster)

		if dst.Comment != "hi | MERGED: there" {
			t.Errorf("Comment = %q, want %q", dst.Comment, "hi | MERGED: there")
		}
	})

	t.Run("import label", func(t *testing.T) {
		dst := &model.Log{Comment: "hi"}
		src := &model.Log{Comment: "there"}

		foldLog(dst, src, mergeLabelImport)

		if dst.Comment != "hi | IMPORTED: there" {
			t.Errorf("Comment = %q, want %q", dst.Comment, "hi | IMPORTED: there")
		}
	})

	t.Run("empty canonical comment takes member comment verbatim", func(t *testing.T) {
		dst := &model.Log{}
		src := &model.Log{Comment: "there"}

		foldLog(dst, src, mergeLabelCluster)

		if dst.Comment != "there" {
			t.Errorf("Comment = %q, want %q", dst.Comment, "there")
		}
	})

	t.Run("contained comment is not duplicated", func(t *testing.T) {
		dst := &model.Log{Comment: "nice long chat"}
		src := &model.Log{Comment: "long chat"}

		changed := foldLog(dst, src, mergeLabelCluster)

		if changed {
			t.Error("foldLog() = true, want false")
		}
		if dst.Comment != "nice long chat" {
			t.Errorf("Comment = %q, want unchanged", dst.Comment)
		}
	})

	t.Run("canonical N flag beats member Y", func(t *testing.T) {
		dst := &model.Log{QSLSent: model.FlagNo, QSLRcvd: model.FlagNo}
		src := &model.Log{QSLSent: model.FlagYes, QSLRcvd: model.FlagYes}

		changed := foldLog(dst, src, mergeLabelCluster)

		if changed {
			t.Error("foldLog() = true, want false")
		}
		if dst.QSLSent != model.FlagNo || dst.QSLRcvd != model.FlagNo {
			t.Errorf("flags = (%q, %q), want (N, N)", dst.QSLSent, dst.QSLRcvd)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		dst := &model.Log{StationCallsign: "JA1ABC", Comment: "hi"}
		src := &model.Log{StationCallsign: "JA1ABC", Band: "20m", Comment: "there"}

		foldLog(dst, src, mergeLabelCluster)
		after := *dst
		changed := foldLog(dst, src, mergeLabelCluster)

		if changed {
			t.Error("second foldLog() = true, want false")
		}
		if *dst != after {
			t.Errorf("second fold mutated record: %+v -> %+v", after, *dst)
		}
	})
}
