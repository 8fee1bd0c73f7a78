package qsl

import (
	"strings"

	"qslm/internal/model"
)

// Merge labels distinguish how a comment arrived in the canonical record.
const (
	mergeLabelCluster = "MERGED"
	mergeLabelImport  = "IMPORTED"
)

// foldLog copies each non-empty field of src into dst where dst's field is
// still empty (first-non-empty-wins; dst always takes priority). Comments
// additionally concatenate: a src comment not already contained in dst's is
// appended as "<dst> | <label>: <src>", trimmed of leading separators.
// The id, sort_id and audit blob are never touched. Returns true if dst
// changed.
func foldLog(dst, src *model.Log, label string) bool {
	changed := false
	fill := func(d *string, s string) {
		if s != "" && *d == "" {
			*d = s
			changed = true
		}
	}

	fill(&dst.MyCallsign, src.MyCallsign)
	fill(&dst.StationCallsign, src.StationCallsign)
	fill(&dst.QSODate, src.QSODate)
	fill(&dst.TimeOn, src.TimeOn)
	fill(&dst.Band, src.Band)
	fill(&dst.BandRX, src.BandRX)
	fill(&dst.Freq, src.Freq)
	fill(&dst.FreqRX, src.FreqRX)
	fill(&dst.Mode, src.Mode)
	fill(&dst.Submode, src.Submode)
	fill(&dst.RSTSent, src.RSTSent)
	fill(&dst.RSTRcvd, src.RSTRcvd)
	fill(&dst.Comment, src.Comment)
	fill(&dst.SatName, src.SatName)
	fill(&dst.PropMode, src.PropMode)

	// "N" is a real domain value, not emptiness: the canonical's flags win
	// even against a member's "Y".
	fill(&dst.QSLSent, src.QSLSent)
	fill(&dst.QSLRcvd, src.QSLRcvd)

	if src.Comment != "" && !strings.Contains(dst.Comment, src.Comment) {
		dst.Comment = strings.Trim(dst.Comment+" | "+label+": "+src.Comment, " |")
		changed = true
	}

	return changed
}
