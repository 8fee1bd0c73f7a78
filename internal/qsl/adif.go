package qsl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"qslm/internal/model"
)

// adifFields maps log fields to their standard ADIF tag names, in the
// order they are written. The mapping is fixed for interoperability with
// other logging software.
var adifFields = []struct {
	tag   string
	value func(*model.Log) string
}{
	{"CALL", func(l *model.Log) string { return l.StationCallsign }},
	{"QSO_DATE", func(l *model.Log) string { return l.QSODate }},
	{"TIME_ON", func(l *model.Log) string { return l.TimeOn }},
	{"BAND", func(l *model.Log) string { return l.Band }},
	{"BAND_RX", func(l *model.Log) string { return l.BandRX }},
	{"MODE", func(l *model.Log) string { return l.Mode }},
	{"SUBMODE", func(l *model.Log) string { return l.Submode }},
	{"RST_SENT", func(l *model.Log) string { return l.RSTSent }},
	{"RST_RCVD", func(l *model.Log) string { return l.RSTRcvd }},
	{"FREQ", func(l *model.Log) string { return l.Freq }},
	{"FREQ_RX", func(l *model.Log) string { return l.FreqRX }},
	{"OPERATOR", func(l *model.Log) string { return l.MyCallsign }},
	{"COMMENT", func(l *model.Log) string { return l.Comment }},
	{"QSL_SENT", func(l *model.Log) string { return l.QSLSent }},
	{"QSL_RCVD", func(l *model.Log) string { return l.QSLRcvd }},
	{"SAT_NAME", func(l *model.Log) string { return l.SatName }},
	{"PROP_MODE", func(l *model.Log) string { return l.PropMode }},
}

// ADIFRecord renders one log as an ADIF tagged record. Empty fields are
// omitted; the record is terminated by <EOR>.
func ADIFRecord(l *model.Log) string {
	var b strings.Builder
	for _, f := range adifFields {
		v := f.value(l)
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "<%s:%d>%s ", f.tag, len(v), v)
	}
	b.WriteString("<EOR>\n\n")
	return b.String()
}

// ParseADIF reads ADIF records from r and returns one uppercase-tag field
// map per record. Header content before <EOH> is skipped; tag length
// fields are honored so values may contain angle brackets.
func ParseADIF(r io.Reader) ([]map[string]string, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("reading adif input: %w", err)
	}
	s := string(data)

	var records []map[string]string
	current := map[string]string{}

	for {
		open := strings.IndexByte(s, '<')
		if open < 0 {
			break
		}
		s = s[open+1:]
		close := strings.IndexByte(s, '>')
		if close < 0 {
			break
		}
		spec := s[:close]
		s = s[close+1:]

		parts := strings.SplitN(spec, ":", 3)
		tag := strings.ToUpper(strings.TrimSpace(parts[0]))

		switch tag {
		case "EOR":
			if len(current) > 0 {
				records = append(records, current)
				current = map[string]string{}
			}
			continue
		case "EOH":
			// Anything collected so far was header noise.
			current = map[string]string{}
			continue
		}

		if len(parts) < 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 || n > len(s) {
			continue
		}
		current[tag] = strings.TrimSpace(s[:n])
		s = s[n:]
	}

	if len(current) > 0 {
		records = append(records, current)
	}
	return records, nil
}
