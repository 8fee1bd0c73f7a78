package model

import "time"

// Card directions. RC is a card we received, TC is a card we sent.
const (
	DirectionRC = "RC"
	DirectionTC = "TC"
)

// Domain values for the qsl_sent / qsl_rcvd flags.
const (
	FlagYes = "Y"
	FlagNo  = "N"
)

// StatusInStock is the status assigned to a card at issuance.
// The engine never transitions it further; label tooling reads it only.
const StatusInStock = "In Stock"

// Log represents one QSO (contact) record.
// Date and time are UTC strings in ADIF form: YYYYMMDD and HHMM or HHMMSS.
// AuditBlob is derived from the other fields on every write; callers never
// set it themselves.
type Log struct {
	ID              int64  `json:"id"`
	SortID          int64  `json:"sort_id"`
	MyCallsign      string `json:"my_callsign"`
	StationCallsign string `json:"station_callsign"`
	QSODate         string `json:"qso_date"`
	TimeOn          string `json:"time_on"`
	Band            string `json:"band"`
	BandRX          string `json:"band_rx"`
	Freq            string `json:"freq"`
	FreqRX          string `json:"freq_rx"`
	Mode            string `json:"mode"`
	Submode         string `json:"submode"`
	RSTSent         string `json:"rst_sent"`
	RSTRcvd         string `json:"rst_rcvd"`
	Comment         string `json:"comment"`
	QSLSent         string `json:"qsl_sent"`
	QSLRcvd         string `json:"qsl_rcvd"`
	SatName         string `json:"sat_name"`
	PropMode        string `json:"prop_mode"`
	AuditBlob       string `json:"-"`
}

// LogSummary is the column set returned by search, ordered for display.
type LogSummary struct {
	ID              int64
	MyCallsign      string
	StationCallsign string
	QSODate         string
	TimeOn          string
	Band            string
	BandRX          string
	Freq            string
	FreqRX          string
	Mode            string
	QSLSent         string
	QSLRcvd         string
	Comment         string
}

// Card represents one physical QSL card. Direction is immutable after
// creation; the id is the generated card identifier string.
type Card struct {
	ID        string
	Direction string
	Status    string
	CreatedAt time.Time
}

// Activity is one entry of the recent-cards feed: a card direction plus
// the remote callsign of one of its linked contacts.
type Activity struct {
	Direction       string
	StationCallsign string
}

// Stats holds the dashboard counters.
type Stats struct {
	TotalLogs     int64
	SentCards     int64
	ReceivedCards int64
	Recent        []Activity
}
