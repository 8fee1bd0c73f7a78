package qsl

import (
	"fmt"
	"io"
	"strconv"

	"qslm/internal/model"
)

// Card ids are YY + 6-digit serial + direction + 16 uppercase hex chars of
// entropy: sortable by issuance recency within a year, human-auditable, and
// collision-proof via the random suffix.
const (
	idYearLen   = 2
	idSerialLen = 6
	entropyLen  = 8 // bytes; 16 hex chars
)

// CardIDGenerator mints card identifiers. The entropy reader is injected
// so tests are deterministic; production wiring passes crypto/rand.Reader.
type CardIDGenerator struct {
	clock   Clock
	entropy io.Reader
}

func NewCardIDGenerator(clock Clock, entropy io.Reader) *CardIDGenerator {
	return &CardIDGenerator{clock: clock, entropy: entropy}
}

// Generate mints a new id for the given direction. The serial continues
// from the most recently created card of the same direction when its
// embedded year prefix matches the current year, and resets to 1 otherwise.
func (g *CardIDGenerator) Generate(store Store, direction string) (string, error) {
	if direction != model.DirectionRC && direction != model.DirectionTC {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	year := g.clock.Now().UTC().Format("06")

	serial, err := g.nextSerial(store, direction, year)
	if err != nil {
		return "", err
	}

	buf := make([]byte, entropyLen)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}

	return fmt.Sprintf("%s%06d%s%X", year, serial, direction, buf), nil
}

// nextSerial returns the prior year-scoped maximum serial plus one.
func (g *CardIDGenerator) nextSerial(store Store, direction, year string) (int, error) {
	last, ok, err := store.LastCardID(direction)
	if err != nil {
		return 0, fmt.Errorf("querying last card id: %w", err)
	}
	if !ok || len(last) < idYearLen+idSerialLen {
		return 1, nil
	}
	if last[:idYearLen] != year {
		return 1, nil
	}
	serial, err := strconv.Atoi(last[idYearLen : idYearLen+idSerialLen])
	if err != nil {
		return 1, nil
	}
	return serial + 1, nil
}
