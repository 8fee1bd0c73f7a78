package testutil

// StubEntropy is an io.Reader that yields a repeating byte, making card
// id suffixes deterministic in tests.
type StubEntropy struct {
	Byte byte
}

func (e *StubEntropy) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = e.Byte
	}
	return len(p), nil
}
