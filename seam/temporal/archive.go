package temporal

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/TIVerse/neurobus"
)

// CompactingSink archives evicted pages as newline-delimited JSON,
// zstd-compressed, written through Write to whatever sink the caller
// configures (object storage, a file, a network writer). Compression uses
// the zstd encoder from klauspost/compress.
type CompactingSink struct {
	mu    sync.Mutex
	write func(compressed []byte) error
	level zstd.EncoderLevel
}

// NewCompactingSink builds a CompactingSink. write receives one compressed
// blob per evicted page; level defaults to zstd.SpeedDefault.
func NewCompactingSink(write func([]byte) error, level zstd.EncoderLevel) *CompactingSink {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	return &CompactingSink{write: write, level: level}
}

// Archive encodes page as newline-delimited JSON, compresses it, and hands
// the result to the configured writer.
func (s *CompactingSink) Archive(page []*neurobus.Event) error {
	if len(page) == 0 {
		return nil
	}

	var raw bytes.Buffer
	for _, e := range page {
		b, err := e.ToJSON()
		if err != nil {
			return fmt.Errorf("neurobus/temporal: encoding archived event: %w", err)
		}
		raw.Write(b)
		raw.WriteByte('\n')
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(s.level))
	if err != nil {
		return fmt.Errorf("neurobus/temporal: building zstd encoder: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(raw.Bytes(), nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(compressed)
}
