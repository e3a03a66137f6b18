package echodemo

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// Lifecycle hands the next generation number to the spawned process as
// a 4-byte big-endian counter. Once the counter would pass
// MaxGenerations the restart is vetoed and the current generation keeps
// serving.
type Lifecycle struct {
	Generation     int
	MaxGenerations int
}

func (l Lifecycle) Send(_ context.Context, w io.Writer) error {
	next := l.Generation + 1
	if next > l.MaxGenerations {
		return fmt.Errorf("generation limit %d reached", l.MaxGenerations)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(next))
	_, err := w.Write(buf[:])
	return err
}

// DecodePayload reads an inherited handoff payload back into a
// generation number.
func DecodePayload(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read handoff payload: %w", err)
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("handoff payload has %d bytes, want 4", len(data))
	}
	return int(binary.BigEndian.Uint32(data)), nil
}
