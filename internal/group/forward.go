package group

import (
	"encoding/binary"
	"io"
)

// writeForwardMsg/readForwardMsg frame one JSON message on the
// drain-forward side channel with a 4-byte length prefix. Unlike the
// Hub's own per-group frames (one payload per Write, delivered whole),
// this channel is a persistent stream carrying many request/response
// pairs, so message boundaries need an explicit length rather than
// relying on write/deliver granularity.
func writeForwardMsg(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func readForwardMsg(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
