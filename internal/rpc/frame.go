// Package rpc implements the daemon transport: length-prefixed JSON-RPC 2.0
// over a local byte-stream socket.
package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize is the largest JSON body a single message may carry
// (spec.md §4.F: "Maximum message length: 64 MiB").
const MaxFrameSize = 64 << 20

// frameHeaderSize is the width of the big-endian length prefix.
const frameHeaderSize = 4

// ReadFrame reads one [uint32 length][JSON body] message from r. An error
// is returned (without partially consuming the body) if the declared
// length exceeds MaxFrameSize, so the caller can close the connection
// without trying to resynchronize the stream.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("rpc: frame of %d bytes exceeds max size %d", n, MaxFrameSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes body as one length-prefixed message to w.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("rpc: frame of %d bytes exceeds max size %d", len(body), MaxFrameSize)
	}

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
