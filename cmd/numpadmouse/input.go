package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// inputEventSize is the wire size of one record (24 bytes on 64-bit kernels).
var inputEventSize = binary.Size(inputEvent{})

// errMalformedBatch is returned when a read from a keyboard does not contain
// a whole number of input_event records. The device protocol guarantees
// whole records, so this is not recoverable.
var errMalformedBatch = errors.New("malformed input batch")

// decodeBatch splits a raw read into input events.
func decodeBatch(buf []byte) ([]inputEvent, error) {
	if len(buf)%inputEventSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", errMalformedBatch, len(buf), inputEventSize)
	}

	n := len(buf) / inputEventSize
	events := make([]inputEvent, n)
	if n == 0 {
		return events, nil
	}
	if err := binary.Read(bytes.NewReader(buf), binary.NativeEndian, events); err != nil {
		return nil, fmt.Errorf("decode input batch: %w", err)
	}
	return events, nil
}

// encodeEvents serializes events into a single buffer suitable for one write(2).
func encodeEvents(events ...inputEvent) []byte {
	var b bytes.Buffer
	b.Grow(len(events) * inputEventSize)
	// Writing fixed-size structs to a bytes.Buffer cannot fail.
	_ = binary.Write(&b, binary.NativeEndian, events)
	return b.Bytes()
}
