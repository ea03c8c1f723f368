// Package wire defines the fixed layout records exchanged between workers:
// handoff batches travelling rank i -> rank i+1 and the statistics samples
// gathered at the head when the run finishes.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// HandoffRecord carries the state needed to rebuild a vehicle on the
// next segment. 20 bytes on the wire, five little endian int32 values.
type HandoffRecord struct {
	Lane           int32
	ID             int32
	Position       int32
	Speed          int32
	TicksOnSegment int32
}

// StatRecord is one worker's travel time sample on the wire.
// 24 bytes, three little endian float64 values.
type StatRecord struct {
	Mean     float64
	Variance float64
	Count    float64
}

// EncodeBatch frames a handoff batch as a 4 byte record count followed by
// the fixed size records.
func EncodeBatch(records []HandoffRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(records))); err != nil {
		return nil, fmt.Errorf("error writing record count: %w", err)
	}
	for i := range records {
		if err := binary.Write(&buf, binary.LittleEndian, &records[i]); err != nil {
			return nil, fmt.Errorf("error writing handoff record: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeBatch reads a framed handoff batch. A truncated or oversized
// payload is reported as an error.
func DecodeBatch(data []byte) ([]HandoffRecord, error) {
	buf := bytes.NewBuffer(data)
	var count uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("error reading record count: %w", err)
	}
	records := make([]HandoffRecord, count)
	for i := range records {
		if err := binary.Read(buf, binary.LittleEndian, &records[i]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("truncated handoff batch: got %d of %d records", i, count)
			}
			return nil, fmt.Errorf("error reading handoff record: %w", err)
		}
	}
	if buf.Len() > 0 {
		return nil, fmt.Errorf("handoff batch has %d trailing bytes", buf.Len())
	}
	return records, nil
}

func EncodeStat(rec StatRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
		return nil, fmt.Errorf("error writing stat record: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeStat(data []byte) (StatRecord, error) {
	var rec StatRecord
	buf := bytes.NewBuffer(data)
	if err := binary.Read(buf, binary.LittleEndian, &rec); err != nil {
		return StatRecord{}, fmt.Errorf("error reading stat record: %w", err)
	}
	if buf.Len() > 0 {
		return StatRecord{}, fmt.Errorf("stat record has %d trailing bytes", buf.Len())
	}
	return rec, nil
}
