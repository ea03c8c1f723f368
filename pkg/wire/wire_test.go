package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_RoundTrip(t *testing.T) {
	batch := []HandoffRecord{
		{Lane: 0, ID: 17, Position: 2, Speed: 3, TicksOnSegment: 12},
		{Lane: 1, ID: 23, Position: 0, Speed: 5, TicksOnSegment: 4},
	}
	data, err := EncodeBatch(batch)
	require.NoError(t, err)
	// 4 byte count plus 20 bytes per record
	assert.Len(t, data, 4+len(batch)*20)

	got, err := DecodeBatch(data)
	require.NoError(t, err)
	if diff := cmp.Diff(batch, got); diff != "" {
		t.Errorf("DecodeBatch() mismatch: %s", diff)
	}
}

func TestBatch_Empty(t *testing.T) {
	data, err := EncodeBatch(nil)
	require.NoError(t, err)
	assert.Len(t, data, 4)

	got, err := DecodeBatch(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeBatch_Malformed(t *testing.T) {
	valid, err := EncodeBatch([]HandoffRecord{{ID: 1}, {ID: 2}})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty payload", data: []byte{}},
		{name: "short count", data: valid[:2]},
		{name: "truncated record", data: valid[:len(valid)-5]},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, decErr := DecodeBatch(tt.data); decErr == nil {
				t.Errorf("DecodeBatch() expected error for %s", tt.name)
			}
		})
	}
}

func TestStat_RoundTrip(t *testing.T) {
	rec := StatRecord{Mean: 12.5, Variance: 3.25, Count: 99}
	data, err := EncodeStat(rec)
	require.NoError(t, err)
	assert.Len(t, data, 24)

	got, err := DecodeStat(data)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = DecodeStat(data[:10])
	assert.Error(t, err)
}
