package firmware

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record formats an Intel HEX line with a valid checksum.
func record(typ HexRecordType, offset uint16, data []byte) string {
	raw := []byte{byte(len(data)), byte(offset >> 8), byte(offset), byte(typ)}
	raw = append(raw, data...)
	var sum byte
	for _, b := range raw {
		sum += b
	}
	raw = append(raw, -sum)
	return ":" + strings.ToUpper(hex.EncodeToString(raw))
}

func hexFile(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

var eofRecord = record(HEX_RECORD_END_OF_FILE, 0, nil)

func TestParseHexRecord(t *testing.T) {
	rec, err := parseHexRecord(":0400000001020304F2")
	require.NoError(t, err)
	assert.Equal(t, HEX_RECORD_DATA, rec.Type)
	assert.Equal(t, uint16(0), rec.Offset)
	assert.Equal(t, []byte{1, 2, 3, 4}, rec.Data)

	assert.Equal(t, ":0400000001020304F2", record(HEX_RECORD_DATA, 0, []byte{1, 2, 3, 4}))
	assert.Equal(t, ":00000001FF", eofRecord)
}

func TestParseHexRecordErrors(t *testing.T) {
	for _, line := range []string{
		"0400000001020304F2",  // no start code
		":0400000001020304F3", // checksum
		":0500000001020304F1", // byte count
		":04000000010203ZZF2", // digits
		":0000",               // too short
	} {
		_, err := parseHexRecord(line)
		assert.Error(t, err, line)
	}
}

func TestParseHexMergesContiguousRecords(t *testing.T) {
	in := hexFile(
		record(HEX_RECORD_DATA, 0x0000, []byte{0x00, 0x01, 0x02, 0x03}),
		record(HEX_RECORD_DATA, 0x0004, []byte{0x04, 0x05}),
		record(HEX_RECORD_DATA, 0x0100, []byte{0xaa}),
		eofRecord,
	)

	img, err := ParseHex(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []cc13xx.Segment{
		{Address: 0x0000, Data: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}},
		{Address: 0x0100, Data: []byte{0xaa}},
	}, img.Segments)
}

func TestParseHexExtendedAddresses(t *testing.T) {
	in := hexFile(
		record(HEX_RECORD_EXTENDED_LINEAR_ADDRESS, 0, []byte{0x00, 0x01}),
		record(HEX_RECORD_DATA, 0xffa8, []byte{0xc5, 0xc5}),
		record(HEX_RECORD_EXTENDED_SEGMENT_ADDRESS, 0, []byte{0x10, 0x00}),
		record(HEX_RECORD_DATA, 0x0010, []byte{0x11}),
		record(HEX_RECORD_START_LINEAR_ADDRESS, 0, []byte{0x00, 0x00, 0x00, 0xc1}),
		eofRecord,
	)

	img, err := ParseHex(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, img.Segments, 2)
	assert.Equal(t, uint32(0x00010010), img.Segments[0].Address)
	assert.Equal(t, uint32(0x0001ffa8), img.Segments[1].Address)
}

func TestParseHexErrors(t *testing.T) {
	data := record(HEX_RECORD_DATA, 0, []byte{1})
	tests := []struct {
		name string
		in   string
	}{
		{"missing eof", hexFile(data)},
		{"data after eof", hexFile(data, eofRecord, data)},
		{"unknown type", hexFile(record(0x07, 0, nil), eofRecord)},
		{"bad extended address", hexFile(record(HEX_RECORD_EXTENDED_LINEAR_ADDRESS, 0, []byte{1}), eofRecord)},
		{"overlap", hexFile(data, record(HEX_RECORD_DATA, 0, []byte{2}), eofRecord)},
		{"corrupt line", hexFile(":0400000001020304F3", eofRecord)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHex(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestParseHexReportsLine(t *testing.T) {
	in := hexFile(record(HEX_RECORD_DATA, 0, []byte{1}), ":00000001FE")
	_, err := ParseHex(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
