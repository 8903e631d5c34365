package firmware

import (
	"bufio"
	"encoding/hex"
	"io"
	"strings"

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/pkg/errors"
)

/*
Intel HEX record:
':'	start code
LL	data byte count
AAAA	16 bit address offset, big endian
TT	record type
DD..	data
CC	two's complement checksum of all preceding bytes
*/

type HexRecordType byte

const (
	HEX_RECORD_DATA                     HexRecordType = 0x00
	HEX_RECORD_END_OF_FILE              HexRecordType = 0x01
	HEX_RECORD_EXTENDED_SEGMENT_ADDRESS HexRecordType = 0x02
	HEX_RECORD_START_SEGMENT_ADDRESS    HexRecordType = 0x03
	HEX_RECORD_EXTENDED_LINEAR_ADDRESS  HexRecordType = 0x04
	HEX_RECORD_START_LINEAR_ADDRESS     HexRecordType = 0x05
)

const hexRecordOverhead = 5 // count, address (2), type, checksum

type HexRecord struct {
	Type   HexRecordType
	Offset uint16
	Data   []byte
}

func parseHexRecord(line string) (*HexRecord, error) {
	if len(line) < 1 || line[0] != ':' {
		return nil, errors.New("record must start with ':'")
	}
	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex digits")
	}
	if len(raw) < hexRecordOverhead {
		return nil, errors.Errorf("record too short (%d bytes)", len(raw))
	}
	count := int(raw[0])
	if len(raw) != hexRecordOverhead+count {
		return nil, errors.Errorf("record length %d does not match byte count %d", len(raw), count)
	}
	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return nil, errors.Errorf("checksum mismatch, record sums to %#02x", sum)
	}
	return &HexRecord{
		Type:   HexRecordType(raw[3]),
		Offset: uint16(raw[1])<<8 | uint16(raw[2]),
		Data:   raw[4 : 4+count],
	}, nil
}

// ParseHex reads an Intel HEX stream into an image. Records that continue the
// previous one are merged into a single segment.
func ParseHex(r io.Reader) (*cc13xx.Image, error) {
	scanner := bufio.NewScanner(r)
	img := &cc13xx.Image{}
	var base uint32
	var cur *cc13xx.Segment
	lineNum := 0
	eof := false

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if eof {
			return nil, errors.Errorf("line %d: data after end of file record", lineNum)
		}
		rec, err := parseHexRecord(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}

		switch rec.Type {
		case HEX_RECORD_DATA:
			addr := base + uint32(rec.Offset)
			if cur != nil && cur.End() == addr {
				cur.Data = append(cur.Data, rec.Data...)
				continue
			}
			if cur != nil {
				img.Segments = append(img.Segments, *cur)
			}
			cur = &cc13xx.Segment{Address: addr, Data: append([]byte(nil), rec.Data...)}
		case HEX_RECORD_END_OF_FILE:
			eof = true
		case HEX_RECORD_EXTENDED_SEGMENT_ADDRESS:
			if len(rec.Data) != 2 {
				return nil, errors.Errorf("line %d: malformed extended segment address", lineNum)
			}
			base = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 4
		case HEX_RECORD_EXTENDED_LINEAR_ADDRESS:
			if len(rec.Data) != 2 {
				return nil, errors.Errorf("line %d: malformed extended linear address", lineNum)
			}
			base = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 16
		case HEX_RECORD_START_SEGMENT_ADDRESS, HEX_RECORD_START_LINEAR_ADDRESS:
			// entry point, the ROM starts from the vector table anyway
		default:
			return nil, errors.Errorf("line %d: unknown record type %#02x", lineNum, byte(rec.Type))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading hex file")
	}
	if !eof {
		return nil, errors.New("missing end of file record")
	}
	if cur != nil {
		img.Segments = append(img.Segments, *cur)
	}
	if err := img.Normalize(); err != nil {
		return nil, err
	}
	return img, nil
}
