package cc13xx

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cc1310Info = ChipInfo{
	Family:      FamilyCC13x0,
	FlashBase:   FlashBase,
	FlashSize:   128 * 1024,
	SectorSize:  4096,
	SRAMBase:    SRAMBase,
	CCFGAddress: 128*1024 - ccfgSize,
}

func TestPlanSmallImage(t *testing.T) {
	data := pattern(300)
	p, err := NewPlan(NewImage(0, data), cc1310Info, PlanOptions{})
	require.NoError(t, err)

	assert.Equal(t, []FlashRegion{{Start: 0, Length: 4096}}, p.Erases)
	assert.Equal(t, []uint32{0}, p.Sectors())
	require.Len(t, p.Windows, 1)
	w := p.Windows[0]
	assert.Equal(t, uint32(0), w.Address)
	assert.Equal(t, uint32(300), w.Length)
	require.Len(t, w.Chunks, 2)
	assert.Equal(t, uint32(0), w.Chunks[0].Address)
	assert.Len(t, w.Chunks[0].Data, 252)
	assert.Equal(t, uint32(252), w.Chunks[1].Address)
	assert.Len(t, w.Chunks[1].Data, 48)
	assert.Equal(t, []VerifyRange{{Address: 0, Length: 300, CRC: crc32.ChecksumIEEE(data)}}, p.Verifies)
	assert.Equal(t, 300, p.TotalBytes)
}

func TestPlanChunking(t *testing.T) {
	for _, n := range []int{1, 251, 252, 253, 504, 1000, 4096} {
		for _, size := range []int{16, 100, MaxSendDataLength} {
			data := pattern(n)
			p, err := NewPlan(NewImage(0x1000, data), cc1310Info, PlanOptions{ChunkSize: size})
			require.NoError(t, err)

			assert.Equal(t, (n+size-1)/size, p.Chunks(), "n=%d size=%d", n, size)
			var joined []byte
			next := uint32(0x1000)
			for _, c := range p.Windows[0].Chunks {
				assert.Equal(t, next, c.Address)
				assert.LessOrEqual(t, len(c.Data), size)
				joined = append(joined, c.Data...)
				next += uint32(len(c.Data))
			}
			assert.True(t, bytes.Equal(data, joined), "n=%d size=%d", n, size)
		}
	}
}

func TestPlanEraseCoversSegments(t *testing.T) {
	img := &Image{Segments: []Segment{
		{Address: 0x0ff0, Data: pattern(0x20)},  // straddles sectors 0 and 1
		{Address: 0x1800, Data: pattern(0x10)},  // sector 1 again
		{Address: 0x5000, Data: pattern(0x100)}, // sector 5
	}}
	p, err := NewPlan(img, cc1310Info, PlanOptions{})
	require.NoError(t, err)

	assert.Equal(t, []FlashRegion{
		{Start: 0, Length: 0x2000},
		{Start: 0x5000, Length: 0x1000},
	}, p.Erases)
	assert.Equal(t, []uint32{0, 0x1000, 0x5000}, p.Sectors())
	assert.Len(t, p.Windows, 3)
	assert.Len(t, p.Verifies, 3)
}

func TestPlanMergesAdjacentSegments(t *testing.T) {
	img := &Image{Segments: []Segment{
		{Address: 0x100, Data: pattern(0x100)},
		{Address: 0x000, Data: pattern(0x100)},
	}}
	p, err := NewPlan(img, cc1310Info, PlanOptions{})
	require.NoError(t, err)
	require.Len(t, p.Windows, 1)
	assert.Equal(t, uint32(0), p.Windows[0].Address)
	assert.Equal(t, uint32(0x200), p.Windows[0].Length)
	// the caller's image is left alone
	assert.Equal(t, uint32(0x100), img.Segments[0].Address)
}

func TestPlanImageTooLarge(t *testing.T) {
	tests := []struct {
		name string
		img  *Image
	}{
		{"past flash end", NewImage(128*1024-16, pattern(32))},
		{"larger than flash", NewImage(0, pattern(128*1024+1))},
		{"peripheral space", NewImage(0x40000000, pattern(4))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(tt.img, cc1310Info, PlanOptions{})
			var itl *ImageTooLargeError
			require.True(t, errors.As(err, &itl), "got %v", err)
			assert.Equal(t, cc1310Info.FlashEnd(), itl.FlashEnd)
		})
	}
}

func TestPlanSkipsSRAM(t *testing.T) {
	img := &Image{Segments: []Segment{
		{Address: 0, Data: pattern(64)},
		{Address: SRAMBase + 0x100, Data: pattern(64)},
	}}
	p, err := NewPlan(img, cc1310Info, PlanOptions{})
	require.NoError(t, err)
	require.Len(t, p.Skipped, 1)
	assert.Equal(t, SRAMBase+0x100, p.Skipped[0].Address)
	assert.Len(t, p.Windows, 1)
	assert.Equal(t, 64, p.TotalBytes)

	_, err = NewPlan(NewImage(SRAMBase, pattern(8)), cc1310Info, PlanOptions{})
	assert.True(t, errors.Is(err, ErrEmptyImage))
}

func TestPlanBankErase(t *testing.T) {
	p, err := NewPlan(NewImage(0, pattern(8192)), cc1310Info, PlanOptions{BankErase: true})
	require.NoError(t, err)
	assert.True(t, p.BankErase)
	assert.Empty(t, p.Erases)
	assert.Len(t, p.Windows, 1)
}

func TestPlanRejectsBadImages(t *testing.T) {
	_, err := NewPlan(nil, cc1310Info, PlanOptions{})
	assert.True(t, errors.Is(err, ErrEmptyImage))
	_, err = NewPlan(NewImage(0, nil), cc1310Info, PlanOptions{})
	assert.True(t, errors.Is(err, ErrEmptyImage))

	overlap := &Image{Segments: []Segment{
		{Address: 0, Data: pattern(0x100)},
		{Address: 0x80, Data: pattern(0x100)},
	}}
	_, err = NewPlan(overlap, cc1310Info, PlanOptions{})
	assert.Error(t, err)
}

func TestCheckCCFG(t *testing.T) {
	blAddr := cc1310Info.BLConfigAddress()
	assert.Equal(t, uint32(0x1ffd8), blAddr)

	ccfg := func(value []byte) *Image {
		return &Image{Segments: []Segment{{Address: blAddr, Data: value}}}
	}

	blc, err := CheckCCFG(ccfg([]byte{0xc5, 0x0f, 0xfe, 0xc5}), cc1310Info)
	require.NoError(t, err)
	assert.True(t, blc.Enabled)
	assert.True(t, blc.BackdoorEnabled)
	assert.Equal(t, byte(0x0f), blc.BackdoorPin)
	assert.False(t, blc.ActiveHigh)

	for _, value := range [][]byte{
		{0xff, 0xff, 0xff, 0xff},
		{0x00, 0x0f, 0xfe, 0xc5},
		{0xc5, 0x0f, 0xfe, 0x00},
	} {
		_, err := CheckCCFG(ccfg(value), cc1310Info)
		var ce *CCFGError
		assert.True(t, errors.As(err, &ce), "value % x", value)
	}

	blc, err = CheckCCFG(NewImage(0, pattern(64)), cc1310Info)
	assert.NoError(t, err)
	assert.Nil(t, blc)

	// word spread over two segments
	split := &Image{Segments: []Segment{
		{Address: blAddr - 2, Data: []byte{0x00, 0x00, 0xc5, 0x0f}},
		{Address: blAddr + 2, Data: []byte{0xfe, 0xc5}},
	}}
	blc, err = CheckCCFG(split, cc1310Info)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xc5fe0fc5), blc.Raw)

	// bytes left out of the image read as erased
	partial := &Image{Segments: []Segment{{Address: blAddr, Data: []byte{0xc5, 0x0f}}}}
	blc, err = CheckCCFG(partial, cc1310Info)
	var ce *CCFGError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, uint32(0xffff0fc5), blc.Raw)
}

func TestFamilyFromDeviceID(t *testing.T) {
	assert.Equal(t, FamilyCC13x0, familyFromDeviceID(0x0b9be02f))
	assert.Equal(t, FamilyCC13x0, familyFromDeviceID(0x0b99a02f))
	assert.Equal(t, FamilyCC13x2, familyFromDeviceID(0x0bb4102f))
	assert.Equal(t, FamilyCC13x2, familyFromDeviceID(0x0bb7a02f))
	assert.Equal(t, FamilyUnknown, familyFromDeviceID(0x0ffff02f))
}
