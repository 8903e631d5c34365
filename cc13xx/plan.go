package cc13xx

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/pkg/errors"
)

type Segment struct {
	Address uint32
	Data    []byte
}

func (s Segment) End() uint32 {
	return s.Address + uint32(len(s.Data))
}

// Image is a set of address tagged data segments.
type Image struct {
	Segments []Segment
}

// NewImage wraps a flat binary placed at base.
func NewImage(base uint32, data []byte) *Image {
	return &Image{Segments: []Segment{{Address: base, Data: data}}}
}

func (img *Image) Size() (n int) {
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// Normalize sorts the segments and merges the ones that touch. Overlapping
// segments are an error.
func (img *Image) Normalize() error {
	segs := make([]Segment, 0, len(img.Segments))
	for _, s := range img.Segments {
		if len(s.Data) > 0 {
			segs = append(segs, s)
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Address < segs[j].Address })

	var merged []Segment
	for _, s := range segs {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if s.Address < last.End() {
				return errors.Errorf("segment at %#08x overlaps segment %#08x-%#08x", s.Address, last.Address, last.End())
			}
			if s.Address == last.End() {
				last.Data = append(append([]byte(nil), last.Data...), s.Data...)
				continue
			}
		}
		merged = append(merged, s)
	}
	img.Segments = merged
	return nil
}

func (img *Image) String() string {
	return fmt.Sprintf("Image with %d segment(s), %d bytes", len(img.Segments), img.Size())
}

type FlashRegion struct {
	Start  uint32
	Length uint32
}

func (r FlashRegion) End() uint32 {
	return r.Start + r.Length
}

type Chunk struct {
	Address uint32
	Data    []byte
}

// Window is one DOWNLOAD transfer and the SEND_DATA chunks that fill it.
type Window struct {
	Address uint32
	Length  uint32
	Chunks  []Chunk
}

type VerifyRange struct {
	Address uint32
	Length  uint32
	CRC     uint32
}

type PlanOptions struct {
	ChunkSize int
	BankErase bool
}

// Plan is the complete, immutable list of steps to program an image.
type Plan struct {
	Info       ChipInfo
	BankErase  bool
	Erases     []FlashRegion
	Windows    []Window
	Verifies   []VerifyRange
	Skipped    []Segment
	TotalBytes int
}

// NewPlan checks img against the flash geometry and derives erase regions,
// write windows and verify ranges from it. Segments placed in SRAM are
// skipped.
func NewPlan(img *Image, info ChipInfo, opts PlanOptions) (*Plan, error) {
	if img == nil || img.Size() == 0 {
		return nil, ErrEmptyImage
	}
	if info.SectorSize == 0 {
		return nil, errors.New("sector size unknown")
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 || chunkSize > MaxSendDataLength {
		chunkSize = MaxSendDataLength
	}

	norm := &Image{Segments: append([]Segment(nil), img.Segments...)}
	if err := norm.Normalize(); err != nil {
		return nil, err
	}

	p := &Plan{Info: info, BankErase: opts.BankErase}
	var flash []Segment
	for _, s := range norm.Segments {
		if isSRAM(s.Address) {
			p.Skipped = append(p.Skipped, s)
			continue
		}
		if !info.inFlash(s.Address, uint32(len(s.Data))) {
			return nil, &ImageTooLargeError{Address: s.Address, End: s.End(), FlashEnd: info.FlashEnd()}
		}
		flash = append(flash, s)
	}
	if len(flash) == 0 {
		return nil, ErrEmptyImage
	}

	if !opts.BankErase {
		for _, s := range flash {
			start := info.sectorOf(s.Address)
			end := info.sectorOf(s.End()-1) + info.SectorSize
			if n := len(p.Erases); n > 0 && start <= p.Erases[n-1].End() {
				last := &p.Erases[n-1]
				if end > last.End() {
					last.Length = end - last.Start
				}
				continue
			}
			p.Erases = append(p.Erases, FlashRegion{Start: start, Length: end - start})
		}
	}

	for _, s := range flash {
		w := Window{Address: s.Address, Length: uint32(len(s.Data))}
		for off := 0; off < len(s.Data); off += chunkSize {
			end := min(off+chunkSize, len(s.Data))
			w.Chunks = append(w.Chunks, Chunk{Address: s.Address + uint32(off), Data: s.Data[off:end]})
		}
		p.Windows = append(p.Windows, w)
		p.Verifies = append(p.Verifies, VerifyRange{
			Address: s.Address,
			Length:  uint32(len(s.Data)),
			CRC:     crc32.ChecksumIEEE(s.Data),
		})
		p.TotalBytes += len(s.Data)
	}
	return p, nil
}

// Sectors lists the start address of every sector the plan erases.
func (p *Plan) Sectors() []uint32 {
	var sectors []uint32
	for _, r := range p.Erases {
		for addr := r.Start; addr < r.End(); addr += p.Info.SectorSize {
			sectors = append(sectors, addr)
		}
	}
	return sectors
}

func (p *Plan) Chunks() (n int) {
	for _, w := range p.Windows {
		n += len(w.Chunks)
	}
	return n
}
