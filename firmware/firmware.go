package firmware

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mame82/cc13flash/cc13xx"
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	log "github.com/sirupsen/logrus"
)

type Format int

const (
	FormatBinary Format = iota
	FormatHex
	FormatELF
)

func (f Format) String() string {
	switch f {
	case FormatHex:
		return "intel-hex"
	case FormatELF:
		return "elf"
	default:
		return "binary"
	}
}

// Firmware is an image loaded from disk.
type Firmware struct {
	Path   string
	Format Format
	MIME   string
	Image  *cc13xx.Image
}

// Fingerprint is a quick CRC16-CCITT of one segment, used for listing images.
// Verification against the device uses CRC32.
type Fingerprint struct {
	Address uint32
	Length  int
	CRC     uint16
}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

func (f *Firmware) Fingerprints() []Fingerprint {
	res := make([]Fingerprint, 0, len(f.Image.Segments))
	for _, s := range f.Image.Segments {
		res = append(res, Fingerprint{
			Address: s.Address,
			Length:  len(s.Data),
			CRC:     crc16.Checksum(s.Data, crcTable),
		})
	}
	return res
}

func (f *Firmware) String() string {
	res := fmt.Sprintf("Firmware '%s' (%s, %s): %d bytes in %d segment(s)\n", f.Path, f.Format, f.MIME, f.Image.Size(), len(f.Image.Segments))
	for _, fp := range f.Fingerprints() {
		res += fmt.Sprintf("  %#08x-%#08x CRC16 %#04x\n", fp.Address, fp.Address+uint32(fp.Length), fp.CRC)
	}
	return res
}

// Load reads a firmware file. The format is sniffed from its content: ELF
// executables and Intel HEX text are placed at their own addresses, anything
// else is a raw binary placed at base.
func Load(path string, base uint32) (*Firmware, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading firmware file")
	}
	fw, err := Parse(data, base)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing '%s'", path)
	}
	fw.Path = path
	log.WithFields(log.Fields{
		"path":     path,
		"format":   fw.Format.String(),
		"segments": len(fw.Image.Segments),
		"bytes":    fw.Image.Size(),
	}).Debug("firmware loaded")
	return fw, nil
}

func Parse(data []byte, base uint32) (fw *Firmware, err error) {
	mtype := mimetype.Detect(data)
	fw = &Firmware{MIME: mtype.String(), Format: detectFormat(mtype, data)}

	switch fw.Format {
	case FormatELF:
		fw.Image, err = ParseELF(bytes.NewReader(data))
	case FormatHex:
		fw.Image, err = ParseHex(bytes.NewReader(data))
	default:
		fw.Image, err = ParseBin(data, base)
	}
	if err != nil {
		return nil, err
	}
	return fw, nil
}

func detectFormat(mtype *mimetype.MIME, data []byte) Format {
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/x-elf"):
			return FormatELF
		case m.Is("text/plain"):
			if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte(":")) {
				return FormatHex
			}
		}
	}
	return FormatBinary
}

func ParseBin(data []byte, base uint32) (*cc13xx.Image, error) {
	if len(data) == 0 {
		return nil, cc13xx.ErrEmptyImage
	}
	return cc13xx.NewImage(base, data), nil
}

// ParseELF collects the loadable program headers at their physical addresses.
func ParseELF(r io.ReaderAt) (*cc13xx.Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "invalid ELF file")
	}
	defer f.Close()

	img := &cc13xx.Image{}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return nil, errors.Wrapf(err, "reading segment at %#08x", prog.Paddr)
		}
		img.Segments = append(img.Segments, cc13xx.Segment{Address: uint32(prog.Paddr), Data: data})
	}
	if len(img.Segments) == 0 {
		return nil, cc13xx.ErrEmptyImage
	}
	if err := img.Normalize(); err != nil {
		return nil, err
	}
	return img, nil
}
