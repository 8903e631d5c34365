package cc13xx

import (
	"context"
	"encoding/binary"
	"fmt"
)

const (
	FlashBase uint32 = 0x00000000
	SRAMBase  uint32 = 0x20000000
	// end of the Cortex-M SRAM region
	sramRegionEnd uint32 = 0x40000000

	REG_FCFG1_FLASH_SIZE  uint32 = 0x4003002c
	REG_ICEPICK_DEVICE_ID uint32 = 0x50001318
	REG_FCFG1_USER_ID     uint32 = 0x50001294

	ccfgSize           uint32 = 0x58
	ccfgBLConfigOffset uint32 = 0x30

	blConfigEnableMagic byte = 0xc5
)

type Family int

const (
	FamilyUnknown Family = iota
	FamilyCC13x0
	FamilyCC13x2
)

func (f Family) String() string {
	switch f {
	case FamilyCC13x0:
		return "CC13x0/CC26x0"
	case FamilyCC13x2:
		return "CC13x2/CC26x2"
	default:
		return "unknown"
	}
}

// SectorSize of the internal flash for the family.
func (f Family) SectorSize() uint32 {
	if f == FamilyCC13x0 {
		return 4 * 1024
	}
	return 8 * 1024
}

// familyFromDeviceID decodes the wafer id of the ICEPICK device id register.
func familyFromDeviceID(devID uint32) Family {
	switch (devID >> 12) & 0xffff {
	case 0xb99a, 0xb9be:
		return FamilyCC13x0
	case 0xbb41, 0xbb77, 0xbb7a:
		return FamilyCC13x2
	default:
		return FamilyUnknown
	}
}

// ChipInfo is read once per session and never changes afterwards.
type ChipInfo struct {
	ChipID      uint32
	DeviceID    uint32
	UserID      uint32
	Family      Family
	FlashBase   uint32
	FlashSize   uint32
	SectorSize  uint32
	SRAMBase    uint32
	CCFGAddress uint32
}

func (c ChipInfo) FlashEnd() uint32 {
	return c.FlashBase + c.FlashSize
}

// BLConfigAddress is the address of the CCFG BL_CONFIG word.
func (c ChipInfo) BLConfigAddress() uint32 {
	return c.CCFGAddress + ccfgBLConfigOffset
}

func (c ChipInfo) inFlash(addr uint32, length uint32) bool {
	return addr >= c.FlashBase && uint64(addr)+uint64(length) <= uint64(c.FlashEnd())
}

func (c ChipInfo) sectorOf(addr uint32) uint32 {
	return addr - (addr-c.FlashBase)%c.SectorSize
}

func (c ChipInfo) String() string {
	return fmt.Sprintf("Chip ID: %#08x, Device ID: %#08x, User ID: %#08x, Family: %s, Flash: %d KiB (%d sectors of %d bytes), CCFG: %#08x",
		c.ChipID, c.DeviceID, c.UserID, c.Family, c.FlashSize/1024, c.FlashSize/c.SectorSize, c.SectorSize, c.CCFGAddress)
}

func isSRAM(addr uint32) bool {
	return addr >= SRAMBase && addr < sramRegionEnd
}

func readChipInfo(ctx context.Context, e *Engine, cfg *Config) (info ChipInfo, err error) {
	if info.ChipID, err = e.GetChipID(ctx); err != nil {
		return info, err
	}
	words, err := e.MemoryRead32(ctx, REG_ICEPICK_DEVICE_ID, 1)
	if err != nil {
		return info, err
	}
	info.DeviceID = words[0]
	if words, err = e.MemoryRead32(ctx, REG_FCFG1_USER_ID, 1); err != nil {
		return info, err
	}
	info.UserID = words[0]

	info.Family = familyFromDeviceID(info.DeviceID)
	info.FlashBase = FlashBase
	info.SRAMBase = SRAMBase
	info.SectorSize = info.Family.SectorSize()
	if cfg.SectorSize != 0 {
		info.SectorSize = cfg.SectorSize
	}

	if cfg.FlashSize != 0 {
		info.FlashSize = cfg.FlashSize
	} else {
		if words, err = e.MemoryRead32(ctx, REG_FCFG1_FLASH_SIZE, 1); err != nil {
			return info, err
		}
		// the register counts sectors
		info.FlashSize = (words[0] & 0xff) * info.SectorSize
	}
	info.CCFGAddress = info.FlashBase + info.FlashSize - ccfgSize
	return info, nil
}

// BootloaderConfig is the decoded CCFG BL_CONFIG word.
type BootloaderConfig struct {
	Raw             uint32
	Enabled         bool
	BackdoorEnabled bool
	BackdoorPin     byte
	ActiveHigh      bool
}

func DecodeBLConfig(raw uint32) BootloaderConfig {
	return BootloaderConfig{
		Raw:             raw,
		Enabled:         byte(raw>>24) == blConfigEnableMagic,
		ActiveHigh:      raw&(1<<16) != 0,
		BackdoorPin:     byte(raw >> 8),
		BackdoorEnabled: byte(raw) == blConfigEnableMagic,
	}
}

// CheckCCFG rejects images whose CCFG would disable the serial bootloader or
// its pin triggered backdoor. The BL_CONFIG word may be spread over several
// segments. Images without CCFG data pass.
func CheckCCFG(img *Image, info ChipInfo) (*BootloaderConfig, error) {
	addr := info.BLConfigAddress()
	// bytes the image leaves out are erased together with the sector
	word := []byte{0xff, 0xff, 0xff, 0xff}
	covered := false
	for _, seg := range img.Segments {
		for i := range word {
			a := addr + uint32(i)
			if a >= seg.Address && a < seg.End() {
				word[i] = seg.Data[a-seg.Address]
				covered = true
			}
		}
	}
	if !covered {
		return nil, nil
	}
	blc := DecodeBLConfig(binary.LittleEndian.Uint32(word))
	if !blc.Enabled || !blc.BackdoorEnabled {
		return &blc, &CCFGError{Address: addr, Value: blc.Raw}
	}
	return &blc, nil
}
