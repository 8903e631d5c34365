package cc13xx

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"time"
)

// LineEvent records a control line change seen by the Simulator.
type LineEvent struct {
	Line  Line
	Level Level
	Pulse time.Duration
}

// Simulator emulates the serial ROM bootloader of a CC13xx device in memory.
// It implements Transport, answers instantly and never blocks: a Read with
// too few pending bytes fails with ErrTimeout.
type Simulator struct {
	Flash      []byte
	SectorSize uint32
	ChipID     uint32
	DeviceID   uint32
	UserID     uint32
	// BootLevel is the boot line level that makes the ROM enter the bootloader
	// when reset is released.
	BootLevel Level
	// AutoBaud requires the UART sync pattern before the first packet.
	AutoBaud bool

	// Fault injection. Counters are decremented as faults fire.
	NackPackets    int
	NackAlways     bool
	DropAcks       int
	CorruptReplies int
	Silent         bool
	CorruptCRC     bool
	FailStatus     map[BootloaderCommand]BootloaderStatus

	// Observations.
	Packets      []BootloaderPacket
	Lines        []LineEvent
	HostAcks     int
	HostNacks    int
	Erased       []uint32
	BankErases   int
	Resets       int
	InBootloader bool

	out       []byte
	frame     []byte
	syncCount int
	synced    bool
	awaitAck  bool
	boot      Level
	status    BootloaderStatus
	dlAddr    uint32
	dlLeft    uint32
}

// NewSimulator returns a blank device of the given family, already running
// its bootloader.
func NewSimulator(family Family) *Simulator {
	s := &Simulator{
		ChipID:       0x2000b9be,
		DeviceID:     0x0b9be02f,
		UserID:       0x00001000,
		SectorSize:   family.SectorSize(),
		InBootloader: true,
		status:       BOOTLOADER_STATUS_SUCCESS,
		boot:         High,
	}
	flashSize := 32 * s.SectorSize
	if family == FamilyCC13x2 {
		s.ChipID = 0x2000bb41
		s.DeviceID = 0x0bb4102f
		flashSize = 44 * s.SectorSize
	}
	s.Flash = bytes.Repeat([]byte{0xff}, int(flashSize))
	return s
}

func (s *Simulator) FlashSize() uint32 {
	return uint32(len(s.Flash))
}

// Commands returns the command bytes of all received packets, in order.
func (s *Simulator) Commands() []BootloaderCommand {
	cmds := make([]BootloaderCommand, len(s.Packets))
	for i, p := range s.Packets {
		cmds[i] = p.Cmd
	}
	return cmds
}

// Count returns how many packets carrying cmd were received.
func (s *Simulator) Count(cmd BootloaderCommand) (n int) {
	for _, p := range s.Packets {
		if p.Cmd == cmd {
			n++
		}
	}
	return n
}

func (s *Simulator) Write(p []byte) error {
	for _, b := range p {
		s.feed(b)
	}
	return nil
}

func (s *Simulator) feed(b byte) {
	if len(s.frame) > 0 {
		s.frame = append(s.frame, b)
		if len(s.frame) == int(s.frame[0]) {
			frame := s.frame
			s.frame = nil
			s.handleFrame(frame)
		}
		return
	}
	if !s.InBootloader || s.Silent {
		return
	}
	if s.AutoBaud && !s.synced {
		if b == BOOTLOADER_SYNC {
			s.syncCount++
			if s.syncCount == 2 {
				s.synced = true
				s.ack()
			}
		}
		return
	}
	switch {
	case b == BOOTLOADER_IDLE:
	case s.awaitAck && b == BOOTLOADER_ACK:
		s.awaitAck = false
		s.HostAcks++
	case s.awaitAck && b == BOOTLOADER_NACK:
		s.awaitAck = false
		s.HostNacks++
	case int(b) < frameHeaderLength+1:
		s.nack()
	default:
		s.awaitAck = false
		s.frame = []byte{b}
	}
}

func (s *Simulator) ack() {
	s.out = append(s.out, BOOTLOADER_IDLE, BOOTLOADER_ACK)
}

func (s *Simulator) nack() {
	s.out = append(s.out, BOOTLOADER_IDLE, BOOTLOADER_NACK)
}

func (s *Simulator) reply(payload []byte) {
	frame, _ := EncodeFrame(payload)
	if s.CorruptReplies > 0 {
		s.CorruptReplies--
		frame[1] ^= 0xff
	}
	s.out = append(s.out, frame...)
	s.awaitAck = true
}

func (s *Simulator) handleFrame(frame []byte) {
	var p BootloaderPacket
	if err := p.FromWire(frame); err != nil {
		s.nack()
		return
	}
	s.Packets = append(s.Packets, p)
	if s.NackAlways || s.NackPackets > 0 {
		if s.NackPackets > 0 {
			s.NackPackets--
		}
		s.nack()
		return
	}
	if s.DropAcks > 0 {
		s.DropAcks--
		return
	}
	s.ack()
	s.execute(p)
	if st, ok := s.FailStatus[p.Cmd]; ok && p.Cmd != BOOTLOADER_COMMAND_GET_STATUS {
		s.status = st
	}
}

func (s *Simulator) execute(p BootloaderPacket) {
	be := binary.BigEndian
	switch p.Cmd {
	case BOOTLOADER_COMMAND_PING:
		s.status = BOOTLOADER_STATUS_SUCCESS
	case BOOTLOADER_COMMAND_GET_STATUS:
		s.reply([]byte{byte(s.status)})
	case BOOTLOADER_COMMAND_GET_CHIP_ID:
		resp := make([]byte, 4)
		be.PutUint32(resp, s.ChipID)
		s.reply(resp)
		s.status = BOOTLOADER_STATUS_SUCCESS
	case BOOTLOADER_COMMAND_DOWNLOAD:
		if len(p.Params) != 8 {
			s.status = BOOTLOADER_STATUS_INVALID_CMD
			return
		}
		addr, size := be.Uint32(p.Params), be.Uint32(p.Params[4:])
		if !s.inFlash(addr, size) {
			s.status = BOOTLOADER_STATUS_INVALID_ADR
			return
		}
		s.dlAddr, s.dlLeft = addr, size
		s.status = BOOTLOADER_STATUS_SUCCESS
	case BOOTLOADER_COMMAND_SEND_DATA:
		if s.dlLeft == 0 || uint32(len(p.Params)) > s.dlLeft {
			s.status = BOOTLOADER_STATUS_INVALID_CMD
			return
		}
		s.status = BOOTLOADER_STATUS_SUCCESS
		for i, b := range p.Params {
			// flash cells only clear bits
			cell := &s.Flash[s.dlAddr+uint32(i)]
			*cell &= b
			if *cell != b {
				s.status = BOOTLOADER_STATUS_FLASH_FAIL
			}
		}
		s.dlAddr += uint32(len(p.Params))
		s.dlLeft -= uint32(len(p.Params))
	case BOOTLOADER_COMMAND_SECTOR_ERASE:
		if len(p.Params) != 4 || !s.inFlash(be.Uint32(p.Params), 1) {
			s.status = BOOTLOADER_STATUS_INVALID_ADR
			return
		}
		addr := be.Uint32(p.Params)
		sector := addr - addr%s.SectorSize
		fill(s.Flash[sector:sector+s.SectorSize], 0xff)
		s.Erased = append(s.Erased, sector)
		s.status = BOOTLOADER_STATUS_SUCCESS
	case BOOTLOADER_COMMAND_BANK_ERASE:
		fill(s.Flash, 0xff)
		s.BankErases++
		s.status = BOOTLOADER_STATUS_SUCCESS
	case BOOTLOADER_COMMAND_CRC32:
		resp := make([]byte, 4)
		if len(p.Params) != 12 || !s.inFlash(be.Uint32(p.Params), be.Uint32(p.Params[4:])) {
			s.status = BOOTLOADER_STATUS_INVALID_ADR
			s.reply(resp)
			return
		}
		addr, size := be.Uint32(p.Params), be.Uint32(p.Params[4:])
		crc := crc32.ChecksumIEEE(s.Flash[addr : addr+size])
		if s.CorruptCRC {
			crc = ^crc
		}
		be.PutUint32(resp, crc)
		s.reply(resp)
		s.status = BOOTLOADER_STATUS_SUCCESS
	case BOOTLOADER_COMMAND_MEMORY_READ:
		if len(p.Params) != 6 || p.Params[4] != memoryAccess32 {
			s.status = BOOTLOADER_STATUS_INVALID_CMD
			return
		}
		addr, count := be.Uint32(p.Params), int(p.Params[5])
		resp := make([]byte, 4*count)
		for i := 0; i < count; i++ {
			binary.LittleEndian.PutUint32(resp[4*i:], s.readWord(addr+uint32(4*i)))
		}
		s.reply(resp)
		s.status = BOOTLOADER_STATUS_SUCCESS
	case BOOTLOADER_COMMAND_RESET:
		s.Resets++
		s.InBootloader = false
		s.synced = false
		s.syncCount = 0
	default:
		s.status = BOOTLOADER_STATUS_UNKNOWN_CMD
	}
}

func (s *Simulator) readWord(addr uint32) uint32 {
	switch addr {
	case REG_ICEPICK_DEVICE_ID:
		return s.DeviceID
	case REG_FCFG1_USER_ID:
		return s.UserID
	case REG_FCFG1_FLASH_SIZE:
		return s.FlashSize() / s.SectorSize
	}
	if s.inFlash(addr, 4) {
		return binary.LittleEndian.Uint32(s.Flash[addr:])
	}
	return 0
}

func (s *Simulator) inFlash(addr, size uint32) bool {
	return uint64(addr)+uint64(size) <= uint64(len(s.Flash))
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func (s *Simulator) Read(n int, timeout time.Duration) ([]byte, error) {
	if len(s.out) < n {
		s.out = s.out[:0]
		return nil, ErrTimeout
	}
	buf := make([]byte, n)
	copy(buf, s.out)
	s.out = s.out[n:]
	return buf, nil
}

func (s *Simulator) SetLine(line Line, level Level) error {
	s.Lines = append(s.Lines, LineEvent{Line: line, Level: level})
	if line == LineBoot {
		s.boot = level
	}
	return nil
}

func (s *Simulator) PulseLine(line Line, d time.Duration) error {
	s.Lines = append(s.Lines, LineEvent{Line: line, Level: Low, Pulse: d})
	if line == LineReset {
		s.InBootloader = s.boot == s.BootLevel
		s.out = nil
		s.frame = nil
		s.awaitAck = false
		s.synced = false
		s.syncCount = 0
		s.dlLeft = 0
		s.status = BOOTLOADER_STATUS_SUCCESS
	}
	return nil
}

func (s *Simulator) Close() error {
	return nil
}
