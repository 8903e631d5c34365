package cc13xx

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateUninitialized State = iota
	StateLinked
	StateErasing
	StateWriting
	StateVerifying
	StateCompleted
	StateFailed
	// StateReleased: the device was reset into its application, the link is gone.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLinked:
		return "linked"
	case StateErasing:
		return "erasing"
	case StateWriting:
		return "writing"
	case StateVerifying:
		return "verifying"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns a Transport for the lifetime of one bootloader link. It is not
// safe for concurrent use.
type Session struct {
	ID uuid.UUID

	t      Transport
	cfg    *Config
	engine *Engine
	log    *logrus.Entry

	state  State
	reason error
	info   *ChipInfo
}

func newSession(t Transport, cfg *Config) *Session {
	id := uuid.New()
	log := cfg.Logger.WithField("session", id.String())
	return &Session{
		ID:     id,
		t:      t,
		cfg:    cfg,
		engine: NewEngine(t, cfg.Retry, cfg.Timeout, cfg.EraseTimeout, log),
		log:    log,
		state:  StateUninitialized,
	}
}

func (s *Session) State() State {
	return s.state
}

// FailureReason returns the error that moved the session to StateFailed.
func (s *Session) FailureReason() error {
	return s.reason
}

// Engine gives raw command access on the linked device. It is refused once
// the session failed or released the device.
func (s *Session) Engine() (*Engine, error) {
	if err := s.require("raw command", StateLinked, StateCompleted); err != nil {
		return nil, err
	}
	return s.engine, nil
}

func (s *Session) setState(state State) {
	if s.state != state {
		s.log.WithField("state", state.String()).Debug("session state changed")
	}
	s.state = state
}

func (s *Session) fail(phase Phase, err error) error {
	s.reason = err
	s.setState(StateFailed)
	s.log.WithField("phase", phase.String()).WithError(err).Error("session failed")
	return &FlashError{Phase: phase, Err: err}
}

func (s *Session) require(op string, allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return &InvalidStateError{Op: op, State: s.state, Reason: s.reason}
}

// ChipInfo reads the device identification and flash geometry. The result is
// cached for the rest of the session.
func (s *Session) ChipInfo(ctx context.Context) (ChipInfo, error) {
	if s.info != nil {
		return *s.info, nil
	}
	if err := s.require("chip info", StateLinked, StateCompleted); err != nil {
		return ChipInfo{}, err
	}
	info, err := readChipInfo(ctx, s.engine, s.cfg)
	if err != nil {
		return ChipInfo{}, err
	}
	s.log.WithFields(logrus.Fields{
		"chip_id": fmt.Sprintf("%#08x", info.ChipID),
		"family":  info.Family.String(),
		"flash":   info.FlashSize,
		"sector":  info.SectorSize,
	}).Info("chip identified")
	s.info = &info
	return info, nil
}

// Flash programs image at base, verifies it and, if configured, starts it.
func (s *Session) Flash(ctx context.Context, image []byte, base uint32) error {
	return s.FlashImage(ctx, NewImage(base, image))
}

func (s *Session) FlashImage(ctx context.Context, img *Image) error {
	run := s.Start(img)
	for range run.Progress(ctx) {
	}
	return run.Err()
}

// Matches reports whether every flash segment of img already sits on the
// device, comparing CRC32 checksums.
func (s *Session) Matches(ctx context.Context, img *Image) (bool, error) {
	err := s.Verify(ctx, img)
	if err == nil {
		return true, nil
	}
	var vfe *VerifyFailedError
	if errors.As(err, &vfe) {
		return false, nil
	}
	return false, err
}

// Verify compares img with the device contents without changing the session
// state.
func (s *Session) Verify(ctx context.Context, img *Image) error {
	if err := s.require("verify", StateLinked, StateCompleted); err != nil {
		return err
	}
	info, err := s.ChipInfo(ctx)
	if err != nil {
		return err
	}
	plan, err := NewPlan(img, info, PlanOptions{ChunkSize: s.cfg.ChunkSize})
	if err != nil {
		return err
	}
	for _, v := range plan.Verifies {
		crc, err := s.engine.CRC32(ctx, v.Address, v.Length)
		if err != nil {
			return err
		}
		if crc != v.CRC {
			return &VerifyFailedError{Address: v.Address, Length: v.Length, Expected: v.CRC, Actual: crc}
		}
	}
	return nil
}

// Erase erases every sector touched by [addr, addr+length).
func (s *Session) Erase(ctx context.Context, addr, length uint32) error {
	if err := s.require("erase", StateLinked, StateCompleted); err != nil {
		return err
	}
	info, err := s.ChipInfo(ctx)
	if err != nil {
		return err
	}
	if length == 0 || !info.inFlash(addr, length) {
		return &ImageTooLargeError{Address: addr, End: addr + length, FlashEnd: info.FlashEnd()}
	}
	s.setState(StateErasing)
	for sector := info.sectorOf(addr); sector < addr+length; sector += info.SectorSize {
		if err := s.engine.SectorErase(ctx, sector); err != nil {
			return s.fail(PhaseErase, &EraseFailedError{Address: sector, Err: err})
		}
		s.log.WithField("address", fmt.Sprintf("%#08x", sector)).Debug("sector erased")
	}
	s.setState(StateLinked)
	return nil
}

func (s *Session) EraseAll(ctx context.Context) error {
	if err := s.require("bank erase", StateLinked, StateCompleted); err != nil {
		return err
	}
	info, err := s.ChipInfo(ctx)
	if err != nil {
		return err
	}
	s.setState(StateErasing)
	if err := s.engine.BankErase(ctx); err != nil {
		return s.fail(PhaseErase, &EraseFailedError{Address: info.FlashBase, Err: err})
	}
	s.setState(StateLinked)
	return nil
}

// Run resets the device into its application. From StateFailed the reset is
// attempted on a best effort basis. The session cannot be used afterwards.
func (s *Session) Run(ctx context.Context) error {
	if s.state == StateFailed {
		if err := s.engine.Reset(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).Warn("best effort reset failed")
			return err
		}
		s.setState(StateReleased)
		return nil
	}
	if err := s.require("run", StateLinked, StateCompleted); err != nil {
		return err
	}
	if err := s.engine.Reset(ctx); err != nil {
		return s.fail(PhaseRun, err)
	}
	s.log.Info("device reset into application")
	s.setState(StateReleased)
	return nil
}
