package cc13xx

import (
	"context"
	"fmt"
	"iter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FlashRun is a single programming pass over an image. Its progress sequence
// drives the work and can be consumed only once.
type FlashRun struct {
	s        *Session
	img      *Image
	plan     *Plan
	err      error
	consumed bool
}

// Start prepares a flash run. Nothing is sent to the device until the
// sequence returned by Progress is iterated.
func (s *Session) Start(img *Image) *FlashRun {
	return &FlashRun{s: s, img: img}
}

// Progress returns the lazy progress sequence of the run. Stopping the
// iteration early cancels the run.
func (r *FlashRun) Progress(ctx context.Context) iter.Seq[Progress] {
	return func(yield func(Progress) bool) {
		if r.consumed {
			r.err = ErrRunConsumed
			return
		}
		r.consumed = true
		r.err = r.s.execute(ctx, r, yield)
	}
}

// Err returns the outcome of the run once the progress sequence has ended.
func (r *FlashRun) Err() error {
	return r.err
}

// Plan is available after planning succeeded.
func (r *FlashRun) Plan() *Plan {
	return r.plan
}

func (s *Session) execute(ctx context.Context, r *FlashRun, yield func(Progress) bool) error {
	if err := s.require("flash", StateLinked); err != nil {
		return err
	}
	emit := func(p Progress) bool {
		if s.cfg.OnProgress != nil {
			s.cfg.OnProgress(p)
		}
		return yield(p)
	}
	cancelled := func(phase Phase) error {
		return s.fail(phase, ErrCancelled)
	}

	info, err := s.ChipInfo(ctx)
	if err != nil {
		return s.failWith(PhasePlan, err, err)
	}
	if s.cfg.CheckCCFG {
		if _, err := CheckCCFG(r.img, info); err != nil {
			return s.fail(PhasePlan, err)
		}
	}
	plan, err := NewPlan(r.img, info, PlanOptions{ChunkSize: s.cfg.ChunkSize, BankErase: s.cfg.BankErase})
	if err != nil {
		return s.fail(PhasePlan, err)
	}
	r.plan = plan
	for _, seg := range plan.Skipped {
		s.log.WithFields(logrus.Fields{
			"address": fmt.Sprintf("%#08x", seg.Address),
			"length":  len(seg.Data),
		}).Warn("skipping segment located in SRAM")
	}

	// erase
	s.setState(StateErasing)
	if plan.BankErase {
		if err := s.engine.BankErase(ctx); err != nil {
			return s.failWith(PhaseErase, &EraseFailedError{Address: info.FlashBase, Err: err}, err)
		}
		if !emit(Progress{Phase: PhaseErase, Address: info.FlashBase, Done: 1, Total: 1}) {
			return cancelled(PhaseErase)
		}
	} else {
		sectors := plan.Sectors()
		for i, sector := range sectors {
			if err := s.engine.SectorErase(ctx, sector); err != nil {
				return s.failWith(PhaseErase, &EraseFailedError{Address: sector, Err: err}, err)
			}
			if !emit(Progress{Phase: PhaseErase, Address: sector, Done: i + 1, Total: len(sectors)}) {
				return cancelled(PhaseErase)
			}
		}
	}
	s.log.WithField("sectors", len(plan.Sectors())).Info("flash erased")

	// write
	s.setState(StateWriting)
	done := 0
	for _, w := range plan.Windows {
		if err := s.engine.Download(ctx, w.Address, w.Length); err != nil {
			return s.failWith(PhaseWrite, &WriteFailedError{Address: w.Address, Err: err}, err)
		}
		for _, c := range w.Chunks {
			if err := s.engine.SendData(ctx, c.Data); err != nil {
				return s.failWith(PhaseWrite, &WriteFailedError{Address: c.Address, Err: err}, err)
			}
			done += len(c.Data)
			if !emit(Progress{Phase: PhaseWrite, Address: c.Address, Done: done, Total: plan.TotalBytes}) {
				return cancelled(PhaseWrite)
			}
		}
	}
	s.log.WithField("bytes", plan.TotalBytes).Info("image written")

	// verify
	s.setState(StateVerifying)
	done = 0
	for _, v := range plan.Verifies {
		crc, err := s.engine.CRC32(ctx, v.Address, v.Length)
		if err != nil {
			return s.failWith(PhaseVerify, err, err)
		}
		if crc != v.CRC {
			return s.fail(PhaseVerify, &VerifyFailedError{Address: v.Address, Length: v.Length, Expected: v.CRC, Actual: crc})
		}
		done += int(v.Length)
		if !emit(Progress{Phase: PhaseVerify, Address: v.Address, Done: done, Total: plan.TotalBytes}) {
			return cancelled(PhaseVerify)
		}
	}
	s.setState(StateCompleted)
	s.log.Info("image verified")

	if s.cfg.RunAfterFlash {
		return s.Run(ctx)
	}
	return nil
}

// failWith fails the session with err, unless cause shows the context was
// cancelled before the transaction started.
func (s *Session) failWith(phase Phase, err, cause error) error {
	if errors.Is(cause, ErrCancelled) {
		return s.fail(phase, ErrCancelled)
	}
	return s.fail(phase, err)
}
