package cc13xx

import (
	"context"
	"time"
)

// AcquireLink resets the target into its ROM bootloader and waits until it
// answers a ping. The returned session owns t.
func AcquireLink(ctx context.Context, t Transport, opts ...Option) (*Session, error) {
	s := newSession(t, newConfig(opts...))
	if err := s.enterBootloader(ctx); err != nil {
		s.reason = err
		s.setState(StateFailed)
		return nil, err
	}
	s.setState(StateLinked)
	s.log.Info("bootloader link established")
	return s, nil
}

func (s *Session) enterBootloader(ctx context.Context) error {
	cfg := s.cfg
	active, idle := Low, High
	if !cfg.BootActiveLow {
		active, idle = High, Low
	}

	if err := s.t.SetLine(LineBoot, active); err != nil {
		return err
	}
	if err := s.t.PulseLine(LineReset, cfg.ResetPulse); err != nil {
		return err
	}
	time.Sleep(cfg.ResetSettle)
	if cfg.ClockIdle {
		if err := s.t.Write([]byte{BOOTLOADER_IDLE}); err != nil {
			return err
		}
	}
	time.Sleep(cfg.BootHold)
	if err := s.t.SetLine(LineBoot, idle); err != nil {
		return err
	}

	// single shot probes, the link budget replaces the command retry policy
	probe := NewEngine(s.t, RetryPolicy{Attempts: 1}, cfg.Timeout, cfg.EraseTimeout, s.log)
	synced := !cfg.AutoBaud
	var lastErr error
	for attempt := 1; attempt <= cfg.LinkAttempts; attempt++ {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if attempt > 1 {
			time.Sleep(cfg.LinkBackoff)
		}
		if !synced {
			if lastErr = probe.Sync(); lastErr != nil {
				s.log.WithError(lastErr).Debugf("auto-baud attempt %d failed", attempt)
				continue
			}
			synced = true
		}
		if lastErr = probe.Ping(ctx); lastErr == nil {
			return nil
		}
		s.log.WithError(lastErr).Debugf("ping attempt %d failed", attempt)
	}
	return &EntryFailedError{Attempts: cfg.LinkAttempts, Err: lastErr}
}
