package cc13xx

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Reset timings of the bootloader entry sequence.
const (
	DefaultResetPulse  = 15 * time.Millisecond
	DefaultResetSettle = 35 * time.Millisecond
	DefaultBootHold    = 20 * time.Millisecond
)

type Config struct {
	Retry        RetryPolicy
	Timeout      time.Duration
	EraseTimeout time.Duration

	LinkAttempts int
	LinkBackoff  time.Duration
	ResetPulse   time.Duration
	ResetSettle  time.Duration
	BootHold     time.Duration

	// BootActiveLow selects the level the boot line is driven to during reset.
	BootActiveLow bool
	// AutoBaud sends the UART sync pattern before the first ping.
	AutoBaud bool
	// ClockIdle clocks a single idle byte after reset, needed on SPI.
	ClockIdle bool

	ChunkSize     int
	BankErase     bool
	CheckCCFG     bool
	RunAfterFlash bool

	// Zero means detect from the device.
	SectorSize uint32
	FlashSize  uint32

	Logger     logrus.FieldLogger
	OnProgress func(Progress)
}

type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Retry:         RetryPolicy{Attempts: 3, Delay: 10 * time.Millisecond},
		Timeout:       500 * time.Millisecond,
		EraseTimeout:  5 * time.Second,
		LinkAttempts:  5,
		LinkBackoff:   50 * time.Millisecond,
		ResetPulse:    DefaultResetPulse,
		ResetSettle:   DefaultResetSettle,
		BootHold:      DefaultBootHold,
		BootActiveLow: true,
		ChunkSize:     MaxSendDataLength,
		CheckCCFG:     true,
		Logger:        logrus.StandardLogger(),
	}
}

func newConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > MaxSendDataLength {
		cfg.ChunkSize = MaxSendDataLength
	}
	if cfg.LinkAttempts < 1 {
		cfg.LinkAttempts = 1
	}
	return cfg
}

// WithRetries sets the total number of attempts per command.
func WithRetries(attempts int) Option {
	return func(c *Config) { c.Retry.Attempts = attempts }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.Retry.Delay = d }
}

// WithTimeout sets the per transaction timeout. Erase and CRC commands use
// eraseTimeout instead.
func WithTimeout(timeout, eraseTimeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
		c.EraseTimeout = eraseTimeout
	}
}

func WithLinkAttempts(attempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.LinkAttempts = attempts
		c.LinkBackoff = backoff
	}
}

func WithResetTiming(pulse, settle, hold time.Duration) Option {
	return func(c *Config) {
		c.ResetPulse = pulse
		c.ResetSettle = settle
		c.BootHold = hold
	}
}

func WithBootActiveLow(activeLow bool) Option {
	return func(c *Config) { c.BootActiveLow = activeLow }
}

func WithAutoBaud(enable bool) Option {
	return func(c *Config) { c.AutoBaud = enable }
}

func WithClockIdle(enable bool) Option {
	return func(c *Config) { c.ClockIdle = enable }
}

func WithChunkSize(size int) Option {
	return func(c *Config) { c.ChunkSize = size }
}

func WithBankErase(enable bool) Option {
	return func(c *Config) { c.BankErase = enable }
}

// WithCCFGCheck toggles the check that refuses images disabling the
// bootloader backdoor.
func WithCCFGCheck(enable bool) Option {
	return func(c *Config) { c.CheckCCFG = enable }
}

func WithRunAfterFlash(enable bool) Option {
	return func(c *Config) { c.RunAfterFlash = enable }
}

func WithSectorSize(size uint32) Option {
	return func(c *Config) { c.SectorSize = size }
}

func WithFlashSize(size uint32) Option {
	return func(c *Config) { c.FlashSize = size }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Config) {
		if log != nil {
			c.Logger = log
		}
	}
}

// WithProgressCallback registers fn for every progress event of a flash run.
func WithProgressCallback(fn func(Progress)) Option {
	return func(c *Config) { c.OnProgress = fn }
}
