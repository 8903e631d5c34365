package cc13xx

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLinkDrivesLines(t *testing.T) {
	sim := NewSimulator(FamilyCC13x0)
	sess := linkedSession(t, sim)

	assert.Equal(t, []LineEvent{
		{Line: LineBoot, Level: Low},
		{Line: LineReset, Level: Low},
		{Line: LineBoot, Level: High},
	}, sim.Lines)
	assert.Equal(t, []BootloaderCommand{BOOTLOADER_COMMAND_PING}, sim.Commands())
	assert.NotEqual(t, [16]byte{}, [16]byte(sess.ID))
}

func TestAcquireLinkRetriesPing(t *testing.T) {
	sim := NewSimulator(FamilyCC13x0)
	sim.NackPackets = 2
	linkedSession(t, sim)
	assert.Equal(t, 3, sim.Count(BOOTLOADER_COMMAND_PING))
}

func TestAcquireLinkEntryFailed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Simulator)
		opts  []Option
	}{
		{"silent device", func(s *Simulator) { s.Silent = true }, nil},
		{"wrong boot polarity", func(s *Simulator) {}, []Option{WithBootActiveLow(false)}},
		{"nack forever", func(s *Simulator) { s.NackAlways = true }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulator(FamilyCC13x0)
			tt.setup(sim)

			sess, err := AcquireLink(context.Background(), sim, testOptions(tt.opts...)...)

			assert.Nil(t, sess)
			var efe *EntryFailedError
			require.True(t, errors.As(err, &efe), "got %v", err)
			assert.Equal(t, 3, efe.Attempts)
		})
	}
}

func TestAcquireLinkAutoBaud(t *testing.T) {
	sim := NewSimulator(FamilyCC13x0)
	sim.AutoBaud = true
	linkedSession(t, sim, WithAutoBaud(true), WithClockIdle(false))
	assert.Equal(t, 1, sim.Count(BOOTLOADER_COMMAND_PING))
}

func TestAcquireLinkCancelled(t *testing.T) {
	sim := NewSimulator(FamilyCC13x0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AcquireLink(ctx, sim, testOptions()...)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Empty(t, sim.Packets)
}
