package chunker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		InitialSize: 1024 * 1024,
		MinSize:     256 * 1024,
		MaxSize:     10 * 1024 * 1024,
		TargetTime:  3 * time.Second,
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"min above max", func(c *Config) { c.MinSize = c.MaxSize + 1 }, ErrMinAboveMax},
		{"initial below min", func(c *Config) { c.InitialSize = c.MinSize - 1 }, ErrInitialOutOfRange},
		{"initial above max", func(c *Config) { c.InitialSize = c.MaxSize + 1 }, ErrInitialOutOfRange},
		{"negative target", func(c *Config) { c.TargetTime = -time.Second }, ErrInvalidTargetTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			a, err := New(cfg)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cfg.InitialSize, a.Current())
		})
	}
}

func TestZeroTargetTimeDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.TargetTime = 0

	a, err := New(cfg)
	require.NoError(t, err)

	// A fast upload under half the default 3s target should double.
	assert.Equal(t, cfg.InitialSize*2, a.Adjust(time.Second))
}

func TestAdjustFastDoubles(t *testing.T) {
	a, err := New(validConfig())
	require.NoError(t, err)

	got := a.Adjust(time.Second) // < 1.5s
	assert.Equal(t, int64(2*1024*1024), got)
}

func TestAdjustSlowHalves(t *testing.T) {
	a, err := New(validConfig())
	require.NoError(t, err)

	got := a.Adjust(5 * time.Second) // > 4.5s
	assert.Equal(t, int64(512*1024), got)
}

func TestAdjustWithinBandUnchanged(t *testing.T) {
	a, err := New(validConfig())
	require.NoError(t, err)

	for _, d := range []time.Duration{1500 * time.Millisecond, 3 * time.Second, 4500 * time.Millisecond} {
		assert.Equal(t, int64(1024*1024), a.Adjust(d), "upload time %v should leave size unchanged", d)
	}
}

func TestMonotonicDoublingToMax(t *testing.T) {
	cfg := validConfig()
	a, err := New(cfg)
	require.NoError(t, err)

	prev := a.Current()
	for range 10 {
		got := a.Adjust(time.Millisecond)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, cfg.MaxSize)
		prev = got
	}
	assert.Equal(t, cfg.MaxSize, a.Current())
}

func TestMonotonicHalvingToMin(t *testing.T) {
	cfg := validConfig()
	a, err := New(cfg)
	require.NoError(t, err)

	prev := a.Current()
	for range 10 {
		got := a.Adjust(time.Minute)
		assert.LessOrEqual(t, got, prev)
		assert.GreaterOrEqual(t, got, cfg.MinSize)
		prev = got
	}
	assert.Equal(t, cfg.MinSize, a.Current())
}

func TestBoundsAlwaysHold(t *testing.T) {
	cfg := validConfig()
	a, err := New(cfg)
	require.NoError(t, err)

	// Alternate extreme signals; size must never leave [min, max].
	durations := []time.Duration{
		time.Millisecond, time.Minute, time.Millisecond, time.Millisecond,
		time.Minute, time.Minute, time.Minute, 3 * time.Second, time.Millisecond,
	}
	for _, d := range durations {
		got := a.Adjust(d)
		assert.GreaterOrEqual(t, got, cfg.MinSize)
		assert.LessOrEqual(t, got, cfg.MaxSize)
	}
}

func TestReset(t *testing.T) {
	cfg := validConfig()
	a, err := New(cfg)
	require.NoError(t, err)

	a.Adjust(time.Millisecond)
	a.Adjust(time.Millisecond)
	require.NotEqual(t, cfg.InitialSize, a.Current())

	a.Reset()
	assert.Equal(t, cfg.InitialSize, a.Current())
}
