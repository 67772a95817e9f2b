package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fairlaunch/pkg/domainerrors"
)

func validConfig() AuctionConfig {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return AuctionConfig{
		UUID:            "ABCDEF",
		PriceRangeStart: 100,
		PriceRangeEnd:   200,
		TickSize:        50,
		PhaseOneStart:   base,
		PhaseOneEnd:     base.Add(24 * time.Hour),
		PhaseTwoEnd:     base.Add(48 * time.Hour),
		NumberOfTokens:  10,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("accepts range divisible by tick", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, uint64(3), cfg.TickCount())
	})

	t.Run("rejects range with remainder", func(t *testing.T) {
		cfg := validConfig()
		cfg.PriceRangeEnd = 199
		assert.ErrorIs(t, cfg.Validate(), ErrTickSizeRemainder)
	})

	t.Run("rejects five character uuid", func(t *testing.T) {
		cfg := validConfig()
		cfg.UUID = "ABCDE"
		assert.ErrorIs(t, cfg.Validate(), ErrUUIDLength)
	})

	t.Run("rejects inverted price range", func(t *testing.T) {
		cfg := validConfig()
		cfg.PriceRangeStart, cfg.PriceRangeEnd = 200, 100
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPriceRanges)
	})

	t.Run("rejects zero tick size", func(t *testing.T) {
		cfg := validConfig()
		cfg.TickSize = 0
		assert.ErrorIs(t, cfg.Validate(), ErrTickSizeTooSmall)
	})

	t.Run("rejects excessive granularity", func(t *testing.T) {
		cfg := validConfig()
		cfg.PriceRangeStart = 0
		cfg.PriceRangeEnd = 1000
		cfg.TickSize = 1 // 1001 ticks
		assert.ErrorIs(t, cfg.Validate(), ErrTooMuchGranularity)
	})

	t.Run("accepts exactly the granularity limit", func(t *testing.T) {
		cfg := validConfig()
		cfg.PriceRangeStart = 1
		cfg.PriceRangeEnd = 100
		cfg.TickSize = 1 // 100 ticks
		require.NoError(t, cfg.Validate())
		assert.Equal(t, uint64(MaxGranularity), cfg.TickCount())
	})

	t.Run("rejects zero tokens", func(t *testing.T) {
		cfg := validConfig()
		cfg.NumberOfTokens = 0
		assert.ErrorIs(t, cfg.Validate(), ErrZeroTokens)
	})

	t.Run("rejects phase one ending before it starts", func(t *testing.T) {
		cfg := validConfig()
		cfg.PhaseOneEnd = cfg.PhaseOneStart.Add(-time.Hour)
		assert.ErrorIs(t, cfg.Validate(), ErrTimestampsDontLineUp)
	})

	t.Run("rejects phase two ending before phase one", func(t *testing.T) {
		cfg := validConfig()
		cfg.PhaseTwoEnd = cfg.PhaseOneEnd.Add(-time.Hour)
		assert.ErrorIs(t, cfg.Validate(), ErrTimestampsDontLineUp)
	})

	t.Run("allows phase two ending exactly with phase one", func(t *testing.T) {
		cfg := validConfig()
		cfg.PhaseTwoEnd = cfg.PhaseOneEnd
		require.NoError(t, cfg.Validate())
	})

	t.Run("rejects phase three inside phase two", func(t *testing.T) {
		cfg := validConfig()
		start := cfg.PhaseTwoEnd.Add(-time.Hour)
		end := cfg.PhaseTwoEnd.Add(time.Hour)
		cfg.PhaseThreeStart, cfg.PhaseThreeEnd = &start, &end
		assert.ErrorIs(t, cfg.Validate(), ErrTimestampsDontLineUp)
	})

	t.Run("rejects half-set phase three window", func(t *testing.T) {
		cfg := validConfig()
		start := cfg.PhaseTwoEnd.Add(time.Hour)
		cfg.PhaseThreeStart = &start
		assert.ErrorIs(t, cfg.Validate(), ErrTimestampsDontLineUp)
	})

	t.Run("accepts valid phase three window", func(t *testing.T) {
		cfg := validConfig()
		start := cfg.PhaseTwoEnd.Add(time.Hour)
		end := start.Add(24 * time.Hour)
		cfg.PhaseThreeStart, cfg.PhaseThreeEnd = &start, &end
		require.NoError(t, cfg.Validate())
	})

	t.Run("validation failures carry the validation code", func(t *testing.T) {
		cfg := validConfig()
		cfg.UUID = "nope"
		assert.True(t, dErrors.HasCode(cfg.Validate(), dErrors.CodeValidation))
	})
}

func TestTickIndex(t *testing.T) {
	cfg := validConfig()

	i, err := cfg.TickIndex(100)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = cfg.TickIndex(150)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = cfg.TickIndex(200)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = cfg.TickIndex(99)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = cfg.TickIndex(201)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = cfg.TickIndex(120)
	assert.ErrorIs(t, err, ErrAmountNotOnTick)

	assert.Equal(t, uint64(150), cfg.PriceForTick(1))
}

func TestPhaseWindows(t *testing.T) {
	cfg := validConfig()

	assert.False(t, cfg.InPhaseOne(cfg.PhaseOneStart.Add(-time.Second)))
	assert.True(t, cfg.InPhaseOne(cfg.PhaseOneStart))
	assert.True(t, cfg.InPhaseOne(cfg.PhaseOneEnd.Add(-time.Second)))
	assert.False(t, cfg.InPhaseOne(cfg.PhaseOneEnd))

	assert.True(t, cfg.InAdjustWindow(cfg.PhaseOneEnd))
	assert.False(t, cfg.InAdjustWindow(cfg.PhaseTwoEnd))

	assert.False(t, cfg.InPhaseThree(cfg.PhaseTwoEnd.Add(time.Hour)), "unset window never matches")

	start := cfg.PhaseTwoEnd.Add(time.Hour)
	end := start.Add(time.Hour)
	cfg.PhaseThreeStart, cfg.PhaseThreeEnd = &start, &end
	assert.True(t, cfg.InPhaseThree(start))
	assert.False(t, cfg.InPhaseThree(end))
}
