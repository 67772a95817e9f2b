package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fairlaunch/internal/fairlaunch/models"
)

func hist(counts ...uint64) []models.Bucket {
	h := make([]models.Bucket, len(counts))
	for i, c := range counts {
		h[i] = models.Bucket{Price: uint64(100 + 50*i), Count: c}
	}
	return h
}

func TestDiscover_ClearsAtHighestSufficientTick(t *testing.T) {
	// Ticks 100/150/200 with 5 bids at 200 and supply 5: the top tick clears.
	r := Discover(hist(3, 4, 5), 5)
	assert.Equal(t, uint64(200), r.Median)
	assert.Equal(t, uint64(5), r.EligibleAtOrAbove)
	assert.Equal(t, uint64(0), r.Oversubscription)
	assert.Equal(t, uint64(5), r.Winners)
}

func TestDiscover_WalksDownUntilSupplyMet(t *testing.T) {
	// Supply 6: 5 at 200 are not enough, tick 150 (4 more) tips it over.
	r := Discover(hist(3, 4, 5), 6)
	assert.Equal(t, uint64(150), r.Median)
	assert.Equal(t, uint64(9), r.EligibleAtOrAbove)
	assert.Equal(t, uint64(3), r.Oversubscription)
	assert.Equal(t, uint64(6), r.Winners)
}

func TestDiscover_TwelveTiedForTen(t *testing.T) {
	// 12 bids tied at one price for 10 tokens: 2 oversubscribed, 10 winners.
	r := Discover(hist(0, 12, 0), 10)
	assert.Equal(t, uint64(150), r.Median)
	assert.Equal(t, uint64(12), r.EligibleAtOrAbove)
	assert.Equal(t, uint64(2), r.Oversubscription)
	assert.Equal(t, uint64(10), r.Winners)
}

func TestDiscover_Undersubscribed(t *testing.T) {
	// Demand 4 against supply 10: everyone wins at the lowest bid price.
	r := Discover(hist(1, 3, 0), 10)
	assert.Equal(t, uint64(100), r.Median)
	assert.Equal(t, uint64(4), r.EligibleAtOrAbove)
	assert.Equal(t, uint64(0), r.Oversubscription)
	assert.Equal(t, uint64(4), r.Winners)
}

func TestDiscover_EmptyHistogram(t *testing.T) {
	r := Discover(hist(0, 0, 0), 10)
	assert.Equal(t, uint64(100), r.Median)
	assert.Equal(t, uint64(0), r.Winners)
}

func TestDiscover_SkipsEmptyTopBuckets(t *testing.T) {
	r := Discover(hist(7, 0, 0), 3)
	assert.Equal(t, uint64(100), r.Median)
	assert.Equal(t, uint64(4), r.Oversubscription)
}
