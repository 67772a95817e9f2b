// Package pricing derives the clearing price from a finalized bid histogram.
package pricing

import "fairlaunch/internal/fairlaunch/models"

// Result describes the outcome of a histogram walk.
type Result struct {
	// Median is the clearing price: the highest tick at which cumulative
	// demand, walking from the top of the range down, first reaches the
	// token supply. When total demand never reaches supply, it is the
	// lowest tick holding any bid (everyone wins).
	Median uint64

	// EligibleAtOrAbove counts tickets bidding at or above the median.
	EligibleAtOrAbove uint64

	// Oversubscription is demand at or above the median in excess of
	// supply: the number of eligible tickets that cannot win. Zero when
	// the sale is not contested.
	Oversubscription uint64

	// Winners is the bitmap completion target,
	// min(supply, EligibleAtOrAbove).
	Winners uint64
}

// Discover walks the histogram from the highest price tick down,
// accumulating counts until supply is met. The histogram must be final
// (phase one closed); supply must be positive.
func Discover(histogram []models.Bucket, supply uint64) Result {
	var cum uint64
	lowestBid := -1

	for i := len(histogram) - 1; i >= 0; i-- {
		count := histogram[i].Count
		if count == 0 {
			continue
		}
		cum += count
		lowestBid = i
		if cum >= supply {
			return Result{
				Median:            histogram[i].Price,
				EligibleAtOrAbove: cum,
				Oversubscription:  cum - supply,
				Winners:           supply,
			}
		}
	}

	// Undersubscribed (or empty): every bid wins at the lowest bid price.
	res := Result{EligibleAtOrAbove: cum, Winners: cum}
	if lowestBid >= 0 {
		res.Median = histogram[lowestBid].Price
	} else if len(histogram) > 0 {
		res.Median = histogram[0].Price
	}
	return res
}
