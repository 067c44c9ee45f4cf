package utils

import (
	"math"
	"time"
)

// rankEpoch anchors the linear age term of the hot score. Same constant the
// classic Reddit ranking uses, so scores stay comparable across restarts.
const rankEpoch int64 = 1134028003

// ageDivisor converts the age term to roughly one ranking unit per 12.5 hours.
const ageDivisor = 45000.0

// VoteRef is the slice element Aggregate works over; post and comment votes
// both reduce to it.
type VoteRef struct {
	UserID string
	Value  int
}

// Score sums a set of vote values into a net score:
// count(value=1) - count(value=-1). Order independent.
func Score(values []int) int {
	score := 0
	for _, v := range values {
		switch {
		case v > 0:
			score++
		case v < 0:
			score--
		}
	}
	return score
}

// Aggregate reduces a target's vote set to its net score and the requesting
// user's own vote (0 when absent). Pure, no side effects.
func Aggregate(votes []VoteRef, userID string) (score int, userVote int) {
	for _, v := range votes {
		switch {
		case v.Value > 0:
			score++
		case v.Value < 0:
			score--
		}
		if v.UserID == userID {
			userVote = v.Value
		}
	}
	return score, userVote
}

// HotScore computes the time-decayed ranking value for an item:
//
//	sign(score) * log10(max(|score|, 1)) + ageSeconds/45000
//
// Higher-magnitude scores win on a log scale, newer items win linearly.
// A zero score degenerates to pure age ordering. The result is rounded to
// 7 decimal digits to stabilize comparisons and ties.
func HotScore(score int, createdAt time.Time) float64 {
	order := math.Log10(math.Max(math.Abs(float64(score)), 1))

	sign := 0.0
	if score > 0 {
		sign = 1.0
	} else if score < 0 {
		sign = -1.0
	}

	seconds := createdAt.Unix() - rankEpoch
	hot := sign*order + float64(seconds)/ageDivisor
	return math.Round(hot*1e7) / 1e7
}
