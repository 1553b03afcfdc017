package app

import (
	"math"
	"time"
)

// ProratedAmount computes the activation charge for a partial billing month:
// subscriptionPrice * remainingDays / daysInMonth, rounded to 2 decimals.
func ProratedAmount(subscriptionPrice float64, remainingDays, daysInMonth int) float64 {
	if daysInMonth <= 0 || remainingDays <= 0 {
		return 0
	}
	if remainingDays > daysInMonth {
		remainingDays = daysInMonth
	}
	return round2(subscriptionPrice * float64(remainingDays) / float64(daysInMonth))
}

// ProrationFor returns the remaining-days/days-in-month pair for the billing
// month containing at. The activation day itself is billed.
func ProrationFor(at time.Time) (remainingDays, daysInMonth int) {
	daysInMonth = daysIn(at)
	remainingDays = daysInMonth - at.Day() + 1
	return remainingDays, daysInMonth
}

func daysIn(at time.Time) int {
	firstOfNext := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day()
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
