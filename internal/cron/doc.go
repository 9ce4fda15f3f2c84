// Package cron parses 5-field cron expressions and computes occurrences.
//
// Field order and domains:
//
//	minute        0-59
//	hour          0-23
//	day-of-month  1-31
//	month         1-12
//	day-of-week   0-6 (0 = Sunday; 7 is rejected)
//
// Each field is "*" or a comma list of values, ranges ("a-b") and steps
// ("*/n", "a-b/n", "a/n"). Steps stride the base range.
//
// Day-of-month and day-of-week are ANDed: an instant matches only when both
// fields contain it. This differs from Vixie cron, which ORs them when both
// are restricted.
package cron
