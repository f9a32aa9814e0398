package view

import (
	"time"

	"chat-sync/internal/models"
)

// StartsNewGroup reports whether messages[i] opens a new visual group:
// it is first in the sequence, or falls on a different local calendar
// day than its predecessor.
func StartsNewGroup(messages []models.Message, i int) bool {
	if i == 0 {
		return len(messages) > 0
	}
	if i < 0 || i >= len(messages) {
		return false
	}
	return !sameCalendarDay(messages[i].Time(), messages[i-1].Time())
}

// DateLabel renders the group header for a message timestamp, e.g.
// "April 28, 2025".
func DateLabel(timestamp int64) string {
	return time.UnixMilli(timestamp).Format("January 2, 2006")
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
