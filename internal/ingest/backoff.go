package ingest

import "github.com/franz/media-librarian/internal/store"

// Back-off bounds of hours_update_delay
const (
	MinDelayHours = 1
	MaxDelayHours = 8760
)

// NextDelay doubles the delay after an empty refresh and halves it after
// a productive one, within [MinDelayHours, MaxDelayHours]
func NextDelay(current, newMedia int) int {
	if current <= 0 {
		current = store.DefaultHoursUpdateDelay
	}
	next := current / 2
	if newMedia == 0 {
		next = current * 2
	}
	return min(max(next, MinDelayHours), MaxDelayHours)
}
