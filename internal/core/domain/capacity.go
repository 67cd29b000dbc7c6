package domain

// ResizeCapacity returns the remaining seats after changing an event's total.
// Seats already used (total - remaining) are preserved; the result floors at zero.
func ResizeCapacity(total, remaining, newTotal int) int {
	used := SeatsUsed(total, remaining)
	if used < 0 {
		used = 0
	}
	next := newTotal - used
	if next < 0 {
		return 0
	}
	if next > newTotal {
		return newTotal
	}
	return next
}

// SeatsUsed returns the number of seats taken on an event
func SeatsUsed(total, remaining int) int {
	return total - remaining
}
