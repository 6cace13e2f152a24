package scheduling

// FreeSlots cuts the working window into consecutive slots of slotMinutes and
// returns those that do not overlap any of the booked intervals. A trailing
// remainder shorter than a slot is dropped.
func FreeSlots(window Interval, slotMinutes int, booked []Interval) []Interval {
	if slotMinutes <= 0 || window.End <= window.Start {
		return nil
	}

	var free []Interval
	for start := window.Start; start+slotMinutes <= window.End; start += slotMinutes {
		slot := NewInterval(start, slotMinutes)
		if !overlapsAny(slot, booked) {
			free = append(free, slot)
		}
	}
	return free
}

// FirstOverlap returns the index of the first interval in others overlapping
// candidate, or -1.
func FirstOverlap(candidate Interval, others []Interval) int {
	for i, o := range others {
		if candidate.Overlaps(o) {
			return i
		}
	}
	return -1
}

func overlapsAny(candidate Interval, others []Interval) bool {
	return FirstOverlap(candidate, others) >= 0
}
