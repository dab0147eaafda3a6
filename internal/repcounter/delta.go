package repcounter

// Delta8 returns how far an 8-bit hardware counter advanced from last to current,
// treating a smaller current value as a wrap past 255.
func Delta8(last, current uint8) int {
	if current >= last {
		return int(current) - int(last)
	}
	return (0xFF - int(last)) + int(current) + 1
}
