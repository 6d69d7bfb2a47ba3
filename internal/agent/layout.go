package agent

import "math"

// GridLayout computes per-slot bounds for a near-square grid covering the
// window: columns = ceil(sqrt(n)), rows = ceil(n/columns). Remainder pixels
// go to the last column and row so the grid always fills the window.
func GridLayout(width, height, n int) []Bounds {
	if n <= 0 || width <= 0 || height <= 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols

	cellW := width / cols
	cellH := height / rows

	out := make([]Bounds, n)
	for slot := 0; slot < n; slot++ {
		col := slot % cols
		row := slot / cols
		b := Bounds{X: col * cellW, Y: row * cellH, W: cellW, H: cellH}
		if col == cols-1 {
			b.W = width - b.X
		}
		if row == rows-1 {
			b.H = height - b.Y
		}
		out[slot] = b
	}
	return out
}
