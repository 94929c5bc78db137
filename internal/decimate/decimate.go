// Package decimate downsamples dense ordered sequences by keeping every Nth element.
package decimate

// Every keeps the elements at indexes 0, n, 2n, ... in their original order.
// A factor below 2 returns the input unchanged.
func Every[T any](items []T, n int) []T {
	if n < 2 || len(items) == 0 {
		return items
	}
	out := make([]T, 0, (len(items)+n-1)/n)
	for i := 0; i < len(items); i += n {
		out = append(out, items[i])
	}
	return out
}

// RouteFactor picks the decimation factor for a GPS track of the given length.
func RouteFactor(points int) int {
	switch {
	case points > 5000:
		return 5
	case points > 1000:
		return 4
	}
	return 1
}

// ECGFactor picks the decimation factor for a waveform of the given length.
// A 30 second recording at 512 Hz (15,360 samples) is stored at 4:1.
func ECGFactor(samples int) int {
	if samples > 5000 {
		return 4
	}
	return 1
}
