package kibi

import "fmt"

var units = []string{"bytes", "KB", "MB", "GB", "TB", "PB"}

// Bytes formats a byte count with a binary unit, eg "12 MB".
// Values are truncated, not rounded.
func Bytes(b int64) string {
	u := 0
	for b >= 1024 && u < len(units)-1 {
		b /= 1024
		u++
	}
	return fmt.Sprintf("%v %v", b, units[u])
}

// Ratio formats how much smaller 'packed' is than 'raw', eg "4.20x".
func Ratio(raw, packed int64) string {
	if packed <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fx", float64(raw)/float64(packed))
}
