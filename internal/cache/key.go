package cache

import (
	"strconv"
	"strings"
)

// Key builds the canonical cache key for a logical weather request.
// Coordinates are rounded to 2 decimal places (~1 km) so near-identical
// requests collapse to the same entry; variants carry any further
// discriminators such as units or the requested horizon.
//
// Example: Key("current", 40.7128, -74.0060, "metric") ->
// "weather:current:40.71:-74.01:metric".
func Key(class string, lat, lon float64, variants ...string) string {
	var b strings.Builder
	b.Grow(32 + len(class))

	b.WriteString("weather:")
	b.WriteString(class)
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(lat, 'f', 2, 64))
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(lon, 'f', 2, 64))
	for _, v := range variants {
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}
