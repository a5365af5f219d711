package flow

import "strings"

// ExtractMarkers returns the campaign/promo marker tokens present in text.
// A marker is a whitespace-delimited token starting with '#'; the returned
// values have the '#' and trailing punctuation stripped, original casing
// preserved (matching is done case-insensitively downstream).
func ExtractMarkers(text string) []string {
	var markers []string
	for _, tok := range strings.Fields(text) {
		if !strings.HasPrefix(tok, "#") {
			continue
		}
		m := strings.TrimPrefix(tok, "#")
		m = strings.Trim(m, ".,;:!¡¿?\"')(")
		if m == "" {
			continue
		}
		markers = append(markers, m)
	}
	return markers
}
