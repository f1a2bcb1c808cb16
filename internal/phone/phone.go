package phone

import "regexp"

var nonPhone = regexp.MustCompile(`[^0-9+]`)

// Normalize reduces a raw phone string to its canonical form: digits and a
// single leading "+". It never fails; garbage input yields a degenerate but
// well-formed "+" string, so callers must not assume the result is dialable.
func Normalize(raw string) string {
	number := nonPhone.ReplaceAllString(raw, "")
	if len(number) == 0 || number[0] != '+' {
		number = "+" + number
	}
	return number
}
