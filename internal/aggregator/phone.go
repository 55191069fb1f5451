package aggregator

import "strings"

const northAmericaCode = "1"

// NormalizePhoneNumber strips every non-digit and splits the result into
// country code and subscriber number. Only North American numbering is
// recognized: an 11-digit string starting with 1, or a bare 10-digit string.
// Anything else keeps country code 1 with the cleaned digits as the number,
// so non-US numbers come out wrong.
func NormalizePhoneNumber(raw string) Phone {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if len(digits) == 11 && digits[0] == '1' {
		return Phone{CountryCode: northAmericaCode, Number: digits[1:]}
	}
	// 10 digits is a bare NANP number; every other length falls through unchanged.
	return Phone{CountryCode: northAmericaCode, Number: digits}
}
