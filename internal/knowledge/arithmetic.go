package knowledge

import (
	"math"
	"regexp"
	"strconv"
)

// arithmeticRe matches a whole question of the form "<a> <op> <b>", with an
// optional lead-in such as "what is". It is anchored at both ends: a year
// range like "2019-2021" inside a longer question is not arithmetic.
var arithmeticRe = regexp.MustCompile(
	`^(?:what(?:'s| is)|calculate|compute|how much is|solve)?\s*` +
		`(-?\d+(?:\.\d+)?)\s*` +
		`(\+|-|\*|x|×|/|÷|plus|minus|times|multiplied by|divided by)\s*` +
		`(-?\d+(?:\.\d+)?)\s*[?.!]?$`)

var canonicalOp = map[string]string{
	"+": "+", "plus": "+",
	"-": "-", "minus": "-",
	"*": "×", "x": "×", "×": "×", "times": "×", "multiplied by": "×",
	"/": "÷", "÷": "÷", "divided by": "÷",
}

func resolveArithmetic(q string) (Answer, bool) {
	m := arithmeticRe.FindStringSubmatch(q)
	if m == nil {
		return Answer{}, false
	}
	a, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Answer{}, false
	}
	b, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Answer{}, false
	}

	op := canonicalOp[m[2]]
	var r float64
	switch op {
	case "+":
		r = a + b
	case "-":
		r = a - b
	case "×":
		r = a * b
	case "÷":
		if b == 0 {
			return Answer{}, false
		}
		r = a / b
	default:
		return Answer{}, false
	}

	text := formatNumber(a) + " " + op + " " + formatNumber(b) + " = " + formatNumber(r)
	return Answer{Text: text, Source: SourceCalculator, Confidence: 1.0}, true
}

// formatNumber prints integers without a decimal point and rounds other
// values to six decimal places.
func formatNumber(v float64) string {
	v = math.Round(v*1e6) / 1e6
	if v == 0 {
		v = 0 // normalise -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
