package tmux

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

type exprOperator int

const (
	exprAdd exprOperator = iota
	exprSubtract
	exprMultiply
	exprDivide
	exprModulus
	exprEqual
	exprNotEqual
	exprGreaterThan
	exprGreaterThanEqual
	exprLessThan
	exprLessThanEqual
)

var exprOperators = map[string]exprOperator{
	"+":  exprAdd,
	"-":  exprSubtract,
	"*":  exprMultiply,
	"/":  exprDivide,
	"%":  exprModulus,
	"m":  exprModulus,
	"==": exprEqual,
	"!=": exprNotEqual,
	">":  exprGreaterThan,
	">=": exprGreaterThanEqual,
	"<":  exprLessThan,
	"<=": exprLessThanEqual,
}

// exprEpsilon is the tolerance of == and != on floating point operands.
const exprEpsilon = 1e-9

// expression evaluates #{e|op|flags|prec:left,right}. Operands are
// truncated to integers unless the flags contain f, which also sets the
// default precision to 2.
func (es *expandState) expression(mexp *formatModifier, body string) (string, bool) {
	op, ok := exprOperators[mexp.argv[0]]
	if !ok {
		es.log("expression has no valid operator: '%s'", mexp.argv[0])
		return "", false
	}

	useFloat := false
	prec := 0
	if mexp.argHas(1, "f") {
		useFloat = true
		prec = 2
	}
	if len(mexp.argv) >= 3 {
		n, ok := strtonum(mexp.argv[2])
		if !ok {
			es.log("expression precision invalid: %s", mexp.argv[2])
			return "", false
		}
		prec = n
	}
	if prec < 0 {
		prec = 0
	}

	left, right, ok := es.choose(body, true)
	if !ok {
		es.log("expression syntax error")
		return "", false
	}
	mleft, ok := parseOperand(left)
	if !ok {
		es.log("expression left side is invalid: %s", left)
		return "", false
	}
	mright, ok := parseOperand(right)
	if !ok {
		es.log("expression right side is invalid: %s", right)
		return "", false
	}
	if !useFloat {
		mleft, mright = math.Trunc(mleft), math.Trunc(mright)
	}
	es.log("expression left side is: %s", formatNumber(mleft, prec))
	es.log("expression right side is: %s", formatNumber(mright, prec))

	var result float64
	switch op {
	case exprAdd:
		result = mleft + mright
	case exprSubtract:
		result = mleft - mright
	case exprMultiply:
		result = mleft * mright
	case exprDivide:
		result = mleft / mright
	case exprModulus:
		result = math.Mod(mleft, mright)
	case exprEqual:
		result = boolNumber(math.Abs(mleft-mright) < exprEpsilon)
	case exprNotEqual:
		result = boolNumber(math.Abs(mleft-mright) > exprEpsilon)
	case exprGreaterThan:
		result = boolNumber(mleft > mright)
	case exprGreaterThanEqual:
		result = boolNumber(mleft >= mright)
	case exprLessThan:
		result = boolNumber(mleft < mright)
	case exprLessThanEqual:
		result = boolNumber(mleft <= mright)
	}

	if !useFloat {
		if math.IsInf(result, 0) || math.IsNaN(result) {
			es.log("expression result is not an integer")
			return "", false
		}
		result = math.Trunc(result)
	}
	value := formatNumber(result, prec)
	es.log("expression result is %s", value)
	return value, true
}

// parseOperand parses the whole of s as a floating point number, as strtod
// does when it must consume everything. An empty operand is zero.
func parseOperand(s string) (float64, bool) {
	s = strings.TrimLeft(s, " \t\n\v\f\r")
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}

// formatNumber renders f with prec decimals the way printf("%.*f") does.
func formatNumber(f float64, prec int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', prec, 64)
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
