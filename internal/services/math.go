package services

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// mathExpression admits digits, whitespace and + - * / ( ) ^ . only. Passing
// it does not make an expression valid; EvaluateMath decides that.
var mathExpression = regexp.MustCompile(`^[\d\s\+\-\*/\(\)\^\.]+$`)

const (
	maxExponent   = 4096
	maxResultBits = 1 << 16
)

// IsMathExpression reports whether the whole message is made of arithmetic
// characters.
func IsMathExpression(message string) bool {
	return mathExpression.MatchString(message)
}

// MathResult is a successfully evaluated expression.
type MathResult struct {
	Exact bool // false when a fractional power forced float arithmetic
	Text  string
}

func (r MathResult) String() string { return r.Text }

// EvaluateMath parses and evaluates an arithmetic expression. Sums,
// products, quotients and integer powers are computed exactly over the
// rationals; fractional powers fall back to float64.
func EvaluateMath(expr string) (MathResult, error) {
	toks, err := lexMath(expr)
	if err != nil {
		return MathResult{}, err
	}

	p := &mathParser{toks: toks}
	v, err := p.parseExpr()
	if err != nil {
		return MathResult{}, err
	}
	if tok := p.current(); tok.kind != tokEOF {
		return MathResult{}, &MathError{Reason: reasonSyntax, Pos: tok.pos}
	}

	return MathResult{Exact: v.exact, Text: v.format()}, nil
}

// ============================================================================
// Tokenizer
// ============================================================================

type mathTokenKind int

const (
	tokEOF mathTokenKind = iota
	tokNumber
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokCaret
	tokLParen
	tokRParen
)

type mathToken struct {
	kind mathTokenKind
	text string
	pos  int
}

var mathOperators = map[rune]mathTokenKind{
	'+': tokPlus,
	'-': tokMinus,
	'*': tokStar,
	'/': tokSlash,
	'^': tokCaret,
	'(': tokLParen,
	')': tokRParen,
}

func lexMath(input string) ([]mathToken, error) {
	var toks []mathToken
	runes := []rune(input)

	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case isDigit(c) || c == '.':
			start := i
			dots := 0
			for i < len(runes) && (isDigit(runes[i]) || runes[i] == '.') {
				if runes[i] == '.' {
					dots++
				}
				i++
			}
			text := string(runes[start:i])
			if dots > 1 || text == "." {
				return nil, &MathError{Reason: reasonSyntax, Pos: start}
			}
			toks = append(toks, mathToken{kind: tokNumber, text: text, pos: start})
		default:
			kind, ok := mathOperators[c]
			if !ok {
				return nil, &MathError{Reason: reasonUnexpected, Pos: i}
			}
			toks = append(toks, mathToken{kind: kind, text: string(c), pos: i})
			i++
		}
	}

	return append(toks, mathToken{kind: tokEOF, pos: len(runes)}), nil
}

// isDigit accepts ASCII digits only; unicode.IsDigit would let other
// scripts' digits through the \d class of the whitelist.
func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

// ============================================================================
// Parser
// ============================================================================

type mathParser struct {
	toks []mathToken
	pos  int
}

func (p *mathParser) current() mathToken {
	return p.toks[p.pos]
}

func (p *mathParser) advance() mathToken {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// parseExpr: sign? term (('+'|'-') term)*
// A sign is only legal here, at the start of input or right after '('.
func (p *mathParser) parseExpr() (number, error) {
	negate := false
	switch p.current().kind {
	case tokPlus:
		p.advance()
	case tokMinus:
		p.advance()
		negate = true
	}

	left, err := p.parseTerm()
	if err != nil {
		return number{}, err
	}
	if negate {
		left = left.neg()
	}

	for {
		op := p.current()
		if op.kind != tokPlus && op.kind != tokMinus {
			return left, nil
		}
		p.advance()

		right, err := p.parseTerm()
		if err != nil {
			return number{}, err
		}
		if op.kind == tokPlus {
			left, err = left.add(right)
		} else {
			left, err = left.add(right.neg())
		}
		if err != nil {
			return number{}, withPos(err, op.pos)
		}
	}
}

// parseTerm: power (('*'|'/') power)*
func (p *mathParser) parseTerm() (number, error) {
	left, err := p.parsePower()
	if err != nil {
		return number{}, err
	}

	for {
		op := p.current()
		if op.kind != tokStar && op.kind != tokSlash {
			return left, nil
		}
		p.advance()

		right, err := p.parsePower()
		if err != nil {
			return number{}, err
		}
		if op.kind == tokStar {
			left, err = left.mul(right)
		} else {
			left, err = left.div(right)
		}
		if err != nil {
			return number{}, withPos(err, op.pos)
		}
	}
}

// parsePower: primary ('^' power)?  (right-associative)
func (p *mathParser) parsePower() (number, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return number{}, err
	}
	if p.current().kind != tokCaret {
		return base, nil
	}
	op := p.advance()

	exp, err := p.parsePower()
	if err != nil {
		return number{}, err
	}
	v, err := base.pow(exp)
	if err != nil {
		return number{}, withPos(err, op.pos)
	}
	return v, nil
}

// parsePrimary: number | '(' expr ')'
func (p *mathParser) parsePrimary() (number, error) {
	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		return parseDecimal(tok.text), nil
	case tokLParen:
		v, err := p.parseExpr()
		if err != nil {
			return number{}, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return number{}, &MathError{Reason: reasonSyntax, Pos: closing.pos}
		}
		return v, nil
	default:
		return number{}, &MathError{Reason: reasonSyntax, Pos: tok.pos}
	}
}

func withPos(err error, pos int) error {
	if me, ok := err.(*MathError); ok && me.Pos < 0 {
		me.Pos = pos
	}
	return err
}

// ============================================================================
// Numbers
// ============================================================================

// number is either an exact rational or, once a fractional power has been
// taken, a float64.
type number struct {
	exact bool
	rat   *big.Rat
	float float64
}

func exactNumber(r *big.Rat) number { return number{exact: true, rat: r} }

func floatNumber(f float64) (number, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return number{}, &MathError{Reason: reasonDomain, Pos: -1}
	}
	return number{float: f}, nil
}

// parseDecimal turns "12.50", ".5" or "5." into an exact rational.
func parseDecimal(text string) number {
	intPart, fracPart, _ := strings.Cut(text, ".")
	digits := intPart + fracPart
	if digits == "" {
		digits = "0"
	}

	num, _ := new(big.Int).SetString(digits, 10)
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(fracPart))), nil)
	return exactNumber(new(big.Rat).SetFrac(num, den))
}

func (n number) toFloat() float64 {
	if !n.exact {
		return n.float
	}
	f, _ := n.rat.Float64()
	return f
}

func (n number) isZero() bool {
	if n.exact {
		return n.rat.Sign() == 0
	}
	return n.float == 0
}

func (n number) neg() number {
	if n.exact {
		return exactNumber(new(big.Rat).Neg(n.rat))
	}
	return number{float: -n.float}
}

func (n number) add(o number) (number, error) {
	if n.exact && o.exact {
		return checkSize(new(big.Rat).Add(n.rat, o.rat))
	}
	return floatNumber(n.toFloat() + o.toFloat())
}

func (n number) mul(o number) (number, error) {
	if n.exact && o.exact {
		return checkSize(new(big.Rat).Mul(n.rat, o.rat))
	}
	return floatNumber(n.toFloat() * o.toFloat())
}

func (n number) div(o number) (number, error) {
	if o.isZero() {
		return number{}, &MathError{Reason: reasonDivByZero, Pos: -1}
	}
	if n.exact && o.exact {
		return checkSize(new(big.Rat).Quo(n.rat, o.rat))
	}
	return floatNumber(n.toFloat() / o.toFloat())
}

func (n number) pow(e number) (number, error) {
	if !n.exact || !e.exact || !e.rat.IsInt() {
		if n.isZero() && e.toFloat() < 0 {
			return number{}, &MathError{Reason: reasonDivByZero, Pos: -1}
		}
		return floatNumber(math.Pow(n.toFloat(), e.toFloat()))
	}

	exp := e.rat.Num()
	if !exp.IsInt64() || exp.Int64() > maxExponent || exp.Int64() < -maxExponent {
		return number{}, &MathError{Reason: reasonOverflow, Pos: -1}
	}
	k := exp.Int64()
	if k < 0 && n.isZero() {
		return number{}, &MathError{Reason: reasonDivByZero, Pos: -1}
	}

	abs := k
	if abs < 0 {
		abs = -abs
	}
	if int64(n.rat.Num().BitLen())*abs > maxResultBits || int64(n.rat.Denom().BitLen())*abs > maxResultBits {
		return number{}, &MathError{Reason: reasonOverflow, Pos: -1}
	}

	big64 := big.NewInt(abs)
	num := new(big.Int).Exp(n.rat.Num(), big64, nil)
	den := new(big.Int).Exp(n.rat.Denom(), big64, nil)
	if k < 0 {
		num, den = den, num
	}
	return checkSize(new(big.Rat).SetFrac(num, den))
}

func checkSize(r *big.Rat) (number, error) {
	if r.Num().BitLen() > maxResultBits || r.Denom().BitLen() > maxResultBits {
		return number{}, &MathError{Reason: reasonOverflow, Pos: -1}
	}
	return exactNumber(r), nil
}

// format renders integral values without a fractional part and everything
// else as its shortest decimal expansion.
func (n number) format() string {
	if n.exact {
		if n.rat.IsInt() {
			return n.rat.Num().String()
		}
		f, _ := n.rat.Float64()
		if f == 0 {
			// Too small for float64 but not zero.
			return new(big.Float).SetPrec(64).SetRat(n.rat).Text('g', 16)
		}
		if math.IsInf(f, 0) || math.Abs(f) >= 1e21 {
			s := strings.TrimRight(n.rat.FloatString(16), "0")
			return strings.TrimSuffix(s, ".")
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	f := n.float
	if f == 0 {
		return "0"
	}
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
