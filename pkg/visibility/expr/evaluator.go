// Package expr compiles the compact rule strings used by conditional
// visibility.
//
// A rule is a boolean expression over submission values:
//
//	data.enabled
//	row.kind == "gift" && data.age >= 18
//	!(data.role == 'admin' || extras.plan != "free")
//
// Identifiers prefixed with `data.` read the submission, `row.` the current
// row and `extras.` host values. Bare identifiers look in the row first and
// fall back to the submission root. Paths may carry indexes (`grid[0].qty`).
// Literals are strings in single or double quotes, numbers, true, false and
// null. A bare word on the right of a comparison is read as a string.
package expr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/visibility"
)

// Program is a compiled rule. It is immutable and safe for concurrent use.
type Program struct {
	rule string
	root predicate
}

// predicate is a compiled boolean node. Evaluation cannot fail: every type
// question is settled by coercion or was rejected at compile time.
type predicate func(visibility.Context) bool

// operand resolves an identifier against the evaluation context.
type operand func(visibility.Context) (any, bool)

// Compile parses rule. An empty rule compiles to a program that always
// matches.
func Compile(rule string) (*Program, error) {
	p := &parser{lex: lexer{src: rule}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == kindEOF {
		return &Program{rule: rule, root: func(visibility.Context) bool { return true }}, nil
	}
	root, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != kindEOF {
		return nil, fmt.Errorf("visibility/expr: unexpected token %q", p.tok.text)
	}
	return &Program{rule: rule, root: root}, nil
}

// Match evaluates the program against ctx.
func (p *Program) Match(ctx visibility.Context) bool {
	return p.root(ctx)
}

func (p *Program) String() string { return p.rule }

// Evaluator implements visibility.Evaluator, compiling each distinct rule
// once.
type Evaluator struct {
	programs sync.Map // rule -> compiled
}

type compiled struct {
	program *Program
	err     error
}

func New() *Evaluator { return &Evaluator{} }

// Eval compiles rule, or reuses an earlier compilation, and matches it
// against ctx. path is not consulted.
func (e *Evaluator) Eval(_ string, rule string, ctx visibility.Context) (bool, error) {
	program, err := e.Program(rule)
	if err != nil {
		return false, err
	}
	return program.Match(ctx), nil
}

// Program returns the cached compilation of rule. Compile errors are cached
// as well.
func (e *Evaluator) Program(rule string) (*Program, error) {
	key := strings.TrimSpace(rule)
	if cached, ok := e.programs.Load(key); ok {
		c := cached.(compiled)
		return c.program, c.err
	}
	program, err := Compile(key)
	e.programs.Store(key, compiled{program: program, err: err})
	return program, err
}

// parser is a precedence climbing parser over the lexer's token stream.
type parser struct {
	lex lexer
	tok token
}

// precedence of the binary boolean operators.
var precedence = map[string]int{
	"||": 1,
	"&&": 2,
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expression(min int) (predicate, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == kindOperator {
		prec, ok := precedence[p.tok.text]
		if !ok || prec <= min {
			break
		}
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.expression(prec)
		if err != nil {
			return nil, err
		}
		left = combine(op, left, right)
	}
	return left, nil
}

func combine(op string, left, right predicate) predicate {
	if op == "&&" {
		return func(ctx visibility.Context) bool { return left(ctx) && right(ctx) }
	}
	return func(ctx visibility.Context) bool { return left(ctx) || right(ctx) }
}

func (p *parser) unary() (predicate, error) {
	if p.tok.kind == kindOperator && p.tok.text == "!" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return func(ctx visibility.Context) bool { return !inner(ctx) }, nil
	}
	return p.primary()
}

func (p *parser) primary() (predicate, error) {
	switch p.tok.kind {
	case kindLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != kindRParen {
			return nil, fmt.Errorf("visibility/expr: missing closing ')' in %q", p.lex.src)
		}
		return inner, p.advance()
	case kindIdent:
	case kindEOF:
		return nil, fmt.Errorf("visibility/expr: incomplete expression %q", p.lex.src)
	default:
		return nil, fmt.Errorf("visibility/expr: expected identifier, got %q", p.tok.text)
	}

	ref := resolve(p.tok.text)
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != kindOperator || !isComparison(p.tok.text) {
		return func(ctx visibility.Context) bool {
			value, ok := ref(ctx)
			return ok && truthy(value)
		}, nil
	}

	op := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	lit := p.tok
	switch lit.kind {
	case kindString, kindNumber, kindTrue, kindFalse, kindNull, kindIdent:
	case kindEOF:
		return nil, fmt.Errorf("visibility/expr: missing value after %q", op)
	default:
		return nil, fmt.Errorf("visibility/expr: expected value after %q, got %q", op, lit.text)
	}
	cmp, err := comparison(ref, op, lit)
	if err != nil {
		return nil, err
	}
	return cmp, p.advance()
}

func isComparison(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// comparison builds the predicate comparing ref with the literal token. The
// literal decides how the looked up value is coerced.
func comparison(ref operand, op string, lit token) (predicate, error) {
	if op != "==" && op != "!=" && lit.kind != kindNumber {
		return nil, fmt.Errorf("visibility/expr: operator %q needs a number, got %q", op, lit.text)
	}
	negate := op == "!="

	switch lit.kind {
	case kindNull:
		return func(ctx visibility.Context) bool {
			value, _ := ref(ctx)
			return (value == nil) != negate
		}, nil
	case kindTrue, kindFalse:
		want := lit.kind == kindTrue
		return func(ctx visibility.Context) bool {
			value, _ := ref(ctx)
			return (asBool(value) == want) != negate
		}, nil
	case kindNumber:
		want := lit.num
		return func(ctx visibility.Context) bool {
			value, _ := ref(ctx)
			got, ok := asNumber(value)
			if !ok {
				return negate
			}
			switch op {
			case "<":
				return got < want
			case "<=":
				return got <= want
			case ">":
				return got > want
			case ">=":
				return got >= want
			}
			return (got == want) != negate
		}, nil
	default:
		want := lit.text
		return func(ctx visibility.Context) bool {
			value, _ := ref(ctx)
			return (asString(value) == want) != negate
		}, nil
	}
}

// resolve picks the lookup for an identifier once, at compile time.
func resolve(ident string) operand {
	lower := strings.ToLower(ident)
	for _, scope := range []struct {
		prefix string
		pick   func(visibility.Context) map[string]any
	}{
		{"data.", func(ctx visibility.Context) map[string]any { return ctx.Data }},
		{"row.", func(ctx visibility.Context) map[string]any { return ctx.Row }},
		{"extras.", func(ctx visibility.Context) map[string]any { return ctx.Extras }},
	} {
		if strings.HasPrefix(lower, scope.prefix) {
			path, pick := ident[len(scope.prefix):], scope.pick
			return func(ctx visibility.Context) (any, bool) {
				return lookup(pick(ctx), path)
			}
		}
	}
	return func(ctx visibility.Context) (any, bool) {
		if value, ok := lookup(ctx.Row, ident); ok {
			return value, true
		}
		return lookup(ctx.Data, ident)
	}
}

// lookup prefers keys stored verbatim, so "cta.text" may name a flat key.
func lookup(values map[string]any, path string) (any, bool) {
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if value, ok := values[path]; ok {
		return value, true
	}
	return datapath.Get(values, path)
}
