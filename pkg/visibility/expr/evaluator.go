package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/visibility"
)

// Evaluator is a small, dependency-free predicate evaluator used for field
// visibility and conditional requirements.
//
// Supported syntax:
// - truthiness: `has_coapplicant`, `!has_coapplicant`
// - equality: `employment_type == "salaried"`, `consent != true`
// - ordering against numbers: `loan_amount >= 500000`
// - membership: `employment_type in ["salaried", "self_employed"]`
// - composition: `a == "x" && (b > 3 || !c)`
//
// Values are read from visibility.Context.Values and, through the `extras.`
// prefix, from visibility.Context.Extras. Parsed rules are memoised.
type Evaluator struct {
	programs sync.Map
}

// New returns an Evaluator with an empty program cache.
func New() *Evaluator { return &Evaluator{} }

// Eval parses (or reuses) the rule and evaluates it. Empty rules hold.
func (e *Evaluator) Eval(fieldName, rule string, ctx visibility.Context) (bool, error) {
	_ = fieldName
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return true, nil
	}

	if cached, ok := e.programs.Load(trimmed); ok {
		return cached.(*Program).Eval(ctx)
	}

	program, err := Parse(trimmed)
	if err != nil {
		return false, err
	}
	e.programs.Store(trimmed, program)
	return program.Eval(ctx)
}

// Program is a parsed rule ready for repeated evaluation.
type Program struct {
	source string
	root   node
	idents []string
}

// Parse compiles a rule. A blank rule yields a program that always holds.
func Parse(rule string) (*Program, error) {
	trimmed := strings.TrimSpace(rule)
	program := &Program{source: trimmed}
	if trimmed == "" {
		return program, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return program, nil
	}

	stream := &tokenStream{tokens: tokens}
	root, err := parseOr(stream)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("visibility/expr: unexpected token %q", stream.tokens[stream.pos].raw)
	}

	program.root = root
	program.idents = stream.identifiers()
	return program, nil
}

// Eval evaluates the program against ctx.
func (p *Program) Eval(ctx visibility.Context) (bool, error) {
	if p == nil || p.root == nil {
		return true, nil
	}
	return p.root.eval(ctx)
}

// Identifiers lists the value names referenced by the rule, in first-use
// order. Names under the `extras.` prefix are included verbatim.
func (p *Program) Identifiers() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.idents...)
}

// String returns the source rule.
func (p *Program) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenIn
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenComma
)

type token struct {
	kind tokenKind
	raw  string
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '[', ']', ',', '!', '=', '<', '>', '&', '|':
		return true
	}
	return false
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	peek := func(offset int) byte {
		if i+offset >= len(input) {
			return 0
		}
		return input[i+offset]
	}

	for i < len(input) {
		ch := input[i]
		switch ch {
		case ' ', '\t', '\n', '\r':
			i++
		case '(':
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			i++
		case ')':
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			i++
		case '[':
			tokens = append(tokens, token{kind: tokenLBracket, raw: "["})
			i++
		case ']':
			tokens = append(tokens, token{kind: tokenRBracket, raw: "]"})
			i++
		case ',':
			tokens = append(tokens, token{kind: tokenComma, raw: ","})
			i++
		case '!':
			if peek(1) == '=' {
				tokens = append(tokens, token{kind: tokenNeq, raw: "!="})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokenNot, raw: "!"})
			i++
		case '=':
			if peek(1) != '=' {
				return nil, errors.New("visibility/expr: unexpected '='; use '=='")
			}
			tokens = append(tokens, token{kind: tokenEq, raw: "=="})
			i += 2
		case '<':
			if peek(1) == '=' {
				tokens = append(tokens, token{kind: tokenLte, raw: "<="})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokenLt, raw: "<"})
			i++
		case '>':
			if peek(1) == '=' {
				tokens = append(tokens, token{kind: tokenGte, raw: ">="})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokenGt, raw: ">"})
			i++
		case '&':
			if peek(1) != '&' {
				return nil, errors.New("visibility/expr: unexpected '&'; use '&&'")
			}
			tokens = append(tokens, token{kind: tokenAnd, raw: "&&"})
			i += 2
		case '|':
			if peek(1) != '|' {
				return nil, errors.New("visibility/expr: unexpected '|'; use '||'")
			}
			tokens = append(tokens, token{kind: tokenOr, raw: "||"})
			i += 2
		case '"', '\'':
			end, value, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, raw: value})
			i = end
		default:
			start := i
			for i < len(input) && !isDelimiter(input[i]) {
				i++
			}
			raw := input[start:i]
			switch strings.ToLower(raw) {
			case "true", "false":
				tokens = append(tokens, token{kind: tokenBool, raw: strings.ToLower(raw)})
			case "null", "nil":
				tokens = append(tokens, token{kind: tokenNull, raw: "null"})
			case "in":
				tokens = append(tokens, token{kind: tokenIn, raw: "in"})
			default:
				if looksLikeNumber(raw) {
					tokens = append(tokens, token{kind: tokenNumber, raw: raw})
				} else {
					tokens = append(tokens, token{kind: tokenIdentifier, raw: raw})
				}
			}
		}
	}

	return tokens, nil
}

// scanString reads a quoted literal starting at input[start] and returns the
// index just past the closing quote.
func scanString(input string, start int) (int, string, error) {
	quote := input[start]
	escaped := false
	for i := start + 1; i < len(input); i++ {
		c := input[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c != quote {
			continue
		}
		body := input[start+1 : i]
		if quote == '\'' {
			body = strings.ReplaceAll(body, `\'`, `'`)
			body = strings.ReplaceAll(body, `"`, `\"`)
		}
		value, err := strconv.Unquote(`"` + body + `"`)
		if err != nil {
			return 0, "", fmt.Errorf("visibility/expr: invalid string literal: %w", err)
		}
		return i + 1, value, nil
	}
	return 0, "", errors.New("visibility/expr: unterminated string literal")
}

func looksLikeNumber(raw string) bool {
	if raw == "" {
		return false
	}
	if c := raw[0]; (c < '0' || c > '9') && c != '-' && c != '+' && c != '.' {
		return false
	}
	_, err := strconv.ParseFloat(raw, 64)
	return err == nil
}

type node interface {
	eval(ctx visibility.Context) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(ctx)
}

type andNode struct{ left, right node }

func (n andNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(ctx)
}

type notNode struct{ inner node }

func (n notNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.inner.eval(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type literalKind int

const (
	litString literalKind = iota
	litNumber
	litBool
	litNull
)

type literal struct {
	kind   literalKind
	raw    string
	number float64
}

type truthyNode struct{ identifier string }

func (n truthyNode) eval(ctx visibility.Context) (bool, error) {
	value, ok := lookup(ctx, n.identifier)
	if !ok {
		return false, nil
	}
	return truthy(value), nil
}

type compareNode struct {
	identifier string
	op         tokenKind
	literal    literal
}

func (n compareNode) eval(ctx visibility.Context) (bool, error) {
	value, _ := lookup(ctx, n.identifier)

	switch n.op {
	case tokenEq:
		return equals(value, n.literal), nil
	case tokenNeq:
		return !equals(value, n.literal), nil
	}

	got, ok := coerceNumber(value)
	if !ok {
		// Missing or non-numeric answers never satisfy an ordering.
		return false, nil
	}
	want := n.literal.number
	switch n.op {
	case tokenLt:
		return got < want, nil
	case tokenLte:
		return got <= want, nil
	case tokenGt:
		return got > want, nil
	case tokenGte:
		return got >= want, nil
	}
	return false, fmt.Errorf("visibility/expr: unsupported operator %d", n.op)
}

type inNode struct {
	identifier string
	options    []literal
}

func (n inNode) eval(ctx visibility.Context) (bool, error) {
	value, _ := lookup(ctx, n.identifier)
	for _, option := range n.options {
		if equals(value, option) {
			return true, nil
		}
	}
	return false, nil
}

func equals(value any, lit literal) bool {
	switch lit.kind {
	case litNull:
		if value == nil {
			return true
		}
		if s, ok := value.(string); ok {
			return strings.TrimSpace(s) == ""
		}
		return false
	case litBool:
		got, _ := coerceBool(value)
		return got == (lit.raw == "true")
	case litNumber:
		got, ok := coerceNumber(value)
		return ok && got == lit.number
	default:
		return coerceString(value) == lit.raw
	}
}

type tokenStream struct {
	tokens []token
	pos    int
	seen   []string
}

func (s *tokenStream) identifiers() []string {
	out := make([]string, 0, len(s.seen))
	index := make(map[string]struct{}, len(s.seen))
	for _, name := range s.seen {
		if _, ok := index[name]; ok {
			continue
		}
		index[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func parseOr(stream *tokenStream) (node, error) {
	left, err := parseAnd(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenOr) {
		right, err := parseAnd(stream)
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func parseAnd(stream *tokenStream) (node, error) {
	left, err := parseUnary(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenAnd) {
		right, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func parseUnary(stream *tokenStream) (node, error) {
	if stream.match(tokenNot) {
		inner, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return parsePrimary(stream)
}

func parsePrimary(stream *tokenStream) (node, error) {
	if stream.match(tokenLParen) {
		inner, err := parseOr(stream)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("visibility/expr: missing closing ')'")
		}
		return inner, nil
	}

	ident, ok := stream.consume(tokenIdentifier)
	if !ok {
		if stream.pos >= len(stream.tokens) {
			return nil, errors.New("visibility/expr: empty expression")
		}
		return nil, fmt.Errorf("visibility/expr: expected identifier, got %q", stream.tokens[stream.pos].raw)
	}
	stream.seen = append(stream.seen, ident.raw)

	if stream.match(tokenIn) {
		options, err := stream.consumeList()
		if err != nil {
			return nil, err
		}
		return inNode{identifier: ident.raw, options: options}, nil
	}

	for _, op := range []tokenKind{tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte} {
		if !stream.match(op) {
			continue
		}
		lit, err := stream.consumeLiteral()
		if err != nil {
			return nil, err
		}
		if op != tokenEq && op != tokenNeq && lit.kind != litNumber {
			return nil, fmt.Errorf("visibility/expr: ordering against %s requires a number literal", ident.raw)
		}
		return compareNode{identifier: ident.raw, op: op, literal: lit}, nil
	}

	return truthyNode{identifier: ident.raw}, nil
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) || s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) consume(kind tokenKind) (token, bool) {
	if s.pos >= len(s.tokens) || s.tokens[s.pos].kind != kind {
		return token{}, false
	}
	out := s.tokens[s.pos]
	s.pos++
	return out, true
}

func (s *tokenStream) consumeList() ([]literal, error) {
	if !s.match(tokenLBracket) {
		return nil, errors.New("visibility/expr: expected '[' after 'in'")
	}
	var out []literal
	for {
		if s.match(tokenRBracket) {
			break
		}
		lit, err := s.consumeLiteral()
		if err != nil {
			return nil, err
		}
		out = append(out, lit)
		if s.match(tokenComma) {
			continue
		}
		if !s.match(tokenRBracket) {
			return nil, errors.New("visibility/expr: missing closing ']'")
		}
		break
	}
	if len(out) == 0 {
		return nil, errors.New("visibility/expr: empty 'in' list")
	}
	return out, nil
}

func (s *tokenStream) consumeLiteral() (literal, error) {
	if s.pos >= len(s.tokens) {
		return literal{}, errors.New("visibility/expr: missing literal")
	}
	tok := s.tokens[s.pos]
	s.pos++
	switch tok.kind {
	case tokenString:
		return literal{kind: litString, raw: tok.raw}, nil
	case tokenNumber:
		value, err := strconv.ParseFloat(tok.raw, 64)
		if err != nil {
			return literal{}, fmt.Errorf("visibility/expr: invalid number literal %q", tok.raw)
		}
		return literal{kind: litNumber, raw: tok.raw, number: value}, nil
	case tokenBool:
		return literal{kind: litBool, raw: tok.raw}, nil
	case tokenNull:
		return literal{kind: litNull, raw: "null"}, nil
	case tokenIdentifier:
		// Bare words compare as strings: `employment_type == salaried`.
		return literal{kind: litString, raw: tok.raw}, nil
	default:
		return literal{}, fmt.Errorf("visibility/expr: expected literal, got %q", tok.raw)
	}
}

func lookup(ctx visibility.Context, key string) (any, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(key), "extras.") {
		return lookupMap(ctx.Extras, key[len("extras."):])
	}
	return lookupMap(ctx.Values, key)
}

func lookupMap(values map[string]any, path string) (any, bool) {
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if v, ok := values[path]; ok {
		return v, true
	}

	var current any = values
	for _, part := range strings.Split(path, ".") {
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}
	return current, true
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if parsed, err := strconv.ParseBool(trimmed); err == nil {
			return parsed
		}
		return trimmed != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func coerceBool(value any) (bool, bool) {
	switch v := value.(type) {
	case nil:
		return false, false
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return truthy(value), true
	}
}

func coerceNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		trimmed := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
