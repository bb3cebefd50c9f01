package policy

/*
Файл expr.go реализует закрытую грамматику условий правил комплаенса.

Условия пишут внешние (недоверенные) авторы политик, поэтому язык намеренно
ограничен: литералы, арифметика, сравнения, булевы связки и членство в
списке/строке. Никакого доступа к хосту, вызовов функций и динамического
исполнения кода — это security boundary, а не упрощение.

Грамматика (по убыванию приоритета связывания):

	primary := NUMBER | STRING | IDENT | true | false | "(" expr ")" | "[" args "]"
	unary   := "-" unary | primary
	mul     := unary { ("*" | "/") unary }
	add     := mul { ("+" | "-") mul }
	cmp     := add [ ("==" | "!=" | "<" | "<=" | ">" | ">=" | "in" | "not in") add ]
	not     := "not" not | cmp
	and     := not { "and" not }
	or      := and { "or" and }
*/

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Context — факт-контекст вычисления: имена, доступные условию.
// Значения: float64, string, bool или []any (список литералов).
type Context map[string]any

// Expr — скомпилированное условие.
type Expr interface {
	eval(ctx Context) (any, error)
}

// Parse компилирует строку условия. Ошибка парсинга означает битое правило;
// движок такие правила пропускает с warning, не прерывая оценку остальных.
func Parse(input string) (Expr, error) {
	p := &parser{lex: newLexer(input)}
	if err := p.next(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	return expr, nil
}

// EvalBool вычисляет скомпилированное условие и требует булев результат.
func EvalBool(expr Expr, ctx Context) (bool, error) {
	v, err := expr.eval(ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition result is %s, want bool", typeName(v))
	}
	return b, nil
}

// --- Лексер ---

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp // операторы и пунктуация: == != < <= > >= + - * / ( ) [ ] ,
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(input string) *lexer {
	return &lexer{src: []rune(input)}
}

func (l *lexer) nextToken() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case unicode.IsDigit(c) || (c == '.' && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1])):
		for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.' || l.src[l.pos] == '_') {
			l.pos++
		}
		text := strings.ReplaceAll(string(l.src[start:l.pos]), "_", "")
		num, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, fmt.Errorf("bad number %q at position %d", text, start)
		}
		return token{kind: tokNumber, text: text, num: num, pos: start}, nil

	case c == '\'' || c == '"':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			sb.WriteRune(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("unterminated string at position %d", start)
		}
		l.pos++ // закрывающая кавычка
		return token{kind: tokString, text: sb.String(), pos: start}, nil

	case unicode.IsLetter(c) || c == '_':
		for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos]), pos: start}, nil

	case strings.ContainsRune("=!<>", c):
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++
		}
		op := string(l.src[start:l.pos])
		switch op {
		case "==", "!=", "<", "<=", ">", ">=":
			return token{kind: tokOp, text: op, pos: start}, nil
		}
		return token{}, fmt.Errorf("unknown operator %q at position %d", op, start)

	case strings.ContainsRune("+-*/()[],", c):
		l.pos++
		return token{kind: tokOp, text: string(c), pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", string(c), start)
}

// --- Парсер ---

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) next() error {
	t, err := p.lex.nextToken()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

// keyword сообщает, что текущий токен — ключевое слово kw (без учета регистра:
// авторы правил пишут и "and", и "AND", и питоновские "True"/"False").
func (p *parser) keyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) expect(op string) error {
	if p.tok.kind != tokOp || p.tok.text != op {
		return fmt.Errorf("expected %q, got %q at position %d", op, p.tok.text, p.tok.pos)
	}
	return p.next()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.keyword("not") {
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}

	var op string
	switch {
	case p.tok.kind == tokOp && isCmpOp(p.tok.text):
		op = p.tok.text
	case p.keyword("in"):
		op = "in"
	case p.keyword("not"):
		// "not" посреди сравнения допустим только в форме "not in"
		save := *p.lex
		saveTok := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		if !p.keyword("in") {
			*p.lex = save
			p.tok = saveTok
			return left, nil
		}
		op = "not in"
	default:
		return left, nil
	}

	if err := p.next(); err != nil {
		return nil, err
	}
	right, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	return &cmpNode{op: op, left: left, right: right}, nil
}

func isCmpOp(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (p *parser) parseAdd() (Expr, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &arithNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMul() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &arithNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok.kind == tokOp && p.tok.text == "-" {
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.tok
	switch {
	case tok.kind == tokNumber:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &literalNode{value: tok.num}, nil

	case tok.kind == tokString:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &literalNode{value: tok.text}, nil

	case p.keyword("true"):
		if err := p.next(); err != nil {
			return nil, err
		}
		return &literalNode{value: true}, nil

	case p.keyword("false"):
		if err := p.next(); err != nil {
			return nil, err
		}
		return &literalNode{value: false}, nil

	case tok.kind == tokIdent:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &identNode{name: tok.text}, nil

	case tok.kind == tokOp && tok.text == "(":
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil

	case tok.kind == tokOp && tok.text == "[":
		if err := p.next(); err != nil {
			return nil, err
		}
		var items []Expr
		for !(p.tok.kind == tokOp && p.tok.text == "]") {
			if len(items) > 0 {
				if err := p.expect(","); err != nil {
					return nil, err
				}
			}
			item, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if err := p.next(); err != nil { // съедаем "]"
			return nil, err
		}
		return &listNode{items: items}, nil
	}

	return nil, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
}

// --- AST и вычисление ---

type literalNode struct{ value any }

func (n *literalNode) eval(Context) (any, error) { return n.value, nil }

type identNode struct{ name string }

func (n *identNode) eval(ctx Context) (any, error) {
	v, ok := ctx[n.name]
	if !ok {
		return nil, fmt.Errorf("unknown name %q", n.name)
	}
	return v, nil
}

type listNode struct{ items []Expr }

func (n *listNode) eval(ctx Context) (any, error) {
	out := make([]any, 0, len(n.items))
	for _, item := range n.items {
		v, err := item.eval(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type negNode struct{ inner Expr }

func (n *negNode) eval(ctx Context) (any, error) {
	v, err := n.inner.eval(ctx)
	if err != nil {
		return nil, err
	}
	num, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("unary minus on %s", typeName(v))
	}
	return -num, nil
}

type notNode struct{ inner Expr }

func (n *notNode) eval(ctx Context) (any, error) {
	v, err := n.inner.eval(ctx)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("not on %s", typeName(v))
	}
	return !b, nil
}

type logicNode struct {
	op          string
	left, right Expr
}

func (n *logicNode) eval(ctx Context) (any, error) {
	lv, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	lb, ok := lv.(bool)
	if !ok {
		return nil, fmt.Errorf("%s on %s", n.op, typeName(lv))
	}

	// Short-circuit: правый операнд не трогаем, если результат уже известен
	if n.op == "and" && !lb {
		return false, nil
	}
	if n.op == "or" && lb {
		return true, nil
	}

	rv, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	rb, ok := rv.(bool)
	if !ok {
		return nil, fmt.Errorf("%s on %s", n.op, typeName(rv))
	}
	return rb, nil
}

type arithNode struct {
	op          string
	left, right Expr
}

func (n *arithNode) eval(ctx Context) (any, error) {
	lv, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	ln, lok := lv.(float64)
	rn, rok := rv.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("arithmetic %q on %s and %s", n.op, typeName(lv), typeName(rv))
	}

	switch n.op {
	case "+":
		return ln + rn, nil
	case "-":
		return ln - rn, nil
	case "*":
		return ln * rn, nil
	case "/":
		if rn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return ln / rn, nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator %q", n.op)
}

type cmpNode struct {
	op          string
	left, right Expr
}

func (n *cmpNode) eval(ctx Context) (any, error) {
	lv, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "in", "not in":
		found, err := membership(lv, rv)
		if err != nil {
			return nil, err
		}
		if n.op == "not in" {
			return !found, nil
		}
		return found, nil

	case "==", "!=":
		eq, err := equals(lv, rv)
		if err != nil {
			return nil, err
		}
		if n.op == "!=" {
			return !eq, nil
		}
		return eq, nil
	}

	// Упорядочивающие сравнения: числа с числами, строки со строками
	if ln, ok := lv.(float64); ok {
		rn, ok := rv.(float64)
		if !ok {
			return nil, fmt.Errorf("comparison %q on number and %s", n.op, typeName(rv))
		}
		switch n.op {
		case "<":
			return ln < rn, nil
		case "<=":
			return ln <= rn, nil
		case ">":
			return ln > rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}
	if ls, ok := lv.(string); ok {
		rs, ok := rv.(string)
		if !ok {
			return nil, fmt.Errorf("comparison %q on string and %s", n.op, typeName(rv))
		}
		switch n.op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, fmt.Errorf("comparison %q on %s", n.op, typeName(lv))
}

func equals(lv, rv any) (bool, error) {
	switch l := lv.(type) {
	case float64:
		if r, ok := rv.(float64); ok {
			return l == r, nil
		}
	case string:
		if r, ok := rv.(string); ok {
			return l == r, nil
		}
	case bool:
		if r, ok := rv.(bool); ok {
			return l == r, nil
		}
	}
	return false, fmt.Errorf("equality between %s and %s", typeName(lv), typeName(rv))
}

func membership(needle, haystack any) (bool, error) {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			eq, err := equals(needle, item)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("membership of %s in string", typeName(needle))
		}
		return strings.Contains(h, s), nil
	}
	return false, fmt.Errorf("membership in %s", typeName(haystack))
}

func typeName(v any) string {
	switch v.(type) {
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
