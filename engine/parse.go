package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Source compilation: tokens, nodes and the recursive-descent parser
// ---------------------------------------------------------------------------

// NodeKind discriminates compiled-tree nodes. The numbering is part of the
// serialized object format and must stay stable.
type NodeKind uint8

const (
	NodeNumber NodeKind = iota + 1
	NodeString
	NodeBool
	NodeNull
	NodeUndefined
	NodeIdent
	NodeThis
	NodeMember
	NodeIndex
	NodeCall
	NodeNew
	NodeUnary
	NodeBinary
	NodeLogical
	NodeCond
	NodeAssign
	NodeArray
	NodeObjectLit
	NodeFunc
	NodeVar
	NodeIf
	NodeWhile
	NodeReturn
	NodeThrow
	NodeTry
	NodeBlock
	NodeExprStmt
	NodeImport
	NodeExport
)

// Node is one vertex of a compiled function tree. The layout doubles as the
// serialization schema, hence the compact CBOR keys.
type Node struct {
	Kind   NodeKind `cbor:"k"`
	Op     string   `cbor:"o,omitempty"`
	Name   string   `cbor:"n,omitempty"`
	Str    string   `cbor:"s,omitempty"`
	Num    float64  `cbor:"f,omitempty"`
	Int    int64    `cbor:"i,omitempty"`
	IsInt  bool     `cbor:"w,omitempty"`
	Line   int      `cbor:"l,omitempty"`
	Params []string `cbor:"p,omitempty"`
	Keys   []string `cbor:"y,omitempty"`
	Kids   []*Node  `cbor:"c,omitempty"`
	Body   []*Node  `cbor:"b,omitempty"`
}

// CompiledFunction is the execution payload behind TagFunctionBytecode
// cells and module bodies: a compact tree walked by the evaluator.
type CompiledFunction struct {
	Name     string   `cbor:"n,omitempty"`
	Filename string   `cbor:"fn,omitempty"`
	Params   []string `cbor:"p,omitempty"`
	Body     []*Node  `cbor:"b"`
	Source   string   `cbor:"s,omitempty"`
	IsModule bool     `cbor:"m,omitempty"`
	Strict   bool     `cbor:"t,omitempty"`
}

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	num  float64
	str  string
	line int
}

var keywords = map[string]bool{
	"var": true, "function": true, "return": true, "if": true, "else": true,
	"while": true, "new": true, "throw": true, "try": true, "catch": true,
	"finally": true, "true": true, "false": true, "null": true,
	"undefined": true, "this": true, "typeof": true, "delete": true,
	"import": true, "export": true,
}

type lexer struct {
	src  string
	pos  int
	line int
}

func (lx *lexer) errf(line int, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", line, fmt.Sprintf(format, args...))
}

func (lx *lexer) next() (token, error) {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.line++
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '*':
			lx.pos += 2
			for lx.pos+1 < len(lx.src) && !(lx.src[lx.pos] == '*' && lx.src[lx.pos+1] == '/') {
				if lx.src[lx.pos] == '\n' {
					lx.line++
				}
				lx.pos++
			}
			if lx.pos+1 >= len(lx.src) {
				return token{}, lx.errf(lx.line, "unterminated comment")
			}
			lx.pos += 2
		default:
			goto scan
		}
	}
	return token{kind: tokEOF, line: lx.line}, nil

scan:
	start := lx.pos
	c := lx.src[lx.pos]

	if isIdentStart(c) {
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.pos++
		}
		text := lx.src[start:lx.pos]
		if keywords[text] {
			return token{kind: tokKeyword, text: text, line: lx.line}, nil
		}
		return token{kind: tokIdent, text: text, line: lx.line}, nil
	}

	if c >= '0' && c <= '9' || (c == '.' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] >= '0' && lx.src[lx.pos+1] <= '9') {
		for lx.pos < len(lx.src) && (isIdentPart(lx.src[lx.pos]) || lx.src[lx.pos] == '.' ||
			((lx.src[lx.pos] == '+' || lx.src[lx.pos] == '-') && (lx.src[lx.pos-1] == 'e' || lx.src[lx.pos-1] == 'E'))) {
			lx.pos++
		}
		text := lx.src[start:lx.pos]
		var f float64
		var err error
		if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
			var u uint64
			u, err = strconv.ParseUint(text[2:], 16, 64)
			f = float64(u)
		} else {
			f, err = strconv.ParseFloat(text, 64)
		}
		if err != nil {
			return token{}, lx.errf(lx.line, "invalid number %q", text)
		}
		return token{kind: tokNumber, text: text, num: f, line: lx.line}, nil
	}

	if c == '"' || c == '\'' {
		quote := c
		lx.pos++
		var sb strings.Builder
		for lx.pos < len(lx.src) && lx.src[lx.pos] != quote {
			ch := lx.src[lx.pos]
			if ch == '\n' {
				return token{}, lx.errf(lx.line, "unterminated string")
			}
			if ch == '\\' && lx.pos+1 < len(lx.src) {
				lx.pos++
				switch lx.src[lx.pos] {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case 'r':
					sb.WriteByte('\r')
				case '\\':
					sb.WriteByte('\\')
				case '\'':
					sb.WriteByte('\'')
				case '"':
					sb.WriteByte('"')
				case '0':
					sb.WriteByte(0)
				default:
					sb.WriteByte(lx.src[lx.pos])
				}
				lx.pos++
				continue
			}
			sb.WriteByte(ch)
			lx.pos++
		}
		if lx.pos >= len(lx.src) {
			return token{}, lx.errf(lx.line, "unterminated string")
		}
		lx.pos++
		return token{kind: tokString, str: sb.String(), line: lx.line}, nil
	}

	// Longest-match punctuators.
	for _, p := range []string{
		"===", "!==", "==", "!=", "<=", ">=", "&&", "||",
		"+=", "-=", "*=", "/=", "%=",
		"+", "-", "*", "/", "%", "!", "<", ">", "=",
		"(", ")", "{", "}", "[", "]", ";", ",", ".", ":", "?",
	} {
		if strings.HasPrefix(lx.src[lx.pos:], p) {
			lx.pos += len(p)
			return token{kind: tokPunct, text: p, line: lx.line}, nil
		}
	}
	return token{}, lx.errf(lx.line, "unexpected character %q", string(c))
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

type parser struct {
	lx   lexer
	tok  token
	peek *token
}

func newParser(src string) (*parser, error) {
	p := &parser{lx: lexer{src: src, line: 1}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) peekToken() (token, error) {
	if p.peek == nil {
		t, err := p.lx.next()
		if err != nil {
			return token{}, err
		}
		p.peek = &t
	}
	return *p.peek, nil
}

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.tok.line, fmt.Sprintf(format, args...))
}

func (p *parser) isPunct(text string) bool {
	return p.tok.kind == tokPunct && p.tok.text == text
}

func (p *parser) isKeyword(text string) bool {
	return p.tok.kind == tokKeyword && p.tok.text == text
}

func (p *parser) expectPunct(text string) error {
	if !p.isPunct(text) {
		return p.errf("expected %q, got %q", text, p.tok.text)
	}
	return p.advance()
}

// parseProgram parses a statement list to EOF. module enables the
// import/export statement forms.
func (p *parser) parseProgram(module bool) ([]*Node, error) {
	var body []*Node
	for p.tok.kind != tokEOF {
		st, err := p.parseStatement(module)
		if err != nil {
			return nil, err
		}
		if st != nil {
			body = append(body, st)
		}
	}
	return body, nil
}

func (p *parser) parseStatement(module bool) (*Node, error) {
	line := p.tok.line
	switch {
	case p.isPunct(";"):
		return nil, p.advance()

	case p.isPunct("{"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		var body []*Node
		for !p.isPunct("}") {
			if p.tok.kind == tokEOF {
				return nil, p.errf("expected \"}\"")
			}
			st, err := p.parseStatement(false)
			if err != nil {
				return nil, err
			}
			if st != nil {
				body = append(body, st)
			}
		}
		return &Node{Kind: NodeBlock, Body: body, Line: line}, p.advance()

	case p.isKeyword("var"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseVarDecl(line)
		if err != nil {
			return nil, err
		}
		p.eatSemi()
		return n, nil

	case p.isKeyword("function"):
		// Declarations bind like var.
		fn, name, err := p.parseFunctionLiteral()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, p.errf("function declaration requires a name")
		}
		return &Node{Kind: NodeVar, Name: name, Kids: []*Node{fn}, Line: line}, nil

	case p.isKeyword("if"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		then, err := p.parseStatement(false)
		if err != nil {
			return nil, err
		}
		kids := []*Node{cond, then}
		if p.isKeyword("else") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			alt, err := p.parseStatement(false)
			if err != nil {
				return nil, err
			}
			kids = append(kids, alt)
		}
		return &Node{Kind: NodeIf, Kids: kids, Line: line}, nil

	case p.isKeyword("while"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		body, err := p.parseStatement(false)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeWhile, Kids: []*Node{cond, body}, Line: line}, nil

	case p.isKeyword("return"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		n := &Node{Kind: NodeReturn, Line: line}
		if !p.isPunct(";") && !p.isPunct("}") && p.tok.kind != tokEOF {
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			n.Kids = []*Node{val}
		}
		p.eatSemi()
		return n, nil

	case p.isKeyword("throw"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.eatSemi()
		return &Node{Kind: NodeThrow, Kids: []*Node{val}, Line: line}, nil

	case p.isKeyword("try"):
		return p.parseTry(line)

	case p.isKeyword("import"):
		if !module {
			return nil, p.errf("import is only valid in modules")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokString {
			return nil, p.errf("import requires a string specifier")
		}
		spec := p.tok.str
		if err := p.advance(); err != nil {
			return nil, err
		}
		p.eatSemi()
		return &Node{Kind: NodeImport, Str: spec, Line: line}, nil

	case p.isKeyword("export"):
		if !module {
			return nil, p.errf("export is only valid in modules")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		var decl *Node
		var err error
		switch {
		case p.isKeyword("var"):
			if err = p.advance(); err != nil {
				return nil, err
			}
			decl, err = p.parseVarDecl(line)
			if err != nil {
				return nil, err
			}
			p.eatSemi()
		case p.isKeyword("function"):
			fn, name, ferr := p.parseFunctionLiteral()
			if ferr != nil {
				return nil, ferr
			}
			if name == "" {
				return nil, p.errf("exported function requires a name")
			}
			decl = &Node{Kind: NodeVar, Name: name, Kids: []*Node{fn}, Line: line}
		default:
			return nil, p.errf("export requires a var or function declaration")
		}
		return &Node{Kind: NodeExport, Kids: []*Node{decl}, Line: line}, nil

	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.eatSemi()
		return &Node{Kind: NodeExprStmt, Kids: []*Node{expr}, Line: line}, nil
	}
}

func (p *parser) eatSemi() {
	if p.isPunct(";") {
		p.advance()
	}
}

func (p *parser) parseVarDecl(line int) (*Node, error) {
	if p.tok.kind != tokIdent {
		return nil, p.errf("expected identifier after var")
	}
	name := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &Node{Kind: NodeVar, Name: name, Line: line}
	if p.isPunct("=") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		init, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		n.Kids = []*Node{init}
	}
	return n, nil
}

func (p *parser) parseTry(line int) (*Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	block, err := p.parseStatement(false)
	if err != nil {
		return nil, err
	}
	n := &Node{Kind: NodeTry, Kids: []*Node{block, nil, nil}, Line: line}
	if p.isKeyword("catch") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, p.errf("expected catch binding")
			}
			n.Name = p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
		}
		handler, err := p.parseStatement(false)
		if err != nil {
			return nil, err
		}
		n.Kids[1] = handler
	}
	if p.isKeyword("finally") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		fin, err := p.parseStatement(false)
		if err != nil {
			return nil, err
		}
		n.Kids[2] = fin
	}
	if n.Kids[1] == nil && n.Kids[2] == nil {
		return nil, p.errf("try requires catch or finally")
	}
	return n, nil
}

func (p *parser) parseFunctionLiteral() (*Node, string, error) {
	line := p.tok.line
	if err := p.advance(); err != nil { // "function"
		return nil, "", err
	}
	name := ""
	if p.tok.kind == tokIdent {
		name = p.tok.text
		if err := p.advance(); err != nil {
			return nil, "", err
		}
	}
	if err := p.expectPunct("("); err != nil {
		return nil, "", err
	}
	var params []string
	for !p.isPunct(")") {
		if p.tok.kind != tokIdent {
			return nil, "", p.errf("expected parameter name")
		}
		params = append(params, p.tok.text)
		if err := p.advance(); err != nil {
			return nil, "", err
		}
		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, "", err
			}
		}
	}
	if err := p.advance(); err != nil { // ")"
		return nil, "", err
	}
	if !p.isPunct("{") {
		return nil, "", p.errf("expected function body")
	}
	body, err := p.parseStatement(false)
	if err != nil {
		return nil, "", err
	}
	return &Node{Kind: NodeFunc, Name: name, Params: params, Body: body.Body, Line: line}, name, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *parser) parseExpr() (*Node, error) {
	return p.parseAssign()
}

var assignOps = map[string]string{
	"=": "", "+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%",
}

func (p *parser) parseAssign() (*Node, error) {
	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct {
		if op, ok := assignOps[p.tok.text]; ok {
			line := p.tok.line
			switch left.Kind {
			case NodeIdent, NodeMember, NodeIndex:
			default:
				return nil, p.errf("invalid assignment target")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			return &Node{Kind: NodeAssign, Op: op, Kids: []*Node{left, right}, Line: line}, nil
		}
	}
	return left, nil
}

func (p *parser) parseConditional() (*Node, error) {
	cond, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return cond, nil
	}
	line := p.tok.line
	if err := p.advance(); err != nil {
		return nil, err
	}
	then, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	alt, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeCond, Kids: []*Node{cond, then, alt}, Line: line}, nil
}

var binaryPrec = map[string]int{
	"||": 1, "&&": 2,
	"==": 3, "!=": 3, "===": 3, "!==": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *parser) parseBinary(minPrec int) (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPunct {
		prec, ok := binaryPrec[p.tok.text]
		if !ok || prec < minPrec {
			break
		}
		op := p.tok.text
		line := p.tok.line
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		kind := NodeBinary
		if op == "&&" || op == "||" {
			kind = NodeLogical
		}
		left = &Node{Kind: kind, Op: op, Kids: []*Node{left, right}, Line: line}
	}
	return left, nil
}

func (p *parser) parseUnary() (*Node, error) {
	line := p.tok.line
	if p.tok.kind == tokPunct && (p.tok.text == "!" || p.tok.text == "-" || p.tok.text == "+") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeUnary, Op: op, Kids: []*Node{operand}, Line: line}, nil
	}
	if p.isKeyword("typeof") || p.isKeyword("delete") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeUnary, Op: op, Kids: []*Node{operand}, Line: line}, nil
	}
	if p.isKeyword("new") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		callee, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		callee, err = p.parsePostfixNoCall(callee)
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		n := &Node{Kind: NodeNew, Kids: append([]*Node{callee}, args...), Line: line}
		return p.parsePostfix(n)
	}
	prim, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(prim)
}

func (p *parser) parseArgs() ([]*Node, error) {
	if !p.isPunct("(") {
		return nil, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var args []*Node
	for !p.isPunct(")") {
		a, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if !p.isPunct(")") {
			return nil, p.errf("expected \",\" or \")\" in arguments")
		}
	}
	return args, p.advance()
}

func (p *parser) parsePostfix(n *Node) (*Node, error) {
	for {
		next, err := p.parsePostfixStep(n, true)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return n, nil
		}
		n = next
	}
}

func (p *parser) parsePostfixNoCall(n *Node) (*Node, error) {
	for {
		next, err := p.parsePostfixStep(n, false)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return n, nil
		}
		n = next
	}
}

func (p *parser) parsePostfixStep(n *Node, allowCall bool) (*Node, error) {
	line := p.tok.line
	switch {
	case p.isPunct("."):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent && p.tok.kind != tokKeyword {
			return nil, p.errf("expected property name after \".\"")
		}
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeMember, Name: name, Kids: []*Node{n}, Line: line}, nil
	case p.isPunct("["):
		if err := p.advance(); err != nil {
			return nil, err
		}
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeIndex, Kids: []*Node{n, idx}, Line: line}, nil
	case allowCall && p.isPunct("("):
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeCall, Kids: append([]*Node{n}, args...), Line: line}, nil
	}
	return nil, nil
}

func (p *parser) parsePrimary() (*Node, error) {
	line := p.tok.line
	switch p.tok.kind {
	case tokNumber:
		n := &Node{Kind: NodeNumber, Num: p.tok.num, Line: line}
		if i := int64(p.tok.num); float64(i) == p.tok.num {
			n.Int = i
			n.IsInt = true
		}
		return n, p.advance()
	case tokString:
		n := &Node{Kind: NodeString, Str: p.tok.str, Line: line}
		return n, p.advance()
	case tokIdent:
		n := &Node{Kind: NodeIdent, Name: p.tok.text, Line: line}
		return n, p.advance()
	case tokKeyword:
		switch p.tok.text {
		case "true":
			return &Node{Kind: NodeBool, Int: 1, Line: line}, p.advance()
		case "false":
			return &Node{Kind: NodeBool, Line: line}, p.advance()
		case "null":
			return &Node{Kind: NodeNull, Line: line}, p.advance()
		case "undefined":
			return &Node{Kind: NodeUndefined, Line: line}, p.advance()
		case "this":
			return &Node{Kind: NodeThis, Line: line}, p.advance()
		case "function":
			fn, _, err := p.parseFunctionLiteral()
			return fn, err
		}
		return nil, p.errf("unexpected keyword %q", p.tok.text)
	case tokPunct:
		switch p.tok.text {
		case "(":
			if err := p.advance(); err != nil {
				return nil, err
			}
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return inner, p.expectPunct(")")
		case "[":
			if err := p.advance(); err != nil {
				return nil, err
			}
			var elems []*Node
			for !p.isPunct("]") {
				e, err := p.parseAssign()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
				if p.isPunct(",") {
					if err := p.advance(); err != nil {
						return nil, err
					}
				} else if !p.isPunct("]") {
					return nil, p.errf("expected \",\" or \"]\" in array literal")
				}
			}
			return &Node{Kind: NodeArray, Kids: elems, Line: line}, p.advance()
		case "{":
			if err := p.advance(); err != nil {
				return nil, err
			}
			var keys []string
			var vals []*Node
			for !p.isPunct("}") {
				var key string
				switch p.tok.kind {
				case tokIdent, tokKeyword:
					key = p.tok.text
				case tokString:
					key = p.tok.str
				case tokNumber:
					key = p.tok.text
				default:
					return nil, p.errf("expected property key")
				}
				if err := p.advance(); err != nil {
					return nil, err
				}
				if err := p.expectPunct(":"); err != nil {
					return nil, err
				}
				v, err := p.parseAssign()
				if err != nil {
					return nil, err
				}
				keys = append(keys, key)
				vals = append(vals, v)
				if p.isPunct(",") {
					if err := p.advance(); err != nil {
						return nil, err
					}
				} else if !p.isPunct("}") {
					return nil, p.errf("expected \",\" or \"}\" in object literal")
				}
			}
			return &Node{Kind: NodeObjectLit, Keys: keys, Kids: vals, Line: line}, p.advance()
		}
	}
	return nil, p.errf("unexpected token %q", p.tok.text)
}

// compileSource parses a whole program into a CompiledFunction.
func compileSource(source, filename string, module, strict bool) (*CompiledFunction, error) {
	p, err := newParser(source)
	if err != nil {
		return nil, err
	}
	body, err := p.parseProgram(module)
	if err != nil {
		return nil, err
	}
	return &CompiledFunction{
		Filename: filename,
		Body:     body,
		Source:   source,
		IsModule: module,
		Strict:   strict,
	}, nil
}
