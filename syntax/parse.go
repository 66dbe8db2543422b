// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package syntax

import (
	"github.com/plumblang/plumb/errors"
)

// A Parser parses a program's source text into statements. Parsing
// is recursive descent; the grammar is LL(1) with one token of
// lookahead for bindings and named arguments. The first fatal error
// aborts the parse.
type Parser struct {
	lx   *Lexer
	tok  Token
	next *Token
	el   errlist
}

// Parse parses a whole program and returns its statements. On
// failure it returns a ParseErrors carrying span-tagged diagnostics.
func Parse(src string) ([]*Stmt, error) {
	p := &Parser{lx: newLexer([]byte(src))}
	if err := p.advance(); err != nil {
		return nil, p.el.Append(err).Make()
	}
	var stmts []*Stmt
	for p.tok.Tok != TokEOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, p.el.Append(err).Make()
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// ParseExpr parses a single expression (no trailing ";"). It is
// used by tests and by hosts that evaluate expression fragments.
func ParseExpr(src string) (*Expr, error) {
	p := &Parser{lx: newLexer([]byte(src))}
	if err := p.advance(); err != nil {
		return nil, p.el.Append(err).Make()
	}
	e, err := p.parsePipeline()
	if err != nil {
		return nil, p.el.Append(err).Make()
	}
	if p.tok.Tok != TokEOF {
		return nil, p.el.Append(p.errorf(p.tok.Span, "unexpected %s after expression", p.tok)).Make()
	}
	return e, nil
}

func (p *Parser) advance() error {
	if p.next != nil {
		p.tok, p.next = *p.next, nil
		return nil
	}
	tok, err := p.lx.Scan()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) peek() (Token, error) {
	if p.next == nil {
		tok, err := p.lx.Scan()
		if err != nil {
			return Token{}, err
		}
		p.next = &tok
	}
	return *p.next, nil
}

func (p *Parser) isOp(text string) bool {
	return p.tok.Tok == TokOp && p.tok.Text == text
}

func (p *Parser) expectOp(text string) (errors.Span, error) {
	if !p.isOp(text) {
		return p.tok.Span, p.errorf(p.tok.Span, "expected %q, found %s", text, p.tok)
	}
	span := p.tok.Span
	return span, p.advance()
}

func (p *Parser) errorf(span errors.Span, format string, args ...interface{}) error {
	return errors.E("parse", errors.ParseError, span, errors.Errorf(format, args...))
}

func (p *Parser) parseStmt() (*Stmt, error) {
	start := p.tok.Span.Start
	if p.tok.Tok == TokIdent {
		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		if next.Tok == TokOp && next.Text == ":=" {
			name := p.tok.Text
			if err := p.advance(); err != nil { // name
				return nil, err
			}
			if err := p.advance(); err != nil { // :=
				return nil, err
			}
			expr, err := p.parsePipeline()
			if err != nil {
				return nil, err
			}
			end, err := p.expectOp(";")
			if err != nil {
				return nil, err
			}
			return &Stmt{
				Kind: StmtBind,
				Name: name,
				Expr: expr,
				Span: errors.NewSpan(start, end.End),
			}, nil
		}
	}
	expr, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	end, err := p.expectOp(";")
	if err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtExpr, Expr: expr, Span: errors.NewSpan(start, end.End)}, nil
}

// parsePipeline parses expr ("|>" stage_expr)*. With at least one
// stage the result is an ExprPipeline; otherwise the bare expression.
func (p *Parser) parsePipeline() (*Expr, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.isOp("|>") {
		return e, nil
	}
	pipe := &Expr{Kind: ExprPipeline, Left: e, Span: e.Span}
	for p.isOp("|>") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		stage, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		pipe.List = append(pipe.List, stage)
		pipe.Span.End = stage.Span.End
	}
	return pipe, nil
}

// parseExpr parses a stage- or value-expression. Composition with
// ">>" sits above the boolean operators; stage expressions share
// primaries with value expressions and are reinterpreted at
// evaluation time.
func (p *Parser) parseExpr() (*Expr, error) {
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.isOp(">>") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		e = &Expr{Kind: ExprCompose, Left: e, Right: r, Span: errors.NewSpan(e.Span.Start, r.Span.End)}
	}
	return e, nil
}

func (p *Parser) parseOr() (*Expr, error) {
	e, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		e = &Expr{Kind: ExprBinop, Ident: "||", Left: e, Right: r, Span: errors.NewSpan(e.Span.Start, r.Span.End)}
	}
	return e, nil
}

func (p *Parser) parseAnd() (*Expr, error) {
	e, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		e = &Expr{Kind: ExprBinop, Ident: "&&", Left: e, Right: r, Span: errors.NewSpan(e.Span.Start, r.Span.End)}
	}
	return e, nil
}

var cmpOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *Parser) parseCmp() (*Expr, error) {
	e, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if p.tok.Tok == TokOp && cmpOps[p.tok.Text] {
		op := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		e = &Expr{Kind: ExprBinop, Ident: op, Left: e, Right: r, Span: errors.NewSpan(e.Span.Start, r.Span.End)}
	}
	return e, nil
}

func (p *Parser) parseAdd() (*Expr, error) {
	e, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		e = &Expr{Kind: ExprBinop, Ident: op, Left: e, Right: r, Span: errors.NewSpan(e.Span.Start, r.Span.End)}
	}
	return e, nil
}

func (p *Parser) parseMul() (*Expr, error) {
	e, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		e = &Expr{Kind: ExprBinop, Ident: op, Left: e, Right: r, Span: errors.NewSpan(e.Span.Start, r.Span.End)}
	}
	return e, nil
}

func (p *Parser) parseUnary() (*Expr, error) {
	switch {
	case p.isOp("-"):
		start := p.tok.Span.Start
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold a negated integer literal into a constant. The
		// lexer rejects 9223372036854775808, so the most negative
		// literal that can be written is -9223372036854775807.
		if operand.Kind == ExprInt {
			return &Expr{Kind: ExprInt, Int: -operand.Int, Span: errors.NewSpan(start, operand.Span.End)}, nil
		}
		return &Expr{Kind: ExprUnary, Ident: "-", Left: operand, Span: errors.NewSpan(start, operand.Span.End)}, nil
	case p.isOp("~"):
		start := p.tok.Span.Start
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprInvert, Left: operand, Span: errors.NewSpan(start, operand.Span.End)}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (*Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.Tok != TokIdent {
				return nil, p.errorf(p.tok.Span, "expected field name, found %s", p.tok)
			}
			e = &Expr{
				Kind:  ExprField,
				Ident: p.tok.Text,
				Left:  e,
				Span:  errors.NewSpan(e.Span.Start, p.tok.Span.End),
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.isOp("("):
			args, end, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			e = &Expr{
				Kind:   ExprCall,
				Callee: e,
				Args:   args,
				Span:   errors.NewSpan(e.Span.Start, end),
			}
		default:
			return e, nil
		}
	}
}

// parseArgs parses "(" args ")" where all named arguments must
// follow the positional ones. The current token is "(".
func (p *Parser) parseArgs() ([]Arg, int, error) {
	if err := p.advance(); err != nil { // (
		return nil, 0, err
	}
	var (
		args  []Arg
		named bool
	)
	for !p.isOp(")") {
		if len(args) > 0 {
			if _, err := p.expectOp(","); err != nil {
				return nil, 0, err
			}
			if p.isOp(")") { // trailing comma
				break
			}
		}
		argStart := p.tok.Span.Start
		if p.tok.Tok == TokIdent {
			next, err := p.peek()
			if err != nil {
				return nil, 0, err
			}
			if next.Tok == TokOp && next.Text == "=" {
				name := p.tok.Text
				if err := p.advance(); err != nil { // name
					return nil, 0, err
				}
				if err := p.advance(); err != nil { // =
					return nil, 0, err
				}
				value, err := p.parseExpr()
				if err != nil {
					return nil, 0, err
				}
				named = true
				args = append(args, Arg{Name: name, Value: value, Span: errors.NewSpan(argStart, value.Span.End)})
				continue
			}
		}
		if named {
			return nil, 0, p.errorf(p.tok.Span, "positional argument follows named argument")
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, 0, err
		}
		args = append(args, Arg{Value: value, Span: value.Span})
	}
	end := p.tok.Span.End
	if err := p.advance(); err != nil { // )
		return nil, 0, err
	}
	return args, end, nil
}

func (p *Parser) parsePrimary() (*Expr, error) {
	tok := p.tok
	switch tok.Tok {
	case TokInt:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprInt, Int: tok.Int, Span: tok.Span}, nil
	case TokStr:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprStr, Str: tok.Str, Span: tok.Span}, nil
	case TokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch tok.Text {
		case "_":
			return &Expr{Kind: ExprPlaceholder, Span: tok.Span}, nil
		case "true", "false":
			return &Expr{Kind: ExprBool, Bool: tok.Text == "true", Span: tok.Span}, nil
		case "null":
			return &Expr{Kind: ExprNull, Span: tok.Span}, nil
		}
		return &Expr{Kind: ExprIdent, Ident: tok.Text, Span: tok.Span}, nil
	case TokOp:
		switch tok.Text {
		case "[":
			return p.parseArray()
		case "{":
			return p.parseRecord()
		case "(":
			if err := p.advance(); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, p.errorf(tok.Span, "unexpected %s", tok)
}

func (p *Parser) parseArray() (*Expr, error) {
	start := p.tok.Span.Start
	if err := p.advance(); err != nil { // [
		return nil, err
	}
	e := &Expr{Kind: ExprArray}
	for !p.isOp("]") {
		if len(e.List) > 0 {
			if _, err := p.expectOp(","); err != nil {
				return nil, err
			}
			if p.isOp("]") { // trailing comma
				break
			}
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		e.List = append(e.List, item)
	}
	e.Span = errors.NewSpan(start, p.tok.Span.End)
	return e, p.advance() // ]
}

func (p *Parser) parseRecord() (*Expr, error) {
	start := p.tok.Span.Start
	if err := p.advance(); err != nil { // {
		return nil, err
	}
	e := &Expr{Kind: ExprRecord}
	seen := make(map[string]bool)
	for !p.isOp("}") {
		if len(e.Fields) > 0 {
			if _, err := p.expectOp(","); err != nil {
				return nil, err
			}
			if p.isOp("}") { // trailing comma
				break
			}
		}
		if p.tok.Tok != TokIdent {
			return nil, p.errorf(p.tok.Span, "expected field name, found %s", p.tok)
		}
		name := p.tok.Text
		nameSpan := p.tok.Span
		if seen[name] {
			return nil, p.errorf(nameSpan, "duplicate field %q", name)
		}
		seen[name] = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expectOp(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		e.Fields = append(e.Fields, FieldInit{
			Name:  name,
			Value: value,
			Span:  errors.NewSpan(nameSpan.Start, value.Span.End),
		})
	}
	e.Span = errors.NewSpan(start, p.tok.Span.End)
	return e, p.advance() // }
}
