package cypher

import "fmt"

// Parser is a recursive-descent parser over a Lexer's token stream,
// grounded on the teacher's internal/query/parser.go structure: one
// parse method per precedence level, single-token lookahead via
// peek/advance, with extra two-token lookahead where the lexer
// deliberately leaves multi-word operators unfused (OPTIONAL MATCH,
// IS NOT NULL, UNION ALL, DETACH DELETE).
type Parser struct {
	toks []Token
	pos  int
}

func NewParser(input string) (*Parser, error) {
	lx := NewLexer(input)
	toks, err := lx.Tokenize()
	if err != nil {
		return nil, err
	}
	return &Parser{toks: toks}, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) peekN(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}
func (p *Parser) advance() Token { t := p.toks[p.pos]; if p.pos < len(p.toks)-1 { p.pos++ }; return t }
func (p *Parser) at(t TokenType) bool { return p.cur().Type == t }

func (p *Parser) expect(t TokenType) (Token, error) {
	if !p.at(t) {
		return Token{}, fmt.Errorf("cypher: expected token %v but found %v", t, p.cur())
	}
	return p.advance(), nil
}

// ParseQuery parses a full statement, including UNION [ALL]-joined parts.
func ParseQuery(input string) (*Query, error) {
	p, err := NewParser(input)
	if err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !p.at(TokenEOF) {
		return nil, fmt.Errorf("cypher: unexpected trailing token %v", p.cur())
	}
	return q, nil
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}
	sq, err := p.parseSingleQuery()
	if err != nil {
		return nil, err
	}
	q.Parts = append(q.Parts, sq)

	for p.at(TokenUnion) {
		p.advance()
		all := false
		if p.at(TokenAll) {
			all = true
			p.advance()
		}
		q.Unions = append(q.Unions, UnionClause{All: all})
		next, err := p.parseSingleQuery()
		if err != nil {
			return nil, err
		}
		q.Parts = append(q.Parts, next)
	}
	return q, nil
}

func (p *Parser) atClauseEnd() bool {
	switch p.cur().Type {
	case TokenEOF, TokenSemicolon, TokenUnion:
		return true
	}
	return false
}

func (p *Parser) parseSingleQuery() (SingleQuery, error) {
	var sq SingleQuery
	for !p.atClauseEnd() {
		c, err := p.parseClause()
		if err != nil {
			return sq, err
		}
		sq.Clauses = append(sq.Clauses, c)
	}
	return sq, nil
}

func (p *Parser) parseClause() (Clause, error) {
	switch p.cur().Type {
	case TokenOptional:
		p.advance()
		if _, err := p.expect(TokenMatch); err != nil {
			return nil, err
		}
		return p.parseMatch(true)
	case TokenMatch:
		p.advance()
		return p.parseMatch(false)
	case TokenWhere:
		return nil, fmt.Errorf("cypher: WHERE must follow MATCH or WITH at position %d", p.cur().Pos)
	case TokenWith:
		p.advance()
		return p.parseWith()
	case TokenReturn:
		p.advance()
		return p.parseReturn()
	case TokenUnwind:
		p.advance()
		return p.parseUnwind()
	case TokenCreate:
		switch p.peekN(1).Type {
		case TokenIndex, TokenConstraint, TokenDatabase, TokenUser:
			p.advance()
			return p.parseAdmin()
		}
		p.advance()
		return p.parseCreate()
	case TokenMerge:
		p.advance()
		return p.parseMerge()
	case TokenSet:
		p.advance()
		return p.parseSet()
	case TokenRemove:
		p.advance()
		return p.parseRemove()
	case TokenDetach:
		p.advance()
		if _, err := p.expect(TokenDelete); err != nil {
			return nil, err
		}
		return p.parseDelete(true)
	case TokenDelete:
		p.advance()
		return p.parseDelete(false)
	case TokenForeach:
		p.advance()
		return p.parseForeach()
	case TokenUse:
		p.advance()
		return p.parseUse()
	case TokenCall:
		p.advance()
		return p.parseCall()
	case TokenIndex, TokenConstraint, TokenBegin, TokenCommit, TokenRollback,
		TokenShow, TokenDatabase, TokenUser, TokenGrant, TokenRevoke, TokenDrop:
		return p.parseAdmin()
	default:
		return nil, fmt.Errorf("cypher: unexpected token %v at start of clause", p.cur())
	}
}

// --- MATCH / pattern parsing ---

func (p *Parser) parseMatch(optional bool) (Clause, error) {
	m := MatchClause{Optional: optional}
	pat, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	m.Pattern = pat
	if p.at(TokenWhere) {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Where = where
	}
	return m, nil
}

func (p *Parser) parsePatternList() ([]PatternPath, error) {
	var paths []PatternPath
	for {
		path, err := p.parsePatternPath()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return paths, nil
}

func (p *Parser) parsePatternPath() (PatternPath, error) {
	var path PatternPath
	if p.at(TokenIdent) && p.peekN(1).Type == TokenEquals {
		path.Variable = p.advance().Value
		p.advance() // '='
	}
	if p.at(TokenShortestPath) || p.at(TokenAllShortestPaths) {
		all := p.at(TokenAllShortestPaths)
		p.advance()
		if _, err := p.expect(TokenLParen); err != nil {
			return path, err
		}
		inner, err := p.parsePatternPath()
		if err != nil {
			return path, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return path, err
		}
		inner.Variable = path.Variable
		inner.Shortest = !all
		inner.AllShortest = all
		return inner, nil
	}
	first, err := p.parseNodePattern()
	if err != nil {
		return path, err
	}
	path.Nodes = append(path.Nodes, first)

	for p.at(TokenDash) || p.at(TokenArrowLeft) {
		rel, err := p.parseRelPattern()
		if err != nil {
			return path, err
		}
		path.Rels = append(path.Rels, rel)
		node, err := p.parseNodePattern()
		if err != nil {
			return path, err
		}
		path.Nodes = append(path.Nodes, node)
	}
	return path, nil
}

func (p *Parser) parseNodePattern() (NodePattern, error) {
	var np NodePattern
	if _, err := p.expect(TokenLParen); err != nil {
		return np, err
	}
	if p.at(TokenIdent) {
		np.Variable = p.advance().Value
	}
	for p.at(TokenColon) {
		p.advance()
		lbl, err := p.expect(TokenIdent)
		if err != nil {
			return np, err
		}
		np.Labels = append(np.Labels, lbl.Value)
	}
	if p.at(TokenLBrace) {
		props, err := p.parsePropertyMap()
		if err != nil {
			return np, err
		}
		np.Properties = props
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return np, err
	}
	return np, nil
}

// parseRelPattern consumes one `-[...]-`, `-[...]->`, or `<-[...]-` hop.
func (p *Parser) parseRelPattern() (RelPattern, error) {
	var rel RelPattern
	rel.Direction = DirEither
	rel.MinHops, rel.MaxHops = -1, -1

	if p.at(TokenArrowLeft) {
		p.advance()
		rel.Direction = DirIn
	} else {
		if _, err := p.expect(TokenDash); err != nil {
			return rel, err
		}
	}

	if p.at(TokenLBracket) {
		p.advance()
		if p.at(TokenIdent) {
			rel.Variable = p.advance().Value
		}
		if p.at(TokenColon) {
			p.advance()
			for {
				t, err := p.expect(TokenIdent)
				if err != nil {
					return rel, err
				}
				rel.Types = append(rel.Types, t.Value)
				if p.at(TokenPipe) {
					p.advance()
					continue
				}
				break
			}
		}
		if p.at(TokenStar) {
			rel.VarLength = true
			p.advance()
			if p.at(TokenInt) {
				rel.MinHops = parseIntLiteral(p.advance().Value)
				rel.MaxHops = rel.MinHops
			}
			if p.at(TokenDotDot) {
				p.advance()
				if p.at(TokenInt) {
					rel.MaxHops = parseIntLiteral(p.advance().Value)
				} else {
					rel.MaxHops = -1
				}
			}
		}
		if p.at(TokenLBrace) {
			props, err := p.parsePropertyMap()
			if err != nil {
				return rel, err
			}
			rel.Properties = props
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return rel, err
		}
	}

	if p.at(TokenArrowRight) {
		p.advance()
		if rel.Direction == DirIn {
			return rel, fmt.Errorf("cypher: relationship pattern cannot point both directions")
		}
		rel.Direction = DirOut
	} else if rel.Direction != DirIn {
		if _, err := p.expect(TokenDash); err != nil {
			return rel, err
		}
	}
	return rel, nil
}

func (p *Parser) parsePropertyMap() (map[string]Expr, error) {
	m := map[string]Expr{}
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	for !p.at(TokenRBrace) {
		key, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m[key.Value] = val
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return m, nil
}

func parseIntLiteral(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// --- WITH / RETURN ---

func (p *Parser) parseProjectionItems() ([]ProjectionItem, bool, error) {
	var items []ProjectionItem
	distinct := false
	if p.at(TokenDistinct) {
		distinct = true
		p.advance()
	}
	for {
		if p.at(TokenStar) {
			p.advance()
			items = append(items, ProjectionItem{Star: true})
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, false, err
			}
			item := ProjectionItem{Expr: e}
			if p.at(TokenAs) {
				p.advance()
				alias, err := p.expect(TokenIdent)
				if err != nil {
					return nil, false, err
				}
				item.Alias = alias.Value
			}
			items = append(items, item)
		}
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return items, distinct, nil
}

func (p *Parser) parseOrderSkipLimit() ([]SortItem, Expr, Expr, error) {
	var order []SortItem
	var skip, limit Expr
	if p.at(TokenOrder) {
		p.advance()
		if _, err := p.expect(TokenBy); err != nil {
			return nil, nil, nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, err
			}
			si := SortItem{Expr: e}
			if p.at(TokenDesc) {
				si.Descending = true
				p.advance()
			} else if p.at(TokenAsc) {
				p.advance()
			}
			order = append(order, si)
			if p.at(TokenComma) {
				p.advance()
				continue
			}
			break
		}
	}
	if p.at(TokenSkip) {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, nil, nil, err
		}
		skip = e
	}
	if p.at(TokenLimit) {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, nil, nil, err
		}
		limit = e
	}
	return order, skip, limit, nil
}

func (p *Parser) parseWith() (Clause, error) {
	items, distinct, err := p.parseProjectionItems()
	if err != nil {
		return nil, err
	}
	w := WithClause{Items: items, Distinct: distinct}
	if p.at(TokenWhere) {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		w.Where = where
	}
	order, skip, limit, err := p.parseOrderSkipLimit()
	if err != nil {
		return nil, err
	}
	w.OrderBy, w.Skip, w.Limit = order, skip, limit
	return w, nil
}

func (p *Parser) parseReturn() (Clause, error) {
	items, distinct, err := p.parseProjectionItems()
	if err != nil {
		return nil, err
	}
	r := ReturnClause{Items: items, Distinct: distinct}
	order, skip, limit, err := p.parseOrderSkipLimit()
	if err != nil {
		return nil, err
	}
	r.OrderBy, r.Skip, r.Limit = order, skip, limit
	return r, nil
}

func (p *Parser) parseUnwind() (Clause, error) {
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAs); err != nil {
		return nil, err
	}
	as, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	return UnwindClause{List: list, As: as.Value}, nil
}

func (p *Parser) parseCreate() (Clause, error) {
	pat, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	return CreateClause{Pattern: pat}, nil
}

func (p *Parser) parseMerge() (Clause, error) {
	path, err := p.parsePatternPath()
	if err != nil {
		return nil, err
	}
	m := MergeClause{Pattern: path}
	for p.at(TokenOn) {
		p.advance()
		if p.at(TokenCreate) {
			p.advance()
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnCreate = items
		} else if p.at(TokenMatch) {
			p.advance()
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnMatch = items
		} else {
			return nil, fmt.Errorf("cypher: expected CREATE or MATCH after ON at position %d", p.cur().Pos)
		}
	}
	return m, nil
}

func (p *Parser) parseSetItems() ([]SetItem, error) {
	if _, err := p.expect(TokenSet); err != nil {
		return nil, err
	}
	var items []SetItem
	for {
		variable, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		item := SetItem{Variable: variable.Value}
		if p.at(TokenColon) {
			p.advance()
			lbl, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			item.Label = lbl.Value
		} else {
			if _, err := p.expect(TokenDot); err != nil {
				return nil, err
			}
			prop, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			item.Property = prop.Value
			if _, err := p.expect(TokenEquals); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item.Value = val
		}
		items = append(items, item)
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseSet() (Clause, error) {
	var items []SetItem
	for {
		variable, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		item := SetItem{Variable: variable.Value}
		if p.at(TokenColon) {
			p.advance()
			lbl, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			item.Label = lbl.Value
		} else {
			if _, err := p.expect(TokenDot); err != nil {
				return nil, err
			}
			prop, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			item.Property = prop.Value
			if _, err := p.expect(TokenEquals); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item.Value = val
		}
		items = append(items, item)
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return SetClause{Items: items}, nil
}

func (p *Parser) parseRemove() (Clause, error) {
	var items []RemoveItem
	for {
		variable, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		item := RemoveItem{Variable: variable.Value}
		if p.at(TokenColon) {
			p.advance()
			lbl, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			item.Label = lbl.Value
		} else {
			if _, err := p.expect(TokenDot); err != nil {
				return nil, err
			}
			prop, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			item.Property = prop.Value
		}
		items = append(items, item)
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return RemoveClause{Items: items}, nil
}

func (p *Parser) parseDelete(detach bool) (Clause, error) {
	var items []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return DeleteClause{Detach: detach, Items: items}, nil
}

func (p *Parser) parseForeach() (Clause, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	variable, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenIn); err != nil {
		return nil, err
	}
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenPipe); err != nil {
		return nil, err
	}
	var clauses []Clause
	for !p.at(TokenPipe) {
		c, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	p.advance() // closing '|'
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return ForeachClause{Variable: variable.Value, List: list, Clauses: clauses}, nil
}

func (p *Parser) parseUse() (Clause, error) {
	db, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	return UseClause{Database: db.Value}, nil
}

func (p *Parser) parseCall() (Clause, error) {
	if p.at(TokenLBrace) {
		p.advance()
		sub, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRBrace); err != nil {
			return nil, err
		}
		return CallSubqueryClause{Query: sub}, nil
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	fullName := name.Value
	for p.at(TokenDot) {
		p.advance()
		part, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		fullName += "." + part.Value
	}
	var args []Expr
	if p.at(TokenLParen) {
		p.advance()
		for !p.at(TokenRParen) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, e)
			if p.at(TokenComma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
	}
	call := CallProcedureClause{Name: fullName, Args: args}
	if p.at(TokenYield) {
		p.advance()
		for {
			y, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			call.Yield = append(call.Yield, y.Value)
			if p.at(TokenComma) {
				p.advance()
				continue
			}
			break
		}
	}
	return call, nil
}

// parseAdmin handles CREATE/DROP INDEX|CONSTRAINT, BEGIN/COMMIT/ROLLBACK,
// SHOW/CREATE/DROP DATABASE|USER, GRANT/REVOKE uniformly, collecting
// trailing identifiers as raw arguments for the executor to interpret.
func (p *Parser) parseAdmin() (Clause, error) {
	var kind AdminKind
	switch p.cur().Type {
	case TokenIndex:
		p.advance()
		kind = AdminCreateIndex
	case TokenConstraint:
		p.advance()
		kind = AdminCreateConstraint
	case TokenBegin:
		p.advance()
		kind = AdminBegin
	case TokenCommit:
		p.advance()
		kind = AdminCommit
	case TokenRollback:
		p.advance()
		kind = AdminRollback
	case TokenShow:
		p.advance()
		if p.at(TokenDatabase) {
			p.advance()
			kind = AdminShowDatabase
		} else if p.at(TokenUser) {
			p.advance()
			kind = AdminShowUser
		} else {
			return nil, fmt.Errorf("cypher: expected DATABASE or USER after SHOW")
		}
	case TokenDatabase:
		p.advance()
		kind = AdminCreateDatabase
	case TokenUser:
		p.advance()
		kind = AdminCreateUser
	case TokenGrant:
		p.advance()
		kind = AdminGrant
	case TokenRevoke:
		p.advance()
		kind = AdminRevoke
	case TokenDrop:
		p.advance()
		switch p.cur().Type {
		case TokenIndex:
			p.advance()
			kind = AdminDropIndex
		case TokenConstraint:
			p.advance()
			kind = AdminDropConstraint
		case TokenDatabase:
			p.advance()
			kind = AdminDropDatabase
		case TokenUser:
			p.advance()
			kind = AdminDropUser
		default:
			return nil, fmt.Errorf("cypher: expected INDEX, CONSTRAINT, DATABASE, or USER after DROP")
		}
	default:
		return nil, fmt.Errorf("cypher: unexpected admin token %v", p.cur())
	}

	var args []string
	for p.at(TokenIdent) || p.at(TokenString) {
		args = append(args, p.advance().Value)
	}
	return AdminClause{Kind: kind, Args: args}, nil
}

// --- expressions, lowest to highest precedence: OR, XOR, AND, NOT,
// comparison, additive, multiplicative, power, unary, postfix, primary ---

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.at(TokenOr) {
		p.advance()
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseXor() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokenXor) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: "XOR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(TokenAnd) {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.at(TokenNot) {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: "NOT", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case TokenEquals, TokenNotEquals, TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq, TokenRegex:
			op := p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = BinaryOp{Op: op.Value, Left: left, Right: right}
		case TokenIn:
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = BinaryOp{Op: "IN", Left: left, Right: right}
		case TokenStartsWith:
			p.advance()
			if _, err := p.expect(TokenWith); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = BinaryOp{Op: "STARTS WITH", Left: left, Right: right}
		case TokenEndsWith:
			p.advance()
			if _, err := p.expect(TokenWith); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = BinaryOp{Op: "ENDS WITH", Left: left, Right: right}
		case TokenContains:
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = BinaryOp{Op: "CONTAINS", Left: left, Right: right}
		case TokenIs:
			p.advance()
			negate := false
			if p.at(TokenNot) {
				negate = true
				p.advance()
			}
			if _, err := p.expect(TokenNull); err != nil {
				return nil, err
			}
			left = IsNullTest{Operand: left, Negate: negate}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TokenPlus) || p.at(TokenDash) {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op.Value, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.at(TokenStar) || p.at(TokenSlash) || p.at(TokenPercent) {
		op := p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op.Value, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePower() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.at(TokenCaret) {
		p.advance()
		right, err := p.parsePower() // right-associative
		if err != nil {
			return nil, err
		}
		return BinaryOp{Op: "^", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.at(TokenDash) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: "-", Operand: operand}, nil
	}
	if p.at(TokenPlus) {
		p.advance()
		return p.parseUnary()
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			e = PropertyAccess{Target: e, Name: name.Value}
		case TokenLBracket:
			p.advance()
			if p.at(TokenColon) {
				p.advance()
				var to Expr
				if !p.at(TokenRBracket) {
					to, err = p.parseExpr()
					if err != nil {
						return nil, err
					}
				}
				if _, err := p.expect(TokenRBracket); err != nil {
					return nil, err
				}
				e = SliceAccess{Target: e, To: to}
				continue
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.at(TokenColon) {
				p.advance()
				var to Expr
				if !p.at(TokenRBracket) {
					to, err = p.parseExpr()
					if err != nil {
						return nil, err
					}
				}
				if _, err := p.expect(TokenRBracket); err != nil {
					return nil, err
				}
				e = SliceAccess{Target: e, From: idx, To: to}
				continue
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			e = IndexAccess{Target: e, Index: idx}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch t.Type {
	case TokenInt:
		p.advance()
		return LiteralInt{Value: int64(parseIntLiteral(t.Value))}, nil
	case TokenFloat:
		p.advance()
		return LiteralFloat{Value: parseFloatLiteral(t.Value)}, nil
	case TokenString:
		p.advance()
		return LiteralString{Value: t.Value}, nil
	case TokenTrue:
		p.advance()
		return LiteralBool{Value: true}, nil
	case TokenFalse:
		p.advance()
		return LiteralBool{Value: false}, nil
	case TokenNull:
		p.advance()
		return LiteralNull{}, nil
	case TokenParam:
		p.advance()
		return Parameter{Name: t.Value}, nil
	case TokenLBracket:
		return p.parseListLiteralOrComprehension()
	case TokenLBrace:
		props, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		return LiteralMap{Entries: props}, nil
	case TokenLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case TokenCase:
		return p.parseCase()
	case TokenShortestPath, TokenAllShortestPaths:
		return p.parseShortestPath()
	case TokenIdent:
		return p.parseIdentOrCall()
	default:
		return nil, fmt.Errorf("cypher: unexpected token %v in expression", t)
	}
}

func parseFloatLiteral(s string) float64 {
	var whole, frac, exp float64
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		whole = whole*10 + float64(s[i]-'0')
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		div := 10.0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			frac += float64(s[i]-'0') / div
			div *= 10
			i++
		}
	}
	sign := 1.0
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			if s[i] == '-' {
				sign = -1.0
			}
			i++
		}
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			exp = exp*10 + float64(s[i]-'0')
			i++
		}
	}
	v := whole + frac
	if exp != 0 {
		mult := 1.0
		for n := 0; n < int(exp); n++ {
			mult *= 10
		}
		if sign < 0 {
			v /= mult
		} else {
			v *= mult
		}
	}
	return v
}

func (p *Parser) parseListLiteralOrComprehension() (Expr, error) {
	p.advance() // '['
	if p.at(TokenIdent) && p.peekN(1).Type == TokenIn {
		variable := p.advance().Value
		p.advance() // IN
		list, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		comp := ListComprehension{Variable: variable, List: list}
		if p.at(TokenWhere) {
			p.advance()
			where, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			comp.Where = where
		}
		if p.at(TokenPipe) {
			p.advance()
			proj, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			comp.Project = proj
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		return comp, nil
	}
	var items []Expr
	for !p.at(TokenRBracket) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return LiteralList{Items: items}, nil
}

func (p *Parser) parseCase() (Expr, error) {
	p.advance() // CASE
	ce := CaseExpr{}
	if !p.at(TokenWhen) {
		subj, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Subject = subj
	}
	for p.at(TokenWhen) {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenThen); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, CaseWhen{Condition: cond, Result: result})
	}
	if p.at(TokenElse) {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Else = e
	}
	if _, err := p.expect(TokenEnd); err != nil {
		return nil, err
	}
	return ce, nil
}

func (p *Parser) parseShortestPath() (Expr, error) {
	all := p.at(TokenAllShortestPaths)
	p.advance()
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	path, err := p.parsePatternPath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	path.Shortest = !all
	path.AllShortest = all
	return PatternComprehension{Path: path}, nil
}

func (p *Parser) parseIdentOrCall() (Expr, error) {
	name := p.advance().Value
	for p.at(TokenDot) && p.peekN(1).Type == TokenIdent && p.peekN(2).Type == TokenLParen {
		p.advance()
		name += "." + p.advance().Value
	}
	if p.at(TokenLParen) {
		p.advance()
		distinct := false
		if p.at(TokenDistinct) {
			distinct = true
			p.advance()
		}
		var args []Expr
		for !p.at(TokenRParen) {
			if p.at(TokenStar) {
				p.advance()
				args = append(args, Identifier{Name: "*"})
			} else {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, e)
			}
			if p.at(TokenComma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return FunctionCall{Name: name, Args: args, Distinct: distinct}, nil
	}
	return Identifier{Name: name}, nil
}
