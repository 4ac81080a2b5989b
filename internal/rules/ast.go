// Package rules compiles column validation expressions into a small closed
// AST over a single bound variable named "value".
//
// Expressions are parsed with the expr-lang parser and translated node by node.
// Only literals, the value identifier, arithmetic, comparison, boolean and
// membership operators, list literals and the functions min, max, len, abs,
// round, pow and sum are accepted. Everything else is rejected at compile time.
//
// Rules are usually written in Python syntax, so True, False and None are
// accepted as constants and tuples such as ('M', 'F') as lists. Python's ^ is
// XOR, not a power, so it is rejected rather than evaluated.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Kind tags a Node.
type Kind uint8

const (
	KindConst Kind = iota
	KindValue
	KindUnary
	KindBinary
	KindCall
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindConst:
		return "const"
	case KindValue:
		return "value"
	case KindUnary:
		return "unary"
	case KindBinary:
		return "binary"
	case KindCall:
		return "call"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Node is one element of a compiled expression.
type Node struct {
	Kind  Kind
	Const interface{} // float64, string, bool or nil
	Op    string      // operator (unary, binary) or function name (call)
	Args  []*Node
}

// Expression is a compiled, immutable rule.
type Expression struct {
	Source string
	Root   *Node
}

// VarName is the only identifier an expression may reference.
const VarName = "value"

var functions = map[string]bool{
	"min": true, "max": true, "len": true, "abs": true,
	"round": true, "pow": true, "sum": true,
}

var binaryOps = map[string]string{
	"and": "and", "&&": "and",
	"or": "or", "||": "or",
	"==": "==", "!=": "!=",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"+": "+", "-": "-", "*": "*", "/": "/", "%": "%",
	"**":         "**",
	"in":         "in",
	"contains":   "contains",
	"startsWith": "startsWith",
	"endsWith":   "endsWith",
}

var unaryOps = map[string]string{
	"not": "not", "!": "not",
	"-": "-", "+": "+",
}

// shorthandClause finds a clause that starts with a comparison operator,
// e.g. the two halves of ">=18 and <=35".
var shorthandClause = regexp.MustCompile(`(^|\band\b|\bor\b|&&|\|\||\()(\s*)(>=|<=|==|!=|>|<)`)

// pythonConsts are the Python literals accepted as identifiers.
var pythonConsts = map[string]interface{}{
	"True":  true,
	"False": false,
	"None":  nil,
}

// Normalize rewrites shorthand clauses so they compare against value, and
// Python tuples into list literals.
func Normalize(src string) string {
	out := shorthandClause.ReplaceAllStringFunc(strings.TrimSpace(src), func(m string) string {
		sub := shorthandClause.FindStringSubmatch(m)
		lead := sub[1]
		if lead != "" && lead != "(" {
			lead += " "
		}
		return lead + VarName + " " + sub[3]
	})
	return tupleLists(out)
}

// tupleLists turns parenthesized tuples, ('M', 'F'), (1,) and (), into list
// literals. Call parentheses and plain grouping are left alone.
func tupleLists(src string) string {
	type frame struct {
		open      int
		tuple     bool // grouping paren that may be a tuple
		comma     bool
		lastComma int
	}
	out := []byte(src)
	var stack []frame
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			stack = append(stack, frame{open: i, tuple: !callParen(out[:i]), lastComma: -1})
		case '[', '{':
			stack = append(stack, frame{open: i, lastComma: -1})
		case ',':
			if n := len(stack); n > 0 {
				stack[n-1].comma = true
				stack[n-1].lastComma = i
			}
		case ')', ']', '}':
			n := len(stack)
			if n == 0 {
				continue
			}
			f := stack[n-1]
			stack = stack[:n-1]
			if c != ')' || !f.tuple {
				continue
			}
			empty := strings.TrimSpace(string(out[f.open+1:i])) == ""
			if !f.comma && !empty {
				continue
			}
			out[f.open], out[i] = '[', ']'
			if f.lastComma >= 0 && strings.TrimSpace(string(out[f.lastComma+1:i])) == "" {
				out[f.lastComma] = ' '
			}
		}
	}
	return string(out)
}

// callParen reports whether a '(' following prefix opens a call argument list.
func callParen(prefix []byte) bool {
	p := strings.TrimRight(string(prefix), " \t")
	if p == "" {
		return false
	}
	last := p[len(p)-1]
	if last == ')' || last == ']' {
		return true
	}
	j := len(p)
	for j > 0 && isIdentByte(p[j-1]) {
		j--
	}
	switch p[j:] {
	case "", "in", "and", "or", "not":
		return false
	}
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// Compile parses src and translates it into a closed Expression.
func Compile(src string) (*Expression, error) {
	norm := Normalize(src)
	if norm == "" {
		return nil, fmt.Errorf("empty expression")
	}
	tree, err := parser.Parse(norm)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	root, err := translate(tree.Node)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &Expression{Source: src, Root: root}, nil
}

func translate(n ast.Node) (*Node, error) {
	switch n := n.(type) {
	case *ast.NilNode:
		return &Node{Kind: KindConst}, nil
	case *ast.IntegerNode:
		return &Node{Kind: KindConst, Const: float64(n.Value)}, nil
	case *ast.FloatNode:
		return &Node{Kind: KindConst, Const: n.Value}, nil
	case *ast.BoolNode:
		return &Node{Kind: KindConst, Const: n.Value}, nil
	case *ast.StringNode:
		return &Node{Kind: KindConst, Const: n.Value}, nil
	case *ast.IdentifierNode:
		if c, ok := pythonConsts[n.Value]; ok {
			return &Node{Kind: KindConst, Const: c}, nil
		}
		if n.Value != VarName {
			return nil, fmt.Errorf("unknown identifier %q", n.Value)
		}
		return &Node{Kind: KindValue}, nil
	case *ast.UnaryNode:
		op, ok := unaryOps[n.Operator]
		if !ok {
			return nil, fmt.Errorf("unsupported unary operator %q", n.Operator)
		}
		arg, err := translate(n.Node)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindUnary, Op: op, Args: []*Node{arg}}, nil
	case *ast.BinaryNode:
		op, ok := binaryOps[n.Operator]
		if !ok {
			return nil, fmt.Errorf("unsupported operator %q", n.Operator)
		}
		left, err := translate(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := translate(n.Right)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindBinary, Op: op, Args: []*Node{left, right}}, nil
	case *ast.ArrayNode:
		items, err := translateAll(n.Nodes)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindList, Args: items}, nil
	case *ast.BuiltinNode:
		return translateCall(n.Name, n.Arguments)
	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return nil, fmt.Errorf("unsupported call target")
		}
		return translateCall(id.Value, n.Arguments)
	case nil:
		return nil, fmt.Errorf("empty expression")
	}
	return nil, fmt.Errorf("unsupported construct %T", n)
}

func translateCall(name string, args []ast.Node) (*Node, error) {
	if !functions[name] {
		return nil, fmt.Errorf("function %q is not allowed", name)
	}
	items, err := translateAll(args)
	if err != nil {
		return nil, err
	}
	if err := checkArity(name, len(items)); err != nil {
		return nil, err
	}
	return &Node{Kind: KindCall, Op: name, Args: items}, nil
}

func translateAll(nodes []ast.Node) ([]*Node, error) {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		t, err := translate(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func checkArity(name string, n int) error {
	var ok bool
	switch name {
	case "len", "abs":
		ok = n == 1
	case "round":
		ok = n == 1 || n == 2
	case "pow":
		ok = n == 2
	default: // min, max, sum
		ok = n >= 1
	}
	if !ok {
		return fmt.Errorf("%s: wrong number of arguments (%d)", name, n)
	}
	return nil
}

// ── Compile Cache ────────────────────────────────────────────

// Cache memoizes compiled expressions by source text. Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	exprs map[string]*Expression
}

// NewCache creates an empty compile cache.
func NewCache() *Cache {
	return &Cache{exprs: make(map[string]*Expression)}
}

// Compile returns the cached expression for src, compiling it on first use.
func (c *Cache) Compile(src string) (*Expression, error) {
	c.mu.RLock()
	e, ok := c.exprs[src]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	e, err := Compile(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.exprs[src] = e
	c.mu.Unlock()
	return e, nil
}

// Len returns the number of cached expressions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.exprs)
}
