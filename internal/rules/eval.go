package rules

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// Eval evaluates the expression with value bound to v. The result must be a
// boolean; any other result, or any runtime error, is returned as an error.
func (e *Expression) Eval(v interface{}) (bool, error) {
	out, err := eval(e.Root, normalizeValue(v))
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q produced %T, want bool", e.Source, out)
	}
	return b, nil
}

// Check evaluates the expression and reports a pass only when it returns true
// without error.
func (e *Expression) Check(v interface{}) bool {
	ok, err := e.Eval(v)
	return err == nil && ok
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return cast.ToFloat64(t)
	case time.Time:
		return float64(t.Unix())
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = normalizeValue(x)
		}
		return out
	}
	return fmt.Sprint(v)
}

func eval(n *Node, value interface{}) (interface{}, error) {
	switch n.Kind {
	case KindConst:
		return n.Const, nil
	case KindValue:
		return value, nil
	case KindList:
		out := make([]interface{}, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := eval(a, value)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case KindUnary:
		return evalUnary(n, value)
	case KindBinary:
		return evalBinary(n, value)
	case KindCall:
		args := make([]interface{}, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := eval(a, value)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return call(n.Op, args)
	}
	return nil, fmt.Errorf("unknown node kind %s", n.Kind)
}

func evalUnary(n *Node, value interface{}) (interface{}, error) {
	x, err := eval(n.Args[0], value)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "not":
		b, ok := x.(bool)
		if !ok {
			return nil, fmt.Errorf("not: operand is %T", x)
		}
		return !b, nil
	case "-", "+":
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("unary %s: operand is %T", n.Op, x)
		}
		if n.Op == "-" {
			return -f, nil
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.Op)
}

func evalBinary(n *Node, value interface{}) (interface{}, error) {
	left, err := eval(n.Args[0], value)
	if err != nil {
		return nil, err
	}

	// and/or short-circuit.
	if n.Op == "and" || n.Op == "or" {
		lb, ok := left.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: left operand is %T", n.Op, left)
		}
		if n.Op == "and" && !lb {
			return false, nil
		}
		if n.Op == "or" && lb {
			return true, nil
		}
		right, err := eval(n.Args[1], value)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: right operand is %T", n.Op, right)
		}
		return rb, nil
	}

	right, err := eval(n.Args[1], value)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "<", "<=", ">", ">=":
		ok, err := compare(n.Op, left, right)
		if err != nil {
			return nil, err
		}
		return ok, nil
	case "+", "-", "*", "/", "%", "**":
		return arith(n.Op, left, right)
	case "in":
		list, ok := right.([]interface{})
		if !ok {
			if s, isStr := right.(string); isStr {
				ls, ok := left.(string)
				if !ok {
					return nil, fmt.Errorf("in: left operand is %T", left)
				}
				return strings.Contains(s, ls), nil
			}
			return nil, fmt.Errorf("in: right operand is %T", right)
		}
		for _, item := range list {
			if equal(left, item) {
				return true, nil
			}
		}
		return false, nil
	case "contains", "startsWith", "endsWith":
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return nil, fmt.Errorf("%s: operands must be strings", n.Op)
		}
		switch n.Op {
		case "contains":
			return strings.Contains(ls, rs), nil
		case "startsWith":
			return strings.HasPrefix(ls, rs), nil
		default:
			return strings.HasSuffix(ls, rs), nil
		}
	}
	return nil, fmt.Errorf("unknown operator %q", n.Op)
}

func equal(a, b interface{}) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func compare(op string, a, b interface{}) (bool, error) {
	var c int
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return false, fmt.Errorf("%s: cannot compare number with %T", op, b)
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case string:
		y, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("%s: cannot compare string with %T", op, b)
		}
		c = strings.Compare(x, y)
	default:
		return false, fmt.Errorf("%s: unordered operand %T", op, a)
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func arith(op string, a, b interface{}) (interface{}, error) {
	if op == "+" {
		if x, ok := a.(string); ok {
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		}
	}
	x, ok := a.(float64)
	if !ok {
		return nil, fmt.Errorf("%s: left operand is %T", op, a)
	}
	y, ok := b.(float64)
	if !ok {
		return nil, fmt.Errorf("%s: right operand is %T", op, b)
	}
	var r float64
	switch op {
	case "+":
		r = x + y
	case "-":
		r = x - y
	case "*":
		r = x * y
	case "/":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		r = x / y
	case "%":
		if y == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		r = math.Mod(x, y)
	case "**":
		r = math.Pow(x, y)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, fmt.Errorf("%s: result is not finite", op)
	}
	return r, nil
}

// ── Functions ────────────────────────────────────────────────

func call(name string, args []interface{}) (interface{}, error) {
	switch name {
	case "len":
		switch x := args[0].(type) {
		case string:
			return float64(utf8.RuneCountInString(x)), nil
		case []interface{}:
			return float64(len(x)), nil
		}
		return nil, fmt.Errorf("len: unsupported operand %T", args[0])
	case "abs":
		x, err := number(name, args[0])
		if err != nil {
			return nil, err
		}
		return math.Abs(x), nil
	case "round":
		x, err := number(name, args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return math.Round(x), nil
		}
		d, err := number(name, args[1])
		if err != nil {
			return nil, err
		}
		p := math.Pow(10, math.Trunc(d))
		return math.Round(x*p) / p, nil
	case "pow":
		x, err := number(name, args[0])
		if err != nil {
			return nil, err
		}
		y, err := number(name, args[1])
		if err != nil {
			return nil, err
		}
		return arith("**", x, y)
	case "min", "max", "sum":
		nums, err := numbers(name, args)
		if err != nil {
			return nil, err
		}
		r, err := fold(name, nums)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("function %q is not allowed", name)
}

func number(fn string, v interface{}) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s: argument is %T, want number", fn, v)
	}
	return f, nil
}

// numbers flattens a single list argument or variadic arguments.
func numbers(fn string, args []interface{}) ([]float64, error) {
	if len(args) == 1 {
		if list, ok := args[0].([]interface{}); ok {
			args = list
		}
	}
	out := make([]float64, 0, len(args))
	for _, a := range args {
		f, err := number(fn, a)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func fold(fn string, nums []float64) (float64, error) {
	if fn == "sum" {
		var s float64
		for _, n := range nums {
			s += n
		}
		return s, nil
	}
	if len(nums) == 0 {
		return 0, fmt.Errorf("%s: empty argument list", fn)
	}
	r := nums[0]
	for _, n := range nums[1:] {
		if fn == "min" && n < r || fn == "max" && n > r {
			r = n
		}
	}
	return r, nil
}
