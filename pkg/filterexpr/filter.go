// Package filterexpr parses list filters written in a small CEL subset
// (conjunctions of comparisons) and order_by clauses into typed terms that
// storage adapters translate into their own query languages.
package filterexpr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// ValueKind describes the kind of literal value a field accepts.
type ValueKind string

const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindTimestamp ValueKind = "timestamp"
)

// Op represents a supported comparison operation.
type Op string

const (
	OpEQ  Op = "=="
	OpGTE Op = ">="
	OpLTE Op = "<="
	OpSW  Op = "startsWith"
	OpIN  Op = "in"
)

// Field declares a filterable field and the operators allowed on it.
type Field struct {
	Kind ValueKind
	Ops  []Op
}

func (f Field) allows(op Op) bool {
	for _, allowed := range f.Ops {
		if allowed == op {
			return true
		}
	}
	return false
}

// Schema whitelists the fields of one resource.
type Schema struct {
	Fields map[string]Field
	Order  OrderSchema
}

// Predicate is one validated comparison. Value holds a string, []string,
// float64 or time.Time according to the field kind and operator.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Parse turns filter into predicates that must all hold. An empty filter
// yields no predicates.
func Parse(filter string, schema Schema) ([]Predicate, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	if len(schema.Fields) == 0 {
		return nil, errors.New("filter schema has no fields defined")
	}

	env, err := newEnv(schema.Fields)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Parse(filter)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter: %w", issues.Err())
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to convert AST: %w", err)
	}

	conjuncts, err := flattenAnd(parsed.GetExpr())
	if err != nil {
		return nil, err
	}

	preds := make([]Predicate, 0, len(conjuncts))
	for _, expr := range conjuncts {
		pred, err := toPredicate(expr)
		if err != nil {
			return nil, err
		}
		field, ok := schema.Fields[pred.Field]
		if !ok {
			return nil, fmt.Errorf("field %q is not allowed", pred.Field)
		}
		if !field.allows(pred.Op) {
			return nil, fmt.Errorf("operator %q is not allowed for field %q", string(pred.Op), pred.Field)
		}
		if err := checkLiteral(field.Kind, pred.Op, pred.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", pred.Field, err)
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// Match evaluates preds against a record whose field values are returned by
// lookup. Adapters without a query language filter in memory with it.
func Match(preds []Predicate, lookup func(field string) any) bool {
	for _, p := range preds {
		if !p.Matches(lookup(p.Field)) {
			return false
		}
	}
	return true
}

// Matches reports whether value satisfies the predicate.
func (p Predicate) Matches(value any) bool {
	switch v := value.(type) {
	case string:
		switch p.Op {
		case OpEQ:
			return v == p.Value
		case OpSW:
			prefix, _ := p.Value.(string)
			return strings.HasPrefix(v, prefix)
		case OpIN:
			list, _ := p.Value.([]string)
			for _, item := range list {
				if item == v {
					return true
				}
			}
			return false
		}
	case float64:
		want, _ := p.Value.(float64)
		return compare(p.Op, v, want)
	case int:
		want, _ := p.Value.(float64)
		return compare(p.Op, float64(v), want)
	case time.Time:
		want, _ := p.Value.(time.Time)
		switch p.Op {
		case OpEQ:
			return v.Equal(want)
		case OpGTE:
			return !v.Before(want)
		case OpLTE:
			return !v.After(want)
		}
	}
	return false
}

func compare(op Op, got, want float64) bool {
	switch op {
	case OpEQ:
		return got == want
	case OpGTE:
		return got >= want
	case OpLTE:
		return got <= want
	default:
		return false
	}
}

func newEnv(fields map[string]Field) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(fields)+1)
	for name, field := range fields {
		var t *cel.Type
		switch field.Kind {
		case KindString:
			t = cel.StringType
		case KindNumber:
			t = cel.DoubleType
		case KindTimestamp:
			t = cel.TimestampType
		default:
			return nil, fmt.Errorf("field %q: unsupported field kind %s", name, field.Kind)
		}
		opts = append(opts, cel.Variable(name, t))
	}
	opts = append(opts, cel.CrossTypeNumericComparisons(true))
	return cel.NewEnv(opts...)
}

// flattenAnd splits nested && chains; every other logical operator is rejected.
func flattenAnd(expr *exprpb.Expr) ([]*exprpb.Expr, error) {
	if expr == nil {
		return nil, errors.New("empty expression")
	}
	call := expr.GetCallExpr()
	if call == nil {
		return []*exprpb.Expr{expr}, nil
	}
	switch call.Function {
	case "_&&_":
		var out []*exprpb.Expr
		for _, arg := range call.Args {
			parts, err := flattenAnd(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, parts...)
		}
		return out, nil
	case "_||_", "_?_:_", "!_":
		return nil, fmt.Errorf("logical operator %q is not supported; only AND is allowed", call.Function)
	default:
		return []*exprpb.Expr{expr}, nil
	}
}

func toPredicate(expr *exprpb.Expr) (Predicate, error) {
	call := expr.GetCallExpr()
	if call == nil {
		return Predicate{}, errors.New("unsupported expression; expected comparison or function call")
	}

	var (
		op          Op
		ident, lit  *exprpb.Expr
		receiverArg = call.Target != nil && len(call.Args) == 1
	)
	switch call.Function {
	case "_==_", "_>=_", "_<=_":
		if call.Target != nil || len(call.Args) != 2 {
			return Predicate{}, fmt.Errorf("operator %q expects two operands", call.Function)
		}
		op = map[string]Op{"_==_": OpEQ, "_>=_": OpGTE, "_<=_": OpLTE}[call.Function]
		ident, lit = call.Args[0], call.Args[1]
	case "@in", "_in_":
		if len(call.Args) != 2 {
			return Predicate{}, errors.New("in operator expects two operands")
		}
		op = OpIN
		ident, lit = call.Args[0], call.Args[1]
	case "startsWith":
		if !receiverArg {
			return Predicate{}, errors.New("startsWith must be called on a field with one argument")
		}
		op = OpSW
		ident, lit = call.Target, call.Args[0]
	default:
		return Predicate{}, fmt.Errorf("function %q is not supported", call.Function)
	}

	name := ident.GetIdentExpr().GetName()
	if name == "" {
		return Predicate{}, errors.New("left-hand side must be an identifier")
	}
	value, err := literal(lit)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Field: name, Op: op, Value: value}, nil
}

func literal(expr *exprpb.Expr) (any, error) {
	if c := expr.GetConstExpr(); c != nil {
		switch c.ConstantKind.(type) {
		case *exprpb.Constant_StringValue:
			return c.GetStringValue(), nil
		case *exprpb.Constant_Int64Value:
			return float64(c.GetInt64Value()), nil
		case *exprpb.Constant_Uint64Value:
			return float64(c.GetUint64Value()), nil
		case *exprpb.Constant_DoubleValue:
			return c.GetDoubleValue(), nil
		default:
			return nil, fmt.Errorf("literal type %T is not supported", c.ConstantKind)
		}
	}

	if list := expr.GetListExpr(); list != nil {
		values := make([]string, 0, len(list.GetElements()))
		for i, elem := range list.GetElements() {
			s := elem.GetConstExpr().GetStringValue()
			if s == "" {
				return nil, fmt.Errorf("list literal element %d must be a non-empty string", i)
			}
			values = append(values, s)
		}
		return values, nil
	}

	if call := expr.GetCallExpr(); call != nil && call.Function == "timestamp" && len(call.Args) == 1 {
		raw := call.Args[0].GetConstExpr().GetStringValue()
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("timestamp literal %q is not RFC3339", raw)
		}
		return t, nil
	}

	return nil, errors.New("right-hand side must be a literal, list literal, or timestamp() call")
}

func checkLiteral(kind ValueKind, op Op, value any) error {
	var ok bool
	switch kind {
	case KindString:
		if op == OpIN {
			var list []string
			list, ok = value.([]string)
			if ok && len(list) == 0 {
				return errors.New("list literal must not be empty")
			}
		} else {
			_, ok = value.(string)
		}
	case KindNumber:
		_, ok = value.(float64)
	case KindTimestamp:
		_, ok = value.(time.Time)
	default:
		return fmt.Errorf("unsupported field kind %s", kind)
	}
	if !ok {
		return fmt.Errorf("expected %s literal", kind)
	}
	return nil
}
