// Package filter translates AIP-160 application list filters into SQL.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Declarations returns the identifiers accepted in application filters.
func Declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("status", filtering.TypeString),
		filtering.DeclareIdent("applicant_id", filtering.TypeString),
		filtering.DeclareIdent("job_posting_id", filtering.TypeString),
		filtering.DeclareIdent("applied_at", filtering.TypeTimestamp),
		filtering.DeclareIdent("updated_at", filtering.TypeTimestamp),
	)
}

// SQLCondition represents a SQL WHERE clause fragment with ? placeholders.
type SQLCondition struct {
	Clause string
	Params []any
}

// Empty reports whether the condition constrains nothing.
func (c SQLCondition) Empty() bool {
	return strings.TrimSpace(c.Clause) == ""
}

// TimestampEncoder converts a filter timestamp into the store's column representation.
type TimestampEncoder func(time.Time) any

// columns maps filter identifiers to the aliased columns of the application list query.
var columns = map[string]string{
	"status":         "s.code",
	"applicant_id":   "a.applicant_id",
	"job_posting_id": "a.job_posting_id",
	"applied_at":     "a.created_at",
	"updated_at":     "a.updated_at",
}

var timestampFields = map[string]bool{
	"applied_at": true,
	"updated_at": true,
}

// Validate reports whether filterStr parses against the application declarations.
func Validate(filterStr string) error {
	_, err := ParseApplicationFilter(filterStr, func(t time.Time) any { return t })
	return err
}

// ParseApplicationFilter parses an AIP-160 filter expression and returns a SQL condition.
// Returns an empty condition for an empty filter string.
func ParseApplicationFilter(filterStr string, encode TimestampEncoder) (SQLCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return SQLCondition{}, nil
	}
	if encode == nil {
		return SQLCondition{}, fmt.Errorf("timestamp encoder is required")
	}

	decls, err := Declarations()
	if err != nil {
		return SQLCondition{}, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("parse filter: %w", err)
	}

	tr := translator{encode: encode}
	return tr.expr(parsed.CheckedExpr.Expr)
}

type translator struct {
	encode TimestampEncoder
}

func (tr translator) expr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return tr.call(kind.CallExpr)
	default:
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func (tr translator) call(call *expr.Expr_Call) (SQLCondition, error) {
	switch call.Function {
	case "_&&_", "AND":
		return tr.junction(call.Args, "AND")
	case "_||_", "OR":
		return tr.junction(call.Args, "OR")
	case "NOT":
		return tr.negation(call.Args)
	case "_==_", "=":
		return tr.comparison(call.Args, "=")
	case "_!=_", "!=":
		return tr.comparison(call.Args, "!=")
	case "_<_", "<":
		return tr.comparison(call.Args, "<")
	case "_<=_", "<=":
		return tr.comparison(call.Args, "<=")
	case "_>_", ">":
		return tr.comparison(call.Args, ">")
	case "_>=_", ">=":
		return tr.comparison(call.Args, ">=")
	default:
		return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func (tr translator) junction(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s requires 2 arguments", op)
	}

	left, err := tr.expr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	right, err := tr.expr(args[1])
	if err != nil {
		return SQLCondition{}, err
	}

	params := make([]any, 0, len(left.Params)+len(right.Params))
	params = append(params, left.Params...)
	params = append(params, right.Params...)
	return SQLCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: params,
	}, nil
}

func (tr translator) negation(args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 1 {
		return SQLCondition{}, fmt.Errorf("NOT requires 1 argument")
	}
	inner, err := tr.expr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{Clause: fmt.Sprintf("(NOT %s)", inner.Clause), Params: inner.Params}, nil
}

func (tr translator) comparison(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := identName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	column, ok := columns[field]
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", field)
	}

	var value any
	if timestampFields[field] {
		ts, err := timestampValue(args[1])
		if err != nil {
			return SQLCondition{}, err
		}
		value = tr.encode(ts)
	} else {
		if op != "=" && op != "!=" {
			return SQLCondition{}, fmt.Errorf("operator %s not supported for %s", op, field)
		}
		value, err = stringValue(args[1])
		if err != nil {
			return SQLCondition{}, err
		}
	}

	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", column, op),
		Params: []any{value},
	}, nil
}

func identName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func stringValue(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	constExpr, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("expected constant, got %T", e.ExprKind)
	}
	str, ok := constExpr.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant, got %T", constExpr.ConstExpr.ConstantKind)
	}
	return str.StringValue, nil
}

func timestampValue(e *expr.Expr) (time.Time, error) {
	if e == nil {
		return time.Time{}, fmt.Errorf("nil expression")
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok || call.CallExpr.Function != "timestamp" || len(call.CallExpr.Args) != 1 {
		return time.Time{}, fmt.Errorf("expected timestamp(\"...\") value")
	}
	raw, err := stringValue(call.CallExpr.Args[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp argument must be a constant string")
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", raw)
	}
	return ts.UTC(), nil
}
