package devbackend

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The fixture backend understands exactly the documents the dashboard sends:
// one operation selecting one root field with scalar arguments.
var (
	rootFieldRe = regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s*(?:\(([^)]*)\))?`)
	argRe       = regexp.MustCompile(`([A-Za-z_]\w*)\s*:\s*(\$[A-Za-z_]\w*|"(?:[^"\\]|\\.)*"|[-\w.]+)`)
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// operation is a parsed request: whether it mutates, the selected root
// field, and its resolved arguments.
type operation struct {
	Mutation bool
	Field    string
	Args     map[string]string
}

func parseOperation(req gqlRequest) (operation, error) {
	q := strings.TrimSpace(req.Query)
	open := strings.Index(q, "{")
	if open < 0 {
		return operation{}, errors.New("syntax error: expected selection set")
	}
	head := strings.TrimSpace(q[:open])
	op := operation{Mutation: strings.HasPrefix(head, "mutation"), Args: map[string]string{}}
	if head != "" && !op.Mutation && !strings.HasPrefix(head, "query") {
		return operation{}, fmt.Errorf("syntax error: unexpected %q", head)
	}

	m := rootFieldRe.FindStringSubmatch(q[open+1:])
	if m == nil {
		return operation{}, errors.New("syntax error: expected field")
	}
	op.Field = m[1]
	for _, a := range argRe.FindAllStringSubmatch(m[2], -1) {
		v, err := argValue(a[2], req.Variables)
		if err != nil {
			return operation{}, err
		}
		op.Args[a[1]] = v
	}
	return op, nil
}

func argValue(tok string, vars map[string]any) (string, error) {
	switch {
	case strings.HasPrefix(tok, "$"):
		v, ok := vars[tok[1:]]
		if !ok || v == nil {
			return "", fmt.Errorf("Variable %q is not defined", tok)
		}
		switch t := v.(type) {
		case string:
			return t, nil
		default:
			return fmt.Sprint(t), nil
		}
	case strings.HasPrefix(tok, `"`):
		s, err := strconv.Unquote(tok)
		if err != nil {
			return "", fmt.Errorf("syntax error: bad string %s", tok)
		}
		return s, nil
	default:
		return tok, nil
	}
}

func (op operation) arg(name string) (string, error) {
	v, ok := op.Args[name]
	if !ok {
		return "", fmt.Errorf("Field %q argument %q of type \"String!\" is required, but it was not provided.", op.Field, name)
	}
	return v, nil
}
