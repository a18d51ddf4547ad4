package resources

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
)

// ErrEmptyPath is returned by UniqueQuery for an empty data path.
var ErrEmptyPath = errors.New("resources: unique query needs a data path")

var plainKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UniqueQuery builds the SQLite predicate matching stored submissions whose
// value at path equals value. The predicate reads the submission JSON from
// column `s.data`. Index segments match any array element through
// json_each, so `grid[0].email` matches a submission holding the email in
// any row. Placeholders appear in args order.
func UniqueQuery(path string, value any) (string, []any, error) {
	segments := datapath.Parse(path)
	if len(segments) == 0 {
		return "", nil, ErrEmptyPath
	}
	clause, args, err := uniqueClause("s.data", segments, value, 0)
	if err != nil {
		return "", nil, err
	}
	return clause, args, nil
}

func uniqueClause(source string, segments []datapath.Segment, value any, depth int) (string, []any, error) {
	jsonPath := "$"
	for i, seg := range segments {
		if !seg.IsIndex {
			jsonPath += pathKey(seg.Key)
			continue
		}
		alias := fmt.Sprintf("e%d", depth)
		inner, innerArgs, err := uniqueClause(alias+".value", segments[i+1:], value, depth+1)
		if err != nil {
			return "", nil, err
		}
		clause := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s, ?) AS %s WHERE %s)", source, alias, inner)
		return clause, append([]any{jsonPath}, innerArgs...), nil
	}

	var (
		target string
		args   []any
	)
	if jsonPath == "$" {
		target = source
	} else {
		target = fmt.Sprintf("json_extract(%s, ?)", source)
		args = append(args, jsonPath)
	}
	return compare(target, value, args)
}

func compare(target string, value any, args []any) (string, []any, error) {
	switch v := value.(type) {
	case nil:
		return target + " IS NULL", args, nil
	case string:
		return fmt.Sprintf("lower(%s) = lower(?)", target), append(args, v), nil
	case bool:
		n := 0
		if v {
			n = 1
		}
		return target + " = ?", append(args, n), nil
	}
	if f, ok := toFloat(value); ok {
		return target + " = ?", append(args, f), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", nil, fmt.Errorf("resources: encode unique value: %w", err)
	}
	return fmt.Sprintf("json(%s) = json(?)", target), append(args, string(raw)), nil
}

func pathKey(key string) string {
	if plainKey.MatchString(key) {
		return "." + key
	}
	return `."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}
