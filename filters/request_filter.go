package filters

import (
	"fmt"
	"strings"
)

// AnyMethod matches every request method.
const AnyMethod = "*"

// Rule is formatted by "[METHOD] [PATH]". A PATH ending in "*" matches every
// path with that prefix.
type Rule = string

// RequestFilter checks whether a request method-path combination matches a
// rule within its rules set. The filter is insensitive to the leading slash
// of a path.
//
// Exact rules are kept in a set so the common lookup is O(1); AddPath does the
// string work of normalising paths up front. Prefix rules are scanned.
type RequestFilter struct {
	exact    map[Rule]bool
	prefixes []prefixRule
}

type prefixRule struct {
	method string
	prefix string
}

func NewRequestFilter() *RequestFilter {
	return &RequestFilter{exact: map[Rule]bool{}}
}

// ParseRequestFilter builds a filter from rules such as "GET /health",
// "* /static/*" or "/metrics". A rule without a method applies to all
// methods.
func ParseRequestFilter(rules []string) (*RequestFilter, error) {
	r := NewRequestFilter()
	for _, rule := range rules {
		fields := strings.Fields(rule)
		switch len(fields) {
		case 1:
			r.AddPath(fields[0], AnyMethod)
		case 2:
			r.AddPath(fields[1], strings.ToUpper(fields[0]))
		default:
			return nil, fmt.Errorf("expected request filter rule formatted by \"[METHOD] [PATH]\"; got %q", rule)
		}
	}
	return r, nil
}

func (r *RequestFilter) Matches(path string, method string) bool {
	path = prependLeadingSlashIfMissing(path)
	if r.exact[toRule(path, method)] || r.exact[toRule(path, AnyMethod)] {
		return true
	}

	for _, p := range r.prefixes {
		if (p.method == AnyMethod || p.method == method) && strings.HasPrefix(path, p.prefix) {
			return true
		}
	}
	return false
}

// AddPath adds a rule for the given path and method. A trailing "*" turns the
// rule into a prefix match.
func (r *RequestFilter) AddPath(path string, method string) {
	path = prependLeadingSlashIfMissing(path)
	if strings.HasSuffix(path, "*") {
		r.prefixes = append(r.prefixes, prefixRule{method: method, prefix: strings.TrimSuffix(path, "*")})
		return
	}
	r.exact[toRule(path, method)] = true
}

// Len returns the number of rules.
func (r *RequestFilter) Len() int {
	return len(r.exact) + len(r.prefixes)
}

func toRule(path string, method string) Rule {
	return method + " " + path
}

func prependLeadingSlashIfMissing(path string) string {
	if len(path) == 0 || path[0] != '/' {
		return "/" + path
	}
	return path
}
