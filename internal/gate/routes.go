package gate

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// Route is one page entry of the route table.
type Route struct {
	Path   string `yaml:"path" json:"path"`
	Title  string `yaml:"title" json:"title"`
	Public bool   `yaml:"public" json:"public"`
	Trial  bool   `yaml:"trial" json:"trial,omitempty"`

	Requirements `yaml:",inline"`
}

// Protected reports whether the route goes through Decide.
func (r Route) Protected() bool {
	return !r.Public && !r.Trial
}

// Routes is the ordered page table. The first matching entry wins.
type Routes struct {
	entries []Route
}

// DefaultRoutes parses the embedded table.
func DefaultRoutes() (*Routes, error) {
	return ParseRoutes(defaultRoutes)
}

// ParseRoutes reads a YAML route table.
func ParseRoutes(data []byte) (*Routes, error) {
	var doc struct {
		Routes []Route `yaml:"routes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gate: parsing routes: %w", err)
	}
	for i, r := range doc.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("gate: route %d: path %q must start with /", i, r.Path)
		}
		if r.Public && (r.RequirePaid || r.RequireAdmin) {
			return nil, fmt.Errorf("gate: route %s: public routes cannot carry requirements", r.Path)
		}
	}
	return &Routes{entries: doc.Routes}, nil
}

// All returns a copy of the table.
func (rs *Routes) All() []Route {
	out := make([]Route, len(rs.entries))
	copy(out, rs.entries)
	return out
}

// Match finds the route for a request path and extracts {param} segments.
func (rs *Routes) Match(path string) (Route, map[string]string, bool) {
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	for _, r := range rs.entries {
		if params, ok := matchPattern(r.Path, path); ok {
			return r, params, true
		}
	}
	return Route{}, nil, false
}

// matchPattern supports literal segments, {name} for one segment and a
// trailing * for any non-empty remainder.
func matchPattern(pattern, path string) (map[string]string, bool) {
	if pattern == path {
		return nil, true
	}

	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")

	var params map[string]string
	for i, seg := range ps {
		if seg == "*" && i == len(ps)-1 {
			return params, len(xs) > i && xs[i] != ""
		}
		if i >= len(xs) {
			return nil, false
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if xs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:len(seg)-1]] = xs[i]
			continue
		}
		if seg != xs[i] {
			return nil, false
		}
	}
	return params, len(ps) == len(xs)
}
