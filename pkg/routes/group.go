package routes

import "net/http"

// Group organizes routes under a common prefix. Children inherit the
// accumulated prefix of their parents.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		group.register(mux, "")
	}
}

// Patterns lists every registered pattern in declaration order.
func Patterns(groups ...Group) []string {
	var out []string
	for _, g := range groups {
		g.walk("", func(prefix string, r Route) {
			out = append(out, r.pattern(prefix))
		})
	}
	return out
}

func (g Group) register(mux *http.ServeMux, parent string) {
	g.walk(parent, func(prefix string, r Route) {
		mux.HandleFunc(r.pattern(prefix), r.Handler)
	})
}

func (g Group) walk(parent string, fn func(prefix string, r Route)) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		fn(prefix, r)
	}
	for _, child := range g.Children {
		child.walk(prefix, fn)
	}
}
