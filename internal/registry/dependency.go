package registry

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Dependencies returns the registered selectors used as tags in the
// template of selector, excluding itself, in sorted order.
func (r *Registry) Dependencies(selector string) []string {
	def, ok := r.Get(selector)
	if !ok {
		return nil
	}
	deps := make(map[string]bool)
	for _, tag := range TemplateTags(def.Config.Template) {
		if tag == selector {
			continue
		}
		if _, exists := r.Get(tag); exists {
			deps[tag] = true
		}
	}
	return sortedKeys(deps)
}

// TemplateTags returns the distinct custom element names (tags containing
// a dash) appearing in a template.
func TemplateTags(template string) []string {
	seen := make(map[string]bool)
	z := html.NewTokenizer(strings.NewReader(template))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sortedKeys(seen)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if tag := string(name); strings.Contains(tag, "-") {
				seen[tag] = true
			}
		}
	}
}

// GetDependents returns the selectors whose templates use selector.
func (r *Registry) GetDependents(selector string) []string {
	var dependents []string
	for _, s := range r.Selectors() {
		for _, dep := range r.Dependencies(s) {
			if dep == selector {
				dependents = append(dependents, s)
				break
			}
		}
	}
	return dependents
}

// GetDependencyGraph returns the full dependency graph.
func (r *Registry) GetDependencyGraph() map[string][]string {
	graph := make(map[string][]string)
	for _, s := range r.Selectors() {
		graph[s] = r.Dependencies(s)
	}
	return graph
}

// DetectCircularDependencies returns every cycle found, each closed by
// repeating its first selector. Cyclic templates would nest forever when
// upgraded.
func (r *Registry) DetectCircularDependencies() [][]string {
	var cycles [][]string
	graph := r.GetDependencyGraph()

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, selector := range r.Selectors() {
		if !visited[selector] {
			if cycle := detectCycleDFS(selector, graph, visited, recStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}

	return cycles
}

func detectCycleDFS(selector string, graph map[string][]string, visited, recStack map[string]bool, path []string) []string {
	visited[selector] = true
	recStack[selector] = true
	path = append(path, selector)

	for _, dep := range graph[selector] {
		if !visited[dep] {
			if cycle := detectCycleDFS(dep, graph, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, p := range path {
				if p == dep {
					cycle := make([]string, len(path)-i+1)
					copy(cycle, path[i:])
					cycle[len(cycle)-1] = dep
					return cycle
				}
			}
		}
	}

	recStack[selector] = false
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
