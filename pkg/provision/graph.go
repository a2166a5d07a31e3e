package provision

import (
	"errors"
	"fmt"
	"strings"
)

// Graph errors.
var (
	ErrCycle          = errors.New("dependency cycle")
	ErrUnknownDep     = errors.New("unknown dependency")
	ErrDuplicateID    = errors.New("duplicate resource id")
	ErrSelfDependency = errors.New("resource depends on itself")
)

// GraphError reports an invalid resource graph.
type GraphError struct {
	Resource string
	Path     []string
	Err      error
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("resource %s: %v: %s", e.Resource, e.Err, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("resource %s: %v", e.Resource, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *GraphError) Unwrap() error {
	return e.Err
}

// order returns resources sorted so every resource follows its
// dependencies. Among independent resources declaration order is kept.
func order(resources []Resource) ([]Resource, error) {
	index := make(map[string]int, len(resources))
	for i, r := range resources {
		if _, dup := index[r.ID]; dup {
			return nil, &GraphError{Resource: r.ID, Err: ErrDuplicateID}
		}
		index[r.ID] = i
	}
	for _, r := range resources {
		for _, dep := range r.DependsOn {
			if dep == r.ID {
				return nil, &GraphError{Resource: r.ID, Err: ErrSelfDependency}
			}
			if _, ok := index[dep]; !ok {
				return nil, &GraphError{Resource: r.ID, Path: []string{r.ID, dep}, Err: ErrUnknownDep}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(resources))
	sorted := make([]Resource, 0, len(resources))
	var stack []string

	var visit func(i int) error
	visit = func(i int) error {
		r := resources[i]
		switch state[i] {
		case done:
			return nil
		case visiting:
			start := 0
			for k, id := range stack {
				if id == r.ID {
					start = k
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), r.ID)
			return &GraphError{Resource: r.ID, Path: path, Err: ErrCycle}
		}

		state[i] = visiting
		stack = append(stack, r.ID)
		for _, dep := range r.DependsOn {
			if err := visit(index[dep]); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		sorted = append(sorted, r)
		return nil
	}

	for i := range resources {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// waves groups ordered resources by dependency depth. Resources in one wave
// do not depend on each other.
func waves(ordered []Resource) [][]Resource {
	depth := make(map[string]int, len(ordered))
	var out [][]Resource
	for _, r := range ordered {
		d := 0
		for _, dep := range r.DependsOn {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[r.ID] = d
		for len(out) <= d {
			out = append(out, nil)
		}
		out[d] = append(out[d], r)
	}
	return out
}
