// Package store is a graph.Store that lets callers annotate vertices after
// they have been added, which the workflow uses to track step status.
package store

import (
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// CustomStore is a graph.Store with mutable vertex attributes.
type CustomStore[K comparable, T any] interface {
	graph.Store[K, T]
	// SetAttribute sets one attribute of the vertex k.
	SetAttribute(k K, name, value string) error
	// Attribute returns one attribute of the vertex k.
	Attribute(k K, name string) (string, bool)
}

type node[T any] struct {
	value T
	props graph.VertexProperties
}

// MemoryStore keeps vertices and both edge directions in maps guarded by one
// lock.
type MemoryStore[K comparable, T any] struct {
	lock  sync.RWMutex
	nodes map[K]*node[T]
	out   map[K]map[K]graph.Edge[K] // source -> target
	in    map[K]map[K]graph.Edge[K] // target -> source
}

func NewMemoryStore[K comparable, T any]() CustomStore[K, T] {
	return &MemoryStore[K, T]{
		nodes: make(map[K]*node[T]),
		out:   make(map[K]map[K]graph.Edge[K]),
		in:    make(map[K]map[K]graph.Edge[K]),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.nodes[k]; ok {
		return graph.ErrVertexAlreadyExists
	}
	attrs := make(map[string]string, len(p.Attributes))
	for name, value := range p.Attributes {
		attrs[name] = value
	}
	p.Attributes = attrs
	s.nodes[k] = &node[T]{value: t, props: p}

	return nil
}

func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	keys := make([]K, 0, len(s.nodes))
	for k := range s.nodes {
		keys = append(keys, k)
	}

	return keys, nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.nodes), nil
}

// Vertex returns a copy of the vertex properties, attributes included.
func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	n, ok := s.nodes[k]
	if !ok {
		var zero T

		return zero, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	p := n.props
	p.Attributes = make(map[string]string, len(n.props.Attributes))
	for name, value := range n.props.Attributes {
		p.Attributes[name] = value
	}

	return n.value, p, nil
}

func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.nodes[k]; !ok {
		return graph.ErrVertexNotFound
	}
	if len(s.in[k]) > 0 || len(s.out[k]) > 0 {
		return graph.ErrVertexHasEdges
	}
	delete(s.in, k)
	delete(s.out, k)
	delete(s.nodes, k)

	return nil
}

func (s *MemoryStore[K, T]) SetAttribute(k K, name, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	n, ok := s.nodes[k]
	if !ok {
		return graph.ErrVertexNotFound
	}
	n.props.Attributes[name] = value

	return nil
}

func (s *MemoryStore[K, T]) Attribute(k K, name string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	n, ok := s.nodes[k]
	if !ok {
		return "", false
	}
	value, ok := n.props.Attributes[name]

	return value, ok
}

func (s *MemoryStore[K, T]) AddEdge(source, target K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	link(s.out, source, target, edge)
	link(s.in, target, source, edge)

	return nil
}

func link[K comparable](edges map[K]map[K]graph.Edge[K], from, to K, edge graph.Edge[K]) {
	if edges[from] == nil {
		edges[from] = make(map[K]graph.Edge[K])
	}
	edges[from][to] = edge
}

func (s *MemoryStore[K, T]) UpdateEdge(source, target K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.out[source][target]; !ok {
		return graph.ErrEdgeNotFound
	}
	s.out[source][target] = edge
	s.in[target][source] = edge

	return nil
}

func (s *MemoryStore[K, T]) RemoveEdge(source, target K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.in[target], source)
	delete(s.out[source], target)

	return nil
}

func (s *MemoryStore[K, T]) Edge(source, target K) (graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	edge, ok := s.out[source][target]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var res []graph.Edge[K]
	for _, targets := range s.out {
		for _, edge := range targets {
			res = append(res, edge)
		}
	}

	return res, nil
}

// CreatesCycle reports whether an edge from source to target would close a
// cycle, that is whether target is already an ancestor of source.
func (s *MemoryStore[K, T]) CreatesCycle(source, target K) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, k := range []K{source, target} {
		if _, ok := s.nodes[k]; !ok {
			return false, errors.Wrapf(graph.ErrVertexNotFound, "vertex %v", k)
		}
	}
	if source == target {
		return true, nil
	}

	stack := []K{source}
	visited := make(map[K]bool)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		if current == target {
			return true, nil
		}
		visited[current] = true
		for parent := range s.in[current] {
			stack = append(stack, parent)
		}
	}

	return false, nil
}

var _ CustomStore[string, string] = (*MemoryStore[string, string])(nil)
