//go:build !cgo

package graph

import "fmt"

// Open returns the Store for the named backend. Without cgo only the
// in-memory backend is available.
func Open(backend, _ string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemStore(), nil
	case BackendKuzu:
		return nil, fmt.Errorf("graph: backend %q requires a cgo build", backend)
	default:
		return nil, fmt.Errorf("graph: unknown backend %q", backend)
	}
}
