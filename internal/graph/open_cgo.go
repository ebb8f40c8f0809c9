//go:build cgo

package graph

import "fmt"

// Open returns the Store for the named backend: "memory" (default) or
// "kuzu". An empty path opens Kuzu in memory.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemStore(), nil
	case BackendKuzu:
		if path == "" {
			return NewKuzuStore()
		}
		return NewKuzuFileStore(path)
	default:
		return nil, fmt.Errorf("graph: unknown backend %q", backend)
	}
}
