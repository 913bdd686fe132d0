package cache

import "classgate/internal/classify"

// Cache defines the interface for fingerprint-keyed result caching
// This interface allows for different implementations (in-memory, Redis, etc.)
type Cache interface {
	// Get retrieves a cached result by fingerprint
	// Returns the result and true if found, a zero result and false otherwise
	Get(fingerprint string) (classify.Result, bool)

	// Set stores a result under the given fingerprint
	Set(fingerprint string, result classify.Result)

	// Close releases any resources held by the cache
	Close()
}
