package db

// DB defines an interface for key/value retrieval and storage.
type DB interface {
	// Set stores the key/value pair in the database.
	Set([]byte, []byte) error
	// Get retrieves the value for the given key, or nil if it is absent.
	Get([]byte) ([]byte, error)
	// Count returns the number of stored keys.
	Count() (int, error)
	// Iterate calls fn for every pair in ascending key order until fn
	// returns false.
	Iterate(fn func(key, val []byte) bool) error
	// Close closes the database connection.
	Close() error
}
