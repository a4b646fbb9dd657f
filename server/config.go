package server

// Config is the HTTP server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// DBPath is the path to the SQLite run ledger.
	// Empty keeps the ledger in memory.
	DBPath string

	// BodyLimit caps request bodies in bytes. Media travels inline as data
	// URIs, so this is well above fiber's default. Zero uses DefaultBodyLimit.
	BodyLimit int
}

// DefaultBodyLimit is 32 MiB.
const DefaultBodyLimit = 32 << 20
