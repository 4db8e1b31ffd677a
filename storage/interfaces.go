package storage

// Backend moves raw document bytes between memory and durable storage.
// Implementations dispatch on the path they are given; the password is
// ignored by plain-file storage and required by sealed archives.
type Backend interface {
	// Load reads the document at path. For sealed archives the password
	// must decrypt the single entry; ErrPasswordRequired covers a missing
	// password, a wrong password, and a corrupt container alike.
	Load(path, password string) ([]byte, error)

	// Save writes data to path, replacing any existing document. Sealed
	// archives keep their internal entry name stable across re-saves.
	Save(path string, data []byte, password string) error
}

// IndexStore persists the id index as a whole. Load returns an empty map
// when nothing has been stored yet; Save replaces the stored mapping.
type IndexStore interface {
	// Load reads the full id-to-path mapping.
	Load() (map[string]string, error)

	// Save replaces the stored mapping with entries.
	Save(entries map[string]string) error

	// Close releases any resources held by the store.
	Close() error
}
