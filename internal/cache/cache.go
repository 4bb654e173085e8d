package cache

import (
	"fmt"
	"path"

	"github.com/jchantrell/nxpkg/internal/storage"
)

// DefaultRoot is where exported application data lives on the card
const DefaultRoot = "/switch/nxpkg/cache"

// Cache builds paths for exported per-application data and writes it through a
// storage backend
type Cache struct {
	root string
}

// New creates a cache rooted at root, or DefaultRoot when root is empty
func New(root string) *Cache {
	if root == "" {
		root = DefaultRoot
	}
	return &Cache{root: path.Clean(root)}
}

// Root returns the cache root directory
func (c *Cache) Root() string {
	return c.root
}

// ApplicationDir returns the directory holding exported application data
func (c *Cache) ApplicationDir() string {
	return path.Join(c.root, "app")
}

// ApplicationIconPath returns the path of an application's exported icon
func (c *Cache) ApplicationIconPath(appID uint64) string {
	return path.Join(c.ApplicationDir(), fmt.Sprintf("%016X.jpg", appID))
}

// ApplicationNacpPath returns the path of an application's exported control block
func (c *Cache) ApplicationNacpPath(appID uint64) string {
	return path.Join(c.ApplicationDir(), fmt.Sprintf("%016X.nacp", appID))
}

// EnsureDir creates the application directory on the backend
func (c *Cache) EnsureDir(b storage.Backend) error {
	return b.CreateDirectory(c.ApplicationDir())
}

// FileExists checks if a non-empty exported file is present
func (c *Cache) FileExists(b storage.Backend, p string) bool {
	return b.IsFile(p) && b.FileSize(p) > 0
}

// Export replaces the file at p with data
func (c *Cache) Export(b storage.Backend, p string, data []byte) error {
	if err := b.DeleteFile(p); err != nil {
		return fmt.Errorf("removing stale %s: %w", p, err)
	}
	if err := b.CreateFile(p); err != nil {
		return fmt.Errorf("creating %s: %w", p, err)
	}
	if _, err := b.WriteFile(p, data); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

// Clear removes every exported application file
func (c *Cache) Clear(b storage.Backend) error {
	return b.DeleteDirectory(c.ApplicationDir())
}
