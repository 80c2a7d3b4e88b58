package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Namer hands out output paths inside one directory. A name already used in
// this run, or already present on disk, gets a "_1", "_2", ... suffix.
type Namer struct {
	dir string
	ext string

	mu   sync.Mutex
	used map[string]bool
}

// NewNamer creates a Namer for dir producing files with extension ext.
func NewNamer(dir, ext string) *Namer {
	return &Namer{dir: dir, ext: ext, used: make(map[string]bool)}
}

// Dir returns the output directory.
func (n *Namer) Dir() string { return n.dir }

// Reserve returns a free path for label and marks it used.
func (n *Namer) Reserve(label string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := SanitizeName(label, DefaultNameLength)
	name := base + n.ext
	for i := 1; n.taken(name); i++ {
		name = fmt.Sprintf("%s_%d%s", base, i, n.ext)
	}
	n.used[name] = true
	return filepath.Join(n.dir, name)
}

func (n *Namer) taken(name string) bool {
	if n.used[name] {
		return true
	}
	_, err := os.Lstat(filepath.Join(n.dir, name))
	return err == nil
}
