// Package spool manages the transient directory that holds downloaded
// documents while they are analyzed.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// Dir is a spool directory. Artifacts are named by the ID generator so
// concurrent downloads never collide.
type Dir struct {
	root string
	ids  harvest.IDGenerator
}

// New prepares root for use, creating it when missing.
func New(root string, ids harvest.IDGenerator) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create spool directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat spool directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("spool path %q is not a directory", root)
	}
	return &Dir{root: filepath.Clean(root), ids: ids}, nil
}

// Root returns the spool directory.
func (d *Dir) Root() string {
	return d.root
}

// Put writes data under a fresh name ending in ext.
func (d *Dir) Put(data []byte, ext string) (harvest.Artifact, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return harvest.Artifact{}, fmt.Errorf("name artifact: %w", err)
	}
	name := id + sanitizeExt(ext)
	path := filepath.Join(d.root, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return harvest.Artifact{}, fmt.Errorf("write artifact: %w", err)
	}
	return harvest.Artifact{Name: name, Path: path, Size: int64(len(data))}, nil
}

// Read returns the content of an artifact in this spool.
func (d *Dir) Read(a harvest.Artifact) ([]byte, error) {
	path, err := d.resolve(a)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path confined to the spool
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// Remove deletes an artifact. Removing a missing artifact is not an error.
func (d *Dir) Remove(a harvest.Artifact) error {
	path, err := d.resolve(a)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// Entries lists the names currently in the spool.
func (d *Dir) Entries() ([]string, error) {
	dirEntries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list spool: %w", err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (d *Dir) resolve(a harvest.Artifact) (string, error) {
	if strings.TrimSpace(a.Name) == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	path := filepath.Clean(filepath.Join(d.root, a.Name))
	if !strings.HasPrefix(path, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return path, nil
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
