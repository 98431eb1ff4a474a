// Package storage owns physical file placement under a single root:
//
//	assets/{asset_id}/v{version}/{filename}
//	thumbnails/{asset_id}_v{version}.jpg
//
// Every path is a pure function of (asset_id, version, filename), so any
// component can reconstruct a location without consulting the database.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a relative path would resolve outside the
// storage root.
var ErrPathEscape = errors.New("path escapes storage root")

type Store struct {
	root string
}

// NewStore creates the storage tree under root if needed.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, d := range []string{abs, filepath.Join(abs, "assets"), filepath.Join(abs, "thumbnails"), filepath.Join(abs, "_tmp")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string { return s.root }

// TempDir is the staging area for in-flight uploads, inside the root but
// outside the canonical assets tree.
func (s *Store) TempDir() string { return filepath.Join(s.root, "_tmp") }

// VersionDir returns the canonical directory for one version.
func (s *Store) VersionDir(assetID string, version int) string {
	return filepath.Join(s.root, "assets", assetID, fmt.Sprintf("v%d", version))
}

// ThumbnailPath returns the canonical thumbnail location for one version.
func (s *Store) ThumbnailPath(assetID string, version int) string {
	return filepath.Join(s.root, "thumbnails", fmt.Sprintf("%s_v%d.jpg", assetID, version))
}

// PackagePath returns where a zip bundle of one version would live. The
// archive itself is built on demand from live file rows, never cached here.
func (s *Store) PackagePath(assetID string, version int) string {
	return filepath.Join(s.VersionDir(assetID, version), fmt.Sprintf("%s_v%d.zip", assetID, version))
}

// SaveUpload moves a staged temp file into its canonical location, creating
// directories as needed. A same-named destination is overwritten: the layout
// has no sub-version granularity, so the last write wins at the filesystem
// level. Returns the root-relative path (slash-separated) and the file size.
func (s *Store) SaveUpload(assetID string, version int, tempSource, filename string) (string, int64, error) {
	if filename == "" {
		filename = filepath.Base(tempSource)
	}
	// reject traversal in caller-supplied names before touching the tree
	if filepath.Base(filename) != filename || strings.Contains(filename, "..") {
		return "", 0, ErrPathEscape
	}
	dstDir := s.VersionDir(assetID, version)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", 0, err
	}
	dst := filepath.Join(dstDir, filename)
	if err := moveFile(tempSource, dst); err != nil {
		return "", 0, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return "", 0, err
	}
	rel, err := filepath.Rel(s.root, dst)
	if err != nil {
		return "", 0, err
	}
	return filepath.ToSlash(rel), info.Size(), nil
}

// AbsoluteFromRel resolves a stored relative path to an absolute one,
// rejecting anything that would escape the root.
func (s *Store) AbsoluteFromRel(relPath string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(relPath))
	abs = filepath.Clean(abs)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return abs, nil
}

// DeleteAssetStorage removes every stored file and thumbnail for an asset.
// Best-effort: missing paths and removal failures are not reported, the
// database stays authoritative for existence.
func (s *Store) DeleteAssetStorage(assetID string) {
	os.RemoveAll(filepath.Join(s.root, "assets", assetID))
	matches, err := filepath.Glob(filepath.Join(s.root, "thumbnails", assetID+"_*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		os.Remove(m)
	}
}

// DeleteVersionStorage removes one version directory and its thumbnail,
// best-effort.
func (s *Store) DeleteVersionStorage(assetID string, version int) {
	os.RemoveAll(s.VersionDir(assetID, version))
	os.Remove(s.ThumbnailPath(assetID, version))
}

// moveFile renames where possible and falls back to copy+remove across
// filesystems (temp dirs may be mounted separately).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
