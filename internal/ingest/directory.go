package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/doctext/constants"
)

// Candidate is a file selected for extraction.
type Candidate struct {
	Path    string
	MIME    string
	HashHex string
}

type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Deduplicated uint32
	Failed       uint32
}

// ScanOptions filters a directory walk. An empty IncludeExts selects every extension in
// constants.AllowedExtensions.
type ScanOptions struct {
	IncludeExts []string
	SkipHidden  bool
	Dedupe      bool // skip files whose content hash was already seen in this walk
}

// ScanDirectory walks root and calls visit for each matching file. Walk errors and hashing
// failures are counted and skipped; an error from visit stops the walk.
func ScanDirectory(ctx context.Context, root string, opts ScanOptions, visit func(Candidate) error) (DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return stats, errors.New("root path is required")
	}
	exts := extSet(opts.IncludeExts)
	seen := map[string]struct{}{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			return nil
		}
		if opts.SkipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := exts[ext]; !ok {
			return nil
		}
		stats.Matched++

		c := Candidate{Path: path, MIME: constants.MimeForExt(ext)}
		if opts.Dedupe {
			sum, err := hashFile(path)
			if err != nil {
				stats.Failed++
				return nil
			}
			if _, dup := seen[sum]; dup {
				stats.Deduplicated++
				return nil
			}
			seen[sum] = struct{}{}
			c.HashHex = sum
		}
		return visit(c)
	})
	if err != nil {
		return stats, fmt.Errorf("walk: %w", err)
	}
	return stats, nil
}

// AllowedExt reports whether the extension is one batch mode picks up.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func extSet(include []string) map[string]struct{} {
	exts := map[string]struct{}{}
	for _, e := range include {
		if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
			exts[e] = struct{}{}
		}
	}
	if len(exts) == 0 {
		for e := range constants.AllowedExtensions {
			exts[e] = struct{}{}
		}
	}
	return exts
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
