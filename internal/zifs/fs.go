// Package zifs abstracts the filesystem the Context exposes to operators and
// the version store: a local-disk implementation by default, and an
// optional S3-backed implementation for engines that persist version-store
// files and pipeline artifacts to object storage.
package zifs

import (
	"context"
)

// Filesystem is the minimal read/write/atomic-rename surface Zi's version
// store and I/O boundary collaborators need.
type Filesystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	// WriteFileAtomic writes via a temp object/file and renames over the
	// target, matching the version store's atomic-save contract.
	WriteFileAtomic(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	MkdirAll(ctx context.Context, path string) error
}

// Reader/Writer style streaming is intentionally omitted: version-store
// files and pipeline configs are small, whole-file JSON documents, so a
// byte-slice API keeps both backends simple.
