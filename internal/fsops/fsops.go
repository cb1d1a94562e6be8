// Package fsops implements the workspace-confined file operations.
//
// Every operation resolves its relative path through the workspace first;
// the filesystem is only touched after validation succeeds, so a rejected
// path can never cause a partial mutation. Failures are classified into
// the package's error taxonomy (see errors.go).
package fsops

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// MaxFileSizeBytes caps single-file reads and writes. 10 MB.
const MaxFileSizeBytes = 10 << 20

// Entry is a single directory listing item.
type Entry struct {
	Name string `json:"name"`           // path relative to the listed directory
	Kind string `json:"kind"`           // "file" or "directory"
	Size int64  `json:"size,omitempty"` // bytes, files only
}

// Resolver validates a relative path and returns its confined absolute form.
// Satisfied by *workspace.Workspace.
type Resolver interface {
	Resolve(relative string) (string, error)
}

// FS performs file operations confined to a workspace.
type FS struct {
	resolver Resolver
	logger   *slog.Logger
}

// New creates an FS bound to the given path resolver.
func New(resolver Resolver, logger *slog.Logger) *FS {
	return &FS{resolver: resolver, logger: logger}
}

// Create writes a new file and returns the byte count written.
// Fails with AlreadyExists when the target exists — creation never silently
// overwrites; use Update for that. Parent directories are created as needed.
func (f *FS) Create(relative string, content []byte) (int, error) {
	const op = "create"
	resolved, err := f.resolver.Resolve(relative)
	if err != nil {
		return 0, Classify(op, relative, err)
	}
	if len(content) > MaxFileSizeBytes {
		return 0, Failf(KindInvalidArgument, op, relative, "content size %d exceeds limit %d bytes", len(content), MaxFileSizeBytes)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0750); err != nil {
		return 0, Classify(op, relative, err)
	}

	// O_EXCL makes the existence check and the create atomic.
	file, err := os.OpenFile(resolved, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		if os.IsExist(err) {
			return 0, Failf(KindAlreadyExists, op, relative, "file already exists: %s", relative)
		}
		return 0, Classify(op, relative, err)
	}
	defer file.Close()

	n, err := file.Write(content)
	if err != nil {
		return n, Classify(op, relative, err)
	}

	f.logger.Info("file created", slog.String("path", relative), slog.Int("bytes", n))
	return n, nil
}

// Read returns the full contents of a file.
// Fails with NotFound when absent and NotAFile when the target is a directory.
func (f *FS) Read(relative string) ([]byte, error) {
	const op = "read"
	resolved, err := f.resolver.Resolve(relative)
	if err != nil {
		return nil, Classify(op, relative, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Failf(KindNotFound, op, relative, "file not found: %s", relative)
		}
		return nil, Classify(op, relative, err)
	}
	if info.IsDir() {
		return nil, Failf(KindNotAFile, op, relative, "%s is a directory, not a file", relative)
	}
	if info.Size() > MaxFileSizeBytes {
		return nil, Failf(KindInvalidArgument, op, relative, "file size %d exceeds limit %d bytes", info.Size(), MaxFileSizeBytes)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, Classify(op, relative, err)
	}
	return data, nil
}

// Update overwrites an existing file's full contents and returns the byte
// count written. Fails with NotFound when absent — update never creates.
func (f *FS) Update(relative string, content []byte) (int, error) {
	const op = "update"
	resolved, err := f.resolver.Resolve(relative)
	if err != nil {
		return 0, Classify(op, relative, err)
	}
	if len(content) > MaxFileSizeBytes {
		return 0, Failf(KindInvalidArgument, op, relative, "content size %d exceeds limit %d bytes", len(content), MaxFileSizeBytes)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, Failf(KindNotFound, op, relative, "file not found: %s", relative)
		}
		return 0, Classify(op, relative, err)
	}
	if info.IsDir() {
		return 0, Failf(KindNotAFile, op, relative, "%s is a directory, not a file", relative)
	}

	if err := os.WriteFile(resolved, content, 0640); err != nil {
		return 0, Classify(op, relative, err)
	}

	f.logger.Info("file updated", slog.String("path", relative), slog.Int("bytes", len(content)))
	return len(content), nil
}

// Delete removes a single file. Fails with NotFound when absent and with
// NotAFile when the target is a directory — directory removal is a distinct
// operation (DeleteDir) and is never implicit.
func (f *FS) Delete(relative string) error {
	const op = "delete"
	resolved, err := f.resolver.Resolve(relative)
	if err != nil {
		return Classify(op, relative, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Failf(KindNotFound, op, relative, "file not found: %s", relative)
		}
		return Classify(op, relative, err)
	}
	if info.IsDir() {
		return Failf(KindNotAFile, op, relative, "%s is a directory, use delete_directory", relative)
	}

	if err := os.Remove(resolved); err != nil {
		return Classify(op, relative, err)
	}

	f.logger.Info("file deleted", slog.String("path", relative))
	return nil
}

// DeleteDir removes a directory. A non-empty directory is only removed when
// recursive is set; without it the operation fails rather than guessing.
// Deleting the workspace root itself is rejected.
func (f *FS) DeleteDir(relative string, recursive bool) error {
	const op = "delete_directory"
	resolved, err := f.resolver.Resolve(relative)
	if err != nil {
		return Classify(op, relative, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Failf(KindNotFound, op, relative, "directory not found: %s", relative)
		}
		return Classify(op, relative, err)
	}
	if !info.IsDir() {
		return Failf(KindNotADirectory, op, relative, "%s is not a directory", relative)
	}
	if root, rerr := f.resolver.Resolve("."); rerr == nil && root == resolved {
		return Failf(KindInvalidArgument, op, relative, "refusing to delete the workspace root")
	}

	if recursive {
		if err := os.RemoveAll(resolved); err != nil {
			return Classify(op, relative, err)
		}
	} else {
		if err := os.Remove(resolved); err != nil {
			// Typically ENOTEMPTY; surfaced as a classified I/O failure.
			return &Error{Kind: KindUnexpectedIO, Op: op, Path: relative,
				Msg: fmt.Sprintf("directory not empty (pass recursive to remove): %s", relative), Err: err}
		}
	}

	f.logger.Info("directory deleted", slog.String("path", relative), slog.Bool("recursive", recursive))
	return nil
}

// List returns the entries of a directory, sorted by name, directories
// first. Fails with NotFound for a missing directory and NotADirectory
// when the path points at a file.
func (f *FS) List(relative string) ([]Entry, error) {
	const op = "list"
	resolved, err := f.resolver.Resolve(relative)
	if err != nil {
		return nil, Classify(op, relative, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Failf(KindNotFound, op, relative, "directory not found: %s", relative)
		}
		return nil, Classify(op, relative, err)
	}
	if !info.IsDir() {
		return nil, Failf(KindNotADirectory, op, relative, "%s is not a directory", relative)
	}

	dirents, err := os.ReadDir(resolved)
	if err != nil {
		return nil, Classify(op, relative, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		e := Entry{Name: d.Name(), Kind: "file"}
		if d.IsDir() {
			e.Kind = "directory"
		} else if fi, err := d.Info(); err == nil {
			e.Size = fi.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == "directory"
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// MakeDir creates a directory, including intermediate directories.
// Succeeds idempotently when the directory already exists, matching the
// ephemeral-workspace model where callers re-create structure freely.
func (f *FS) MakeDir(relative string) error {
	const op = "create_directory"
	resolved, err := f.resolver.Resolve(relative)
	if err != nil {
		return Classify(op, relative, err)
	}

	if info, err := os.Stat(resolved); err == nil && !info.IsDir() {
		return Failf(KindNotADirectory, op, relative, "%s exists and is not a directory", relative)
	}

	if err := os.MkdirAll(resolved, 0750); err != nil {
		return Classify(op, relative, err)
	}

	f.logger.Info("directory created", slog.String("path", relative))
	return nil
}
