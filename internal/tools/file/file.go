// Package file implements the workspace file-management tools.
//
// Each tool is a thin parameter-mapping layer over fsops: parameters are
// validated for shape here, while path confinement and the error taxonomy
// are enforced by the operations layer underneath.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkaninda/kazi/internal/fsops"
	"github.com/jkaninda/kazi/internal/tools"
)

// requireString extracts a required non-empty string param.
func requireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("parameter %s must not be empty", key)
	}
	return s, nil
}

// stringParam extracts a required string param that may be empty.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	return s, nil
}

func optionalBool(params map[string]any, key string) bool {
	v, ok := params[key].(bool)
	return ok && v
}

func pathSchema(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// ---- CreateTool ----

// CreateTool creates new files. Existing files are never overwritten.
type CreateTool struct {
	fs     *fsops.FS
	logger *slog.Logger
}

func NewCreateTool(fs *fsops.FS, logger *slog.Logger) *CreateTool {
	return &CreateTool{fs: fs, logger: logger}
}

func (t *CreateTool) Name() string { return "create_file" }
func (t *CreateTool) Description() string {
	return "Create a new file in the workspace with the given content. Fails if the file already exists."
}
func (t *CreateTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    pathSchema("Workspace-relative path of the file to create"),
			"content": map[string]any{"type": "string", "description": "Content to write to the file"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *CreateTool) Validate(params map[string]any) error {
	if _, err := requireString(params, "path"); err != nil {
		return err
	}
	_, err := stringParam(params, "content")
	return err
}

func (t *CreateTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := requireString(params, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringParam(params, "content")
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "create_file executing", slog.String("path", path))

	n, err := t.fs.Create(path, []byte(content))
	if err != nil {
		return nil, err
	}
	return &tools.Result{
		Output:  fmt.Sprintf("created %s (%d bytes)", path, n),
		Success: true,
		Metadata: map[string]any{
			"path":       path,
			"size_bytes": n,
		},
	}, nil
}

// ---- ReadTool ----

// ReadTool returns file contents.
type ReadTool struct {
	fs     *fsops.FS
	logger *slog.Logger
}

func NewReadTool(fs *fsops.FS, logger *slog.Logger) *ReadTool {
	return &ReadTool{fs: fs, logger: logger}
}

func (t *ReadTool) Name() string { return "read_file" }
func (t *ReadTool) Description() string {
	return "Read the contents of a file in the workspace."
}
func (t *ReadTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": pathSchema("Workspace-relative path of the file to read"),
		},
		"required": []string{"path"},
	}
}

func (t *ReadTool) Validate(params map[string]any) error {
	_, err := requireString(params, "path")
	return err
}

func (t *ReadTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := requireString(params, "path")
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "read_file executing", slog.String("path", path))

	data, err := t.fs.Read(path)
	if err != nil {
		return nil, err
	}
	return &tools.Result{
		Output:  tools.TruncateOutput(string(data), tools.MaxOutputBytes),
		Success: true,
		Metadata: map[string]any{
			"path":       path,
			"size_bytes": len(data),
		},
	}, nil
}

// ---- UpdateTool ----

// UpdateTool replaces the contents of an existing file.
type UpdateTool struct {
	fs     *fsops.FS
	logger *slog.Logger
}

func NewUpdateTool(fs *fsops.FS, logger *slog.Logger) *UpdateTool {
	return &UpdateTool{fs: fs, logger: logger}
}

func (t *UpdateTool) Name() string { return "update_file" }
func (t *UpdateTool) Description() string {
	return "Replace the contents of an existing workspace file. Fails if the file does not exist."
}
func (t *UpdateTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    pathSchema("Workspace-relative path of the file to update"),
			"content": map[string]any{"type": "string", "description": "New content for the file"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *UpdateTool) Validate(params map[string]any) error {
	if _, err := requireString(params, "path"); err != nil {
		return err
	}
	_, err := stringParam(params, "content")
	return err
}

func (t *UpdateTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := requireString(params, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringParam(params, "content")
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "update_file executing", slog.String("path", path))

	n, err := t.fs.Update(path, []byte(content))
	if err != nil {
		return nil, err
	}
	return &tools.Result{
		Output:  fmt.Sprintf("updated %s (%d bytes)", path, n),
		Success: true,
		Metadata: map[string]any{
			"path":       path,
			"size_bytes": n,
		},
	}, nil
}

// ---- DeleteTool ----

// DeleteTool removes single files. Directories need delete_directory.
type DeleteTool struct {
	fs     *fsops.FS
	logger *slog.Logger
}

func NewDeleteTool(fs *fsops.FS, logger *slog.Logger) *DeleteTool {
	return &DeleteTool{fs: fs, logger: logger}
}

func (t *DeleteTool) Name() string { return "delete_file" }
func (t *DeleteTool) Description() string {
	return "Delete a file from the workspace."
}
func (t *DeleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": pathSchema("Workspace-relative path of the file to delete"),
		},
		"required": []string{"path"},
	}
}

func (t *DeleteTool) Validate(params map[string]any) error {
	_, err := requireString(params, "path")
	return err
}

func (t *DeleteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := requireString(params, "path")
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "delete_file executing", slog.String("path", path))

	if err := t.fs.Delete(path); err != nil {
		return nil, err
	}
	return &tools.Result{
		Output:   fmt.Sprintf("deleted %s", path),
		Success:  true,
		Metadata: map[string]any{"path": path},
	}, nil
}

// ---- DeleteDirTool ----

// DeleteDirTool removes directories, optionally recursively.
type DeleteDirTool struct {
	fs     *fsops.FS
	logger *slog.Logger
}

func NewDeleteDirTool(fs *fsops.FS, logger *slog.Logger) *DeleteDirTool {
	return &DeleteDirTool{fs: fs, logger: logger}
}

func (t *DeleteDirTool) Name() string { return "delete_directory" }
func (t *DeleteDirTool) Description() string {
	return "Delete a directory from the workspace. Non-empty directories require recursive=true."
}
func (t *DeleteDirTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":      pathSchema("Workspace-relative path of the directory to delete"),
			"recursive": map[string]any{"type": "boolean", "description": "Also remove the directory's contents"},
		},
		"required": []string{"path"},
	}
}

func (t *DeleteDirTool) Validate(params map[string]any) error {
	if _, err := requireString(params, "path"); err != nil {
		return err
	}
	if v, ok := params["recursive"]; ok {
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("parameter recursive must be a boolean, got %T", v)
		}
	}
	return nil
}

func (t *DeleteDirTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := requireString(params, "path")
	if err != nil {
		return nil, err
	}
	recursive := optionalBool(params, "recursive")

	t.logger.InfoContext(ctx, "delete_directory executing",
		slog.String("path", path),
		slog.Bool("recursive", recursive),
	)

	if err := t.fs.DeleteDir(path, recursive); err != nil {
		return nil, err
	}
	return &tools.Result{
		Output:  fmt.Sprintf("deleted directory %s", path),
		Success: true,
		Metadata: map[string]any{
			"path":      path,
			"recursive": recursive,
		},
	}, nil
}

// ---- ListTool ----

// ListTool lists directory contents. The directory parameter defaults to
// the workspace root.
type ListTool struct {
	fs     *fsops.FS
	logger *slog.Logger
}

func NewListTool(fs *fsops.FS, logger *slog.Logger) *ListTool {
	return &ListTool{fs: fs, logger: logger}
}

func (t *ListTool) Name() string { return "list_files" }
func (t *ListTool) Description() string {
	return "List the files and directories at a workspace path. Defaults to the workspace root."
}
func (t *ListTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"directory": pathSchema("Workspace-relative directory to list. Defaults to the root"),
		},
	}
}

func (t *ListTool) Validate(params map[string]any) error {
	if v, ok := params["directory"]; ok {
		if _, ok := v.(string); !ok {
			return fmt.Errorf("parameter directory must be a string, got %T", v)
		}
	}
	return nil
}

func (t *ListTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	dir := "."
	if v, ok := params["directory"].(string); ok && v != "" {
		dir = v
	}

	t.logger.InfoContext(ctx, "list_files executing", slog.String("directory", dir))

	entries, err := t.fs.List(dir)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, e := range entries {
		if e.Kind == "directory" {
			fmt.Fprintf(&b, "%s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "%s %d\n", e.Name, e.Size)
		}
	}

	return &tools.Result{
		Output:  tools.TruncateOutput(b.String(), tools.MaxOutputBytes),
		Success: true,
		Metadata: map[string]any{
			"directory": dir,
			"count":     len(entries),
			"entries":   entries,
		},
	}, nil
}

// ---- MkdirTool ----

// MkdirTool creates directories, including intermediates. Already-existing
// directories succeed.
type MkdirTool struct {
	fs     *fsops.FS
	logger *slog.Logger
}

func NewMkdirTool(fs *fsops.FS, logger *slog.Logger) *MkdirTool {
	return &MkdirTool{fs: fs, logger: logger}
}

func (t *MkdirTool) Name() string { return "create_directory" }
func (t *MkdirTool) Description() string {
	return "Create a directory in the workspace, including any missing parents."
}
func (t *MkdirTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": pathSchema("Workspace-relative path of the directory to create"),
		},
		"required": []string{"path"},
	}
}

func (t *MkdirTool) Validate(params map[string]any) error {
	_, err := requireString(params, "path")
	return err
}

func (t *MkdirTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := requireString(params, "path")
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "create_directory executing", slog.String("path", path))

	if err := t.fs.MakeDir(path); err != nil {
		return nil, err
	}
	return &tools.Result{
		Output:   fmt.Sprintf("created directory %s", path),
		Success:  true,
		Metadata: map[string]any{"path": path},
	}, nil
}
