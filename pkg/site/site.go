// Package site collects the static bundle the renderer loads and describes
// each file as a storage object.
package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptyBundle is returned when a scan selects no files.
var ErrEmptyBundle = errors.New("site bundle has no files")

// File is one bundle file to upload.
type File struct {
	// Key is the slash-separated path relative to the bundle root.
	Key string `json:"key"`

	// Path is the local filesystem path.
	Path string `json:"path"`

	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Options selects which files of the bundle directory are uploaded.
type Options struct {
	Include       []string
	Exclude       []string
	IncludeHidden bool
}

// Scan walks root and returns the selected files sorted by key.
func Scan(root string, opts Options) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("site path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("site path %s: not a directory", root)
	}

	m, err := NewMatcher(opts.Include, opts.Exclude, opts.IncludeHidden)
	if err != nil {
		return nil, err
	}

	var files []File
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !m.Match(key) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{
			Key:         key,
			Path:        p,
			Size:        fi.Size(),
			ContentType: ContentType(key),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan site %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, ErrEmptyBundle
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// ContentType infers the object content type from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	default:
		return "application/octet-stream"
	}
}

// TotalSize sums the sizes of files.
func TotalSize(files []File) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}

// RunBundleCommand runs the bundling step through the shell in dir.
// An empty command is a no-op.
func RunBundleCommand(ctx context.Context, dir, command string, stdout, stderr io.Writer) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("bundle command %q: %w", command, err)
	}
	return nil
}
