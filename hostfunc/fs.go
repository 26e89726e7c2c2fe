package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// MountMode is the access an example has to a mounted directory.
type MountMode int

const (
	// MountReadOnly allows fs_read, fs_list, fs_exists and fs_stat.
	MountReadOnly MountMode = iota
	// MountReadWrite also allows overwriting and removing existing entries.
	MountReadWrite
	// MountReadWriteCreate also allows creating files and directories.
	MountReadWriteCreate
)

var mountModes = map[string]MountMode{
	"ro":  MountReadOnly,
	"rw":  MountReadWrite,
	"rwc": MountReadWriteCreate,
}

// ParseMountMode maps "ro", "rw" and "rwc" to a MountMode. An empty string
// is read-only.
func ParseMountMode(s string) (MountMode, error) {
	if s == "" {
		return MountReadOnly, nil
	}
	m, ok := mountModes[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown mount mode %q (want ro, rw or rwc)", s)
	}
	return m, nil
}

// Mount exposes the host directory Dir to examples under the virtual
// path Path, e.g. "/fixtures".
type Mount struct {
	Path string
	Dir  string
	Mode MountMode
}

// FS gives examples access to fixture files through explicit mounts.
// Paths outside every mount do not exist as far as examples can tell.
type FS struct {
	mounts []Mount
}

// NewFS normalizes mounts. Longer virtual paths take precedence, so a
// read-only "/data" can hold a writable "/data/out".
func NewFS(mounts ...Mount) (*FS, error) {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		dir, err := filepath.Abs(m.Dir)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", m.Path, err)
		}
		normalized = append(normalized, Mount{
			Path: path.Clean("/" + strings.Trim(m.Path, "/")),
			Dir:  dir,
			Mode: m.Mode,
		})
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i].Path) > len(normalized[j].Path)
	})
	return &FS{mounts: normalized}, nil
}

// Register installs the fs_* functions on r.
func (f *FS) Register(r *Registry) {
	r.Register("fs_read", f.Read)
	r.Register("fs_write", f.Write)
	r.Register("fs_list", f.List)
	r.Register("fs_exists", f.Exists)
	r.Register("fs_mkdir", f.Mkdir)
	r.Register("fs_remove", f.Remove)
	r.Register("fs_stat", f.Stat)
}

// resolve maps a virtual path to its host path and the mount holding it.
func (f *FS) resolve(virtual string) (string, *Mount, error) {
	vp := path.Clean("/" + virtual)
	for i := range f.mounts {
		m := &f.mounts[i]
		if vp != m.Path && m.Path != "/" && !strings.HasPrefix(vp, m.Path+"/") {
			continue
		}
		rel := strings.TrimPrefix(vp, m.Path)
		host := filepath.Join(m.Dir, filepath.FromSlash(rel))
		if r, err := filepath.Rel(m.Dir, host); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return "", nil, fmt.Errorf("%s: outside mount %s", virtual, m.Path)
		}
		return host, m, nil
	}
	return "", nil, fmt.Errorf("%s: not in any mount", virtual)
}

func pathArg(args map[string]any) (string, error) {
	p, ok := args["path"].(string)
	if !ok || p == "" {
		return "", errors.New("path required")
	}
	return p, nil
}

// Read returns the contents of a file.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	host, _, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return nil, hostError(p, err)
	}
	return string(data), nil
}

// Write replaces the contents of a file. New files need a MountReadWriteCreate
// mount.
func (f *FS) Write(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, errors.New("content required")
	}
	host, m, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	if m.Mode == MountReadOnly {
		return nil, fmt.Errorf("%s: read-only mount", p)
	}
	if _, err := os.Stat(host); errors.Is(err, fs.ErrNotExist) && m.Mode != MountReadWriteCreate {
		return nil, fmt.Errorf("%s: mount does not allow creating files", p)
	}
	if err := os.WriteFile(host, []byte(content), 0o644); err != nil {
		return nil, hostError(p, err)
	}
	return "ok", nil
}

// List returns the entries of a directory sorted by name.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	host, _, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(host)
	if err != nil {
		return nil, hostError(p, err)
	}

	result := make([]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
		}
		result = append(result, item)
	}
	return result, nil
}

// Exists reports whether a path exists. Paths outside every mount do not.
func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	host, _, err := f.resolve(p)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(host)
	return err == nil, nil
}

// Mkdir creates a directory and any missing parents.
func (f *FS) Mkdir(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	host, m, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	if m.Mode != MountReadWriteCreate {
		return nil, fmt.Errorf("%s: mount does not allow creating directories", p)
	}
	if err := os.MkdirAll(host, 0o755); err != nil {
		return nil, hostError(p, err)
	}
	return "ok", nil
}

// Remove deletes a file or an empty directory.
func (f *FS) Remove(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	host, m, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	if m.Mode == MountReadOnly {
		return nil, fmt.Errorf("%s: read-only mount", p)
	}
	if host == m.Dir {
		return nil, fmt.Errorf("%s: cannot remove a mount point", p)
	}
	if err := os.Remove(host); err != nil {
		return nil, hostError(p, err)
	}
	return "ok", nil
}

// Stat describes a file or directory. mod_time is left out so examples
// print the same thing on every checkout.
func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	host, _, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(host)
	if err != nil {
		return nil, hostError(p, err)
	}
	return map[string]any{
		"name":   info.Name(),
		"size":   info.Size(),
		"is_dir": info.IsDir(),
	}, nil
}

// hostError reports err against the virtual path, hiding host directories.
func hostError(virtual string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: no such file or directory", virtual)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: permission denied", virtual)
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return fmt.Errorf("%s: %s", virtual, pe.Err)
	}
	return fmt.Errorf("%s: %w", virtual, err)
}
