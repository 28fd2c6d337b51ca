//go:build wasm

package platform

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"
)

// WASM is the Platform implementation used by the in-browser build.
// FS is backed by an in-memory map (a real build would proxy to OPFS);
// Process() always returns (nil, false) since a WASM sandbox cannot
// spawn subprocesses, per spec.md §4.1.
type WASM struct {
	client HTTPClient
	fs     *memFS
	env    *memEnv
}

// NewWASM constructs the WASM platform. client is typically a
// fetch-backed http.RoundTripper-wrapped client supplied by the host.
func NewWASM(client HTTPClient) *WASM {
	return &WASM{
		client: client,
		fs:     newMemFS(),
		env:    &memEnv{vars: map[string]string{}},
	}
}

func (w *WASM) HTTP() HTTPClient { return w.client }
func (w *WASM) Env() Env         { return w.env }
func (w *WASM) FS() FS           { return w.fs }
func (w *WASM) Process() (ProcessSpawner, bool) { return nil, false }

type memEnv struct {
	mu   sync.RWMutex
	vars map[string]string
}

func (e *memEnv) Get(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[key]
	return v, ok
}

func (e *memEnv) Environ() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	return out
}

func (e *memEnv) Set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[key] = value
}

type memFile struct {
	data    []byte
	modTime time.Time
	isDir   bool
}

// memFS is an in-memory stand-in for a WASI/OPFS-backed filesystem,
// sufficient for the engine's own tests and for demonstrating the
// platform abstraction without a real WASM toolchain.
type memFS struct {
	mu    sync.RWMutex
	files map[string]*memFile
}

func newMemFS() *memFS {
	return &memFS{files: map[string]*memFile{"/": {isDir: true, modTime: time.Now()}}}
}

func (m *memFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok || f.isDir {
		return nil, fmt.Errorf("platform: %s: %w", path, fs.ErrNotExist)
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (m *memFS) WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[path] = &memFile{data: cp, modTime: time.Now()}
	return nil
}

func (m *memFS) MkdirAll(ctx context.Context, path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &memFile{isDir: true, modTime: time.Now()}
	return nil
}

func (m *memFS) ReadDir(ctx context.Context, path string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FileInfo
	for p, f := range m.files {
		if p == path {
			continue
		}
		out = append(out, FileInfo{Name: p, Size: int64(len(f.data)), IsDir: f.isDir, ModTime: f.modTime})
	}
	return out, nil
}

func (m *memFS) Stat(ctx context.Context, path string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return FileInfo{}, fmt.Errorf("platform: %s: %w", path, fs.ErrNotExist)
	}
	return FileInfo{Name: path, Size: int64(len(f.data)), IsDir: f.isDir, ModTime: f.modTime}, nil
}

func (m *memFS) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *memFS) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memFS) HomeDir() (string, error) { return "/home", nil }
