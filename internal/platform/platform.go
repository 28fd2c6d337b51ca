// Package platform abstracts filesystem, HTTP, environment, and
// subprocess access behind small capability interfaces, so the engine
// core can run unmodified against a native build or a WASM build.
// Grounded on spec.md §4.1's composition-over-supertraits rationale: the
// WASM platform has no process spawner, so Process() returns (nil,
// false) rather than forcing every implementation to satisfy a single
// fat interface.
package platform

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"time"
)

// HTTPClient is the capability surface the transport layer and tools
// need from an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FileInfo is the subset of os.FileInfo the FS capability exposes,
// independent of the concrete backend (real FS, WASI, in-memory map).
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
	Mode    fs.FileMode
}

// FS is the engine's filesystem capability. Every operation is async
// (returns through a context-respecting call) because a WASM backend
// may proxy to OPFS or a remote store.
type FS interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error
	MkdirAll(ctx context.Context, path string, perm fs.FileMode) error
	ReadDir(ctx context.Context, path string) ([]FileInfo, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
	Remove(ctx context.Context, path string) error
	HomeDir() (string, error)
}

// Env is the engine's environment-variable capability.
type Env interface {
	Get(key string) (string, bool)
	Environ() []string
}

// ProcessSpawner spawns a subprocess with an explicitly constructed
// environment (never the ambient os.Environ(), per spec.md §4.9 for
// delegation specifically, and as a conservative default everywhere
// else — callers that want the parent environment must say so via Env).
type ProcessSpawner interface {
	Start(ctx context.Context, name string, args []string, env []string, stdin io.Reader, stdout, stderr io.Writer) (Process, error)
}

// Process is a running subprocess handle.
type Process interface {
	Wait() error
	Kill() error
	Pid() int
}

// Platform bundles the four capability accessors. Process() returns
// (nil, false) on backends without subprocess support (WASM).
type Platform interface {
	HTTP() HTTPClient
	FS() FS
	Env() Env
	Process() (ProcessSpawner, bool)
}
