package processor

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
)

// GeneratedFile describes a file written through a Filer.
type GeneratedFile struct {
	// Path is the absolute path of the file.
	Path string
	// Package is the import path of the package the file belongs to.
	Package string
	// Origins describe the annotated elements the file was generated from.
	Origins []string
	Content []byte
}

// Filer creates generated source files. It chooses the output location for
// each package and records every file written along with the elements it was
// generated from.
type Filer struct {
	factory   OutputFactory
	outputDir string
	dirs      map[string]string
	files     []GeneratedFile
	paths     map[string]struct{}
}

func newFiler(factory OutputFactory, outputDir string) *Filer {
	return &Filer{
		factory:   factory,
		outputDir: outputDir,
		dirs:      map[string]string{},
		paths:     map[string]struct{}{},
	}
}

func (f *Filer) setPackages(pkgs []*Package) {
	for _, p := range pkgs {
		if p.Dir != "" {
			f.dirs[p.Path] = p.Dir
		}
	}
}

// OutputPath returns the path to which a file with the given name in the given
// package is written.
func (f *Filer) OutputPath(pkgPath, fileName string) (string, error) {
	if f.outputDir != "" {
		return filepath.Join(f.outputDir, filepath.FromSlash(pkgPath), fileName), nil
	}
	dir, ok := f.dirs[pkgPath]
	if !ok {
		return "", fmt.Errorf("no output directory known for package %s", pkgPath)
	}
	return filepath.Join(dir, fileName), nil
}

// CreateSource returns a writer for a new source file in the given package.
// The contents are written to the output when the writer is closed. Creating
// the same file twice in one run is an error.
func (f *Filer) CreateSource(pkgPath, fileName string, origins ...*AnnotatedElement) (io.WriteCloser, error) {
	path, err := f.OutputPath(pkgPath, fileName)
	if err != nil {
		return nil, err
	}
	if _, ok := f.paths[path]; ok {
		return nil, fmt.Errorf("file %s was already generated", path)
	}
	f.paths[path] = struct{}{}
	gf := GeneratedFile{Path: path, Package: pkgPath}
	for _, o := range origins {
		gf.Origins = append(gf.Origins, o.String())
	}
	return &sourceWriter{filer: f, file: gf}, nil
}

// Files returns all files written so far.
func (f *Filer) Files() []GeneratedFile {
	return append([]GeneratedFile(nil), f.files...)
}

func (f *Filer) overlay() map[string][]byte {
	if len(f.files) == 0 {
		return nil
	}
	o := make(map[string][]byte, len(f.files))
	for _, gf := range f.files {
		o[gf.Path] = gf.Content
	}
	return o
}

type sourceWriter struct {
	filer  *Filer
	file   GeneratedFile
	buf    bytes.Buffer
	closed bool
}

func (w *sourceWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed file %s", w.file.Path)
	}
	return w.buf.Write(p)
}

func (w *sourceWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	out, err := w.filer.factory(w.file.Path)
	if err != nil {
		return err
	}
	if _, err := out.Write(w.buf.Bytes()); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	w.file.Content = w.buf.Bytes()
	w.filer.files = append(w.filer.files, w.file)
	return nil
}

// MemoryOutput holds output files in memory instead of writing them to disk.
// Its Factory method returns an OutputFactory. It is used for dry runs and in
// tests.
type MemoryOutput struct {
	mu    sync.Mutex
	files map[string][]byte
}

// Factory returns an OutputFactory that stores files in m.
func (m *MemoryOutput) Factory() OutputFactory {
	return func(path string) (io.WriteCloser, error) {
		return &memoryFile{out: m, path: path}, nil
	}
}

// Paths returns the paths of all files stored, sorted.
func (m *MemoryOutput) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Contents returns the contents of the file at the given path.
func (m *MemoryOutput) Contents(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[path]
	return b, ok
}

type memoryFile struct {
	out  *MemoryOutput
	path string
	buf  bytes.Buffer
}

func (f *memoryFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

func (f *memoryFile) Close() error {
	f.out.mu.Lock()
	defer f.out.mu.Unlock()
	if f.out.files == nil {
		f.out.files = map[string][]byte{}
	}
	f.out.files[f.path] = f.buf.Bytes()
	return nil
}
