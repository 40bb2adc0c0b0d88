// Package gitattributes maintains a block of entries in a .gitattributes file
// that marks generated files, so that they are collapsed in diffs and left out
// of language statistics.
package gitattributes

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

var (
	startMarker = []byte("# /annogen gen\n")
	endMarker   = []byte("# annogen gen/\n")
)

// Update rewrites the annogen block of the .gitattributes file in dir to list
// the given paths, which are relative to dir. Content outside the block is
// kept. The file is created if it does not exist. An empty list removes the
// block.
func Update(dir string, paths []string) error {
	path := filepath.Join(dir, ".gitattributes")
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var buf bytes.Buffer
	start := bytes.Index(data, startMarker)
	end := bytes.Index(data, endMarker)
	switch {
	case start == -1 && end == -1:
		buf.Write(data)
	case start == -1 || end == -1 || end < start:
		return fmt.Errorf("%s has an incomplete annogen block", path)
	default:
		buf.Write(data[:start])
		buf.Write(data[end+len(endMarker):])
	}

	if len(paths) > 0 {
		sorted := append([]string(nil), paths...)
		sort.Strings(sorted)
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.Write(startMarker)
		for _, p := range sorted {
			fmt.Fprintf(&buf, "%s linguist-generated=true -diff\n", filepath.ToSlash(p))
		}
		buf.Write(endMarker)
	}

	if bytes.Equal(buf.Bytes(), data) {
		return nil
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
