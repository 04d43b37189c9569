package transfer

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dselifonov/shift/internal/wire"
)

// workItem is one entry in a send worklist: a path relative to the
// transfer root, plus the metadata needed to build its OpenFile message.
type workItem struct {
	relPath string
	info    wire.FileInfo
}

// modeFor synthesizes wire mode bits for a filesystem entry, falling back
// to 0o755/0o644 on platforms without native Unix permission bits.
func modeFor(fi os.FileInfo) uint32 {
	mode := uint32(fi.Mode().Perm())
	if mode == 0 {
		if fi.IsDir() {
			mode = 0o755
		} else {
			mode = 0o644
		}
	}
	if fi.IsDir() {
		mode |= 0o40000
	}
	return mode
}

// walkTree depth-first enumerates every descendant of root (a directory),
// building a worklist of paths relative to root plus each entry's FileInfo.
// Empty directories are included so the receiver recreates them.
func walkTree(root string) ([]workItem, error) {
	var items []workItem
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		items = append(items, workItem{
			relPath: rel,
			info: wire.FileInfo{
				Name: filepath.ToSlash(rel),
				Size: uint64(fi.Size()),
				Mode: modeFor(fi),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// rootFileInfo describes the transfer root itself for the initial
// SendRequest, for either a single file or a directory tree.
func rootFileInfo(path string) (wire.FileInfo, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return wire.FileInfo{}, false, err
	}
	return wire.FileInfo{
		Name: filepath.Base(path),
		Size: uint64(fi.Size()),
		Mode: modeFor(fi),
	}, fi.IsDir(), nil
}
