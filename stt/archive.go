package stt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Default layout of the debug archive.
const (
	DefaultArchiveDir = "audio_files"
	archivePrefix     = "temp"
	archiveExt        = ".wav"
)

// Archive keeps numbered copies of transcribed recordings (temp1.wav,
// temp2.wav, ...). The next index is derived from the directory once, when
// the archive is opened, and only moves forward afterwards. Existing files
// are never overwritten.
type Archive struct {
	dir  string
	mu   sync.Mutex
	next int
}

// NewArchive opens (creating if needed) the archive directory.
func NewArchive(dir string) (*Archive, error) {
	if dir == "" {
		dir = DefaultArchiveDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create archive dir")
	}

	indexes, err := scanIndexes(dir)
	if err != nil {
		return nil, err
	}
	next := 1
	if len(indexes) > 0 {
		next = indexes[len(indexes)-1] + 1
	}
	return &Archive{dir: dir, next: next}, nil
}

func (a *Archive) Dir() string { return a.dir }

// Next returns the index the next Save will try first.
func (a *Archive) Next() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

func (a *Archive) name(i int) string {
	return filepath.Join(a.dir, fmt.Sprintf("%s%d%s", archivePrefix, i, archiveExt))
}

// Save copies src into the next free slot and returns the new path.
func (a *Archive) Save(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		dst := a.name(a.next)
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			a.next++
			continue
		}
		if err != nil {
			return "", errors.Wrap(err, "create archive file")
		}
		a.next++

		_, cerr := io.Copy(out, in)
		if err := out.Close(); cerr == nil {
			cerr = err
		}
		if cerr != nil {
			os.Remove(dst)
			return "", errors.Wrap(cerr, "copy into archive")
		}
		return dst, nil
	}
}

// Prune removes all but the newest keep archive files and reports how many
// were deleted. keep <= 0 disables pruning.
func (a *Archive) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	indexes, err := scanIndexes(a.dir)
	if err != nil {
		return 0, err
	}
	if len(indexes) <= keep {
		return 0, nil
	}

	removed := 0
	for _, i := range indexes[:len(indexes)-keep] {
		if err := os.Remove(a.name(i)); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrapf(err, "remove archive %d", i)
		}
		removed++
	}
	return removed, nil
}

// scanIndexes returns the sorted indexes of archive files in dir.
func scanIndexes(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read archive dir")
	}
	var indexes []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveExt))
		if err != nil || n <= 0 {
			continue
		}
		indexes = append(indexes, n)
	}
	sort.Ints(indexes)
	return indexes, nil
}
