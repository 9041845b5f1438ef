// ============================================================================
// Run Loader Logdir
// ============================================================================
//
// Package: internal/logdir
// File: disk.go
// Purpose: List and open event files for a single run directory, the
// external collaborator behind spec.md §6's "Directory lister" and "Event
// file opener" interfaces.
//
// Adapted from the teacher's internal/storage/wal package's file-opening
// conventions (os.OpenFile with explicit flags, wrapped errors naming the
// path) and internal/snapshot/snapshot_manager.go's directory-scan shape,
// generalized from "one WAL directory" to "one run directory holding many
// event files recognized by a filename convention".
//
// ============================================================================

// Package logdir lists and opens the event files that make up one run.
package logdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ChuLiYu/run-loader/internal/eventfile"
	"github.com/ChuLiYu/run-loader/pkg/types"
)

// EventFilePrefix is the filename prefix that marks a file as an event file.
// Mirrors the upstream "events.out.tfevents." convention.
const EventFilePrefix = "events.out.tfevents."

// Logdir lists and opens the event files belonging to one run. Implementations
// must return FileIDs in an order consistent with spec.md §4.2's lexicographic
// file ordering: the caller relies on sorted output.
type Logdir interface {
	// List returns the FileIDs of every event file currently present,
	// sorted ascending. Files that vanish between calls simply stop
	// appearing. DiskLogdir treats a missing directory as empty: List
	// returns no IDs and no error, and the directory's disappearance is
	// not reported.
	List() ([]types.FileID, error)

	// Open opens the named file for streaming read, positioned at the
	// start. The run loader keeps the returned Reader across calls and
	// only calls Open once per file's lifetime.
	Open(id types.FileID) (*eventfile.Reader, error)
}

// DiskLogdir is the concrete, filesystem-backed Logdir used outside tests.
type DiskLogdir struct {
	run  types.Run
	path string
}

// NewDiskLogdir returns a Logdir rooted at path for the named run.
func NewDiskLogdir(run types.Run, path string) *DiskLogdir {
	return &DiskLogdir{run: run, path: path}
}

// Run returns the run this logdir was constructed for.
func (d *DiskLogdir) Run() types.Run { return d.run }

// Path returns the directory this logdir scans.
func (d *DiskLogdir) Path() string { return d.path }

// List implements Logdir by scanning the directory non-recursively for
// entries matching EventFilePrefix, returning them lexicographically sorted.
func (d *DiskLogdir) List() ([]types.FileID, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logdir: read %s: %w", d.path, err)
	}

	ids := make([]types.FileID, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, EventFilePrefix) {
			continue
		}
		ids = append(ids, types.FileID(name))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Open implements Logdir by opening the named file under the logdir's root.
func (d *DiskLogdir) Open(id types.FileID) (*eventfile.Reader, error) {
	full := filepath.Join(d.path, string(id))
	f, err := os.OpenFile(full, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("logdir: open %s: %w", full, err)
	}
	return eventfile.NewReader(f, full), nil
}
