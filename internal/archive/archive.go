// Package archive packs the raw run folder into one tarball per lane.
//
// Every lane's tarball holds the shared run-folder files (everything outside
// Data/, Logs/ and Thumbnail_Images/) plus the files below Data/ that belong
// to that lane. Entries are stored in natural sort order with owner and group
// 0, so re-running produces the same archive for the same input.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/checksum"
	"github.com/dyluth/digestiflow-demux/internal/layout"
	"go.uber.org/zap"
)

const dataDir = "Data"

// excluded top-level directories of the shared file set.
var excludedTopLevel = map[string]bool{
	dataDir:            true,
	"Logs":             true,
	"Thumbnail_Images": true,
}

// Entry is one file selected for a lane tarball.
type Entry struct {
	Root string // run folder
	Rel  string // slash-separated path relative to Root
}

// Name is the path stored in the tarball: the run folder name followed by Rel.
func (e Entry) Name() string {
	return filepath.Base(e.Root) + "/" + e.Rel
}

// Archiver builds lane tarballs from read-only run folders.
type Archiver struct {
	planner   layout.Planner
	inputDirs []string
	logger    *zap.Logger
}

// New creates an Archiver. logger may be nil.
func New(planner layout.Planner, inputDirs []string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{planner: planner, inputDirs: inputDirs, logger: logger}
}

// LaneFiles returns the entries for lane in the order they are archived.
func (a *Archiver) LaneFiles(lane int) ([]Entry, error) {
	var entries []Entry
	for _, root := range a.inputDirs {
		rels, err := laneFiles(root, lane)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			entries = append(entries, Entry{Root: root, Rel: rel})
		}
	}
	return entries, nil
}

func laneFiles(root string, lane int) ([]string, error) {
	laneName := layout.LaneName(lane)
	var rels []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")

		if d.IsDir() {
			if len(parts) == 1 && excludedTopLevel[parts[0]] && parts[0] != dataDir {
				return filepath.SkipDir
			}
			return nil
		}
		if len(parts) > 1 && excludedTopLevel[parts[0]] {
			if parts[0] == dataDir && inLane(parts[1:], laneName) {
				rels = append(rels, rel)
			}
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	naturalSort(rels)
	return rels, nil
}

// inLane reports whether any path component below Data/ starts with the
// lane name, e.g. "L001" or "L001.tar".
func inLane(parts []string, laneName string) bool {
	for _, p := range parts {
		if strings.HasPrefix(p, laneName) {
			return true
		}
	}
	return false
}

// WriteLane writes BCLS_LANE_<lane>.tar and its .md5 into the output
// directory. The tarball is assembled under a scratch name and only renamed
// into place once complete; the scratch file is removed on every exit path.
func (a *Archiver) WriteLane(ctx context.Context, lane int) (string, error) {
	entries, err := a.LaneFiles(lane)
	if err != nil {
		return "", err
	}

	dst := a.planner.TarballPath(lane)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	scratch, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch tarball: %w", err)
	}
	defer os.Remove(scratch.Name())

	if err := writeTar(ctx, scratch, entries); err != nil {
		scratch.Close()
		return "", fmt.Errorf("lane %d: %w", lane, err)
	}
	if err := scratch.Close(); err != nil {
		return "", fmt.Errorf("lane %d: %w", lane, err)
	}
	if err := os.Chmod(scratch.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(scratch.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to move tarball into place: %w", err)
	}

	sum, err := checksum.Write(dst)
	if err != nil {
		return "", err
	}

	a.logger.Info("lane_archived",
		zap.Int("lane", lane),
		zap.String("tarball", dst),
		zap.Int("files", len(entries)),
		zap.String("md5", sum))
	return dst, nil
}

func writeTar(ctx context.Context, w io.Writer, entries []Entry) error {
	tw := tar.NewWriter(w)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addEntry(tw, e); err != nil {
			return err
		}
	}
	return tw.Close()
}

func addEntry(tw *tar.Writer, e Entry) error {
	path := filepath.Join(e.Root, filepath.FromSlash(e.Rel))
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", path, err)
	}
	hdr.Name = e.Name()
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
	hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return nil
}
