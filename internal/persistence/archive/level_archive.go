// Package archive keeps one snapshot per level milestone: the first snapshot
// in which every room's plan reached a given controller level.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/snapshot"
)

type MilestoneMeta struct {
	Level     int            `json:"level"`
	Tick      uint64         `json:"tick"`
	Seed      int64          `json:"seed"`
	Snapshot  string         `json:"snapshot"`
	Levels    map[string]int `json:"levels"`
	CreatedAt string         `json:"created_at"`
}

// MilestoneLevel is the lowest plan level across the snapshot's rooms, or 0
// when it has no rooms.
func MilestoneLevel(snap snapshot.SnapshotV1) int {
	if len(snap.Header.Rooms) == 0 {
		return 0
	}
	lowest := -1
	for _, name := range snap.Header.Rooms {
		l := snap.Levels[name]
		if lowest < 0 || l < lowest {
			lowest = l
		}
	}
	return lowest
}

// ArchiveLevelSnapshot copies the snapshot at snapshotPath into
// dataDir/archives/level_<N>/ when no snapshot was archived for its milestone
// level yet. It reports the archived path and whether a copy was made.
func ArchiveLevelSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (string, bool, error) {
	level := MilestoneLevel(snap)
	if level <= 0 {
		return "", false, nil
	}
	dir := filepath.Join(dataDir, "archives", fmt.Sprintf("level_%d", level))
	metaPath := filepath.Join(dir, "meta.json")
	if _, err := os.Stat(metaPath); err == nil {
		return "", false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := MilestoneMeta{
		Level:     level,
		Tick:      snap.Header.Tick,
		Seed:      snap.Header.Seed,
		Snapshot:  filepath.Base(dst),
		Levels:    snap.Levels,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	// meta.json marks the milestone as done, so it is written last.
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
