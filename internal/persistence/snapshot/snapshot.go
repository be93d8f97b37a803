// Package snapshot persists planner state as a JSON header line followed by
// a gob body, all inside one zstd stream.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
)

const Version = 1

const fileSuffix = ".snap.zst"

type Header struct {
	Version int      `json:"version"`
	Tick    uint64   `json:"tick"`
	Seed    int64    `json:"seed"`
	Rooms   []string `json:"rooms"`
}

type SnapshotV1 struct {
	Header Header

	// Levels records the controller level each room was planned against.
	Levels  map[string]int
	Records map[string]*room.Record
}

// New captures the records in store at tick.
func New(tick uint64, seed int64, store *room.MemoryStore) SnapshotV1 {
	recs := store.Export()
	snap := SnapshotV1{
		Header:  Header{Version: Version, Tick: tick, Seed: seed},
		Levels:  make(map[string]int, len(recs)),
		Records: recs,
	}
	for name, rec := range recs {
		snap.Header.Rooms = append(snap.Header.Rooms, name)
		if rec.Plan != nil {
			snap.Levels[name] = rec.Plan.PlanLevel
		}
	}
	sort.Strings(snap.Header.Rooms)
	return snap
}

// Counts totals planned buildings and road segments across all rooms.
func (s SnapshotV1) Counts() (buildings, roads int) {
	for _, rec := range s.Records {
		if rec == nil || rec.Plan == nil {
			continue
		}
		buildings += len(rec.Plan.Buildings)
		roads += len(rec.Plan.Roads)
	}
	return buildings, roads
}

// PathFor names the snapshot file for tick inside dir.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", tick, fileSuffix))
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	br, closeFn, err := open(path)
	if err != nil {
		return snap, err
	}
	defer closeFn()

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	br, closeFn, err := open(path)
	if err != nil {
		return h, err
	}
	defer closeFn()
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

func open(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return bufio.NewReaderSize(dec, 256*1024), func() {
		dec.Close()
		_ = f.Close()
	}, nil
}

// ErrNoSnapshot is returned by Latest when dir holds no snapshot.
var ErrNoSnapshot = errors.New("no snapshot found")

// Latest returns the path of the highest-tick snapshot in dir.
func Latest(dir string) (string, uint64, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", 0, ErrNoSnapshot
	}
	if err != nil {
		return "", 0, err
	}
	best, found := uint64(0), false
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		if !found || tick > best {
			best, found = tick, true
		}
	}
	if !found {
		return "", 0, ErrNoSnapshot
	}
	return PathFor(dir, best), best, nil
}

// Restore loads snap into store, replacing what it held.
func Restore(snap SnapshotV1, store *room.MemoryStore) {
	store.Import(snap.Records)
}
