// Package control implements the launcher control file and the supervisor
// that restarts the engine according to it.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"remindbot/fsutil"
)

// Flags are the out-of-band requests the engine leaves for its supervisor.
type Flags struct {
	Restart bool `json:"restart"`
	Stop    bool `json:"stop"`
}

const (
	keyRestart = "restart"
	keyStop    = "stop"
)

// File reads and writes the control file. Keys other than restart and stop
// are preserved.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Read returns the current flags. A missing file yields zero flags.
func (f *File) Read() (Flags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.readRaw()
	if err != nil {
		return Flags{}, err
	}
	return Flags{Restart: flag(raw, keyRestart), Stop: flag(raw, keyStop)}, nil
}

func (f *File) SetRestart(v bool) error { return f.set(keyRestart, v) }
func (f *File) SetStop(v bool) error    { return f.set(keyStop, v) }

// Ensure writes false for any flag that is missing and returns the flags.
func (f *File) Ensure() (Flags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.readRaw()
	if err != nil {
		// unreadable files are rewritten with defaults
		raw = map[string]json.RawMessage{}
	}
	changed := err != nil
	for _, key := range []string{keyRestart, keyStop} {
		if _, ok := raw[key]; !ok {
			raw[key] = json.RawMessage("false")
			changed = true
		}
	}
	if changed {
		if err := f.writeRaw(raw); err != nil {
			return Flags{}, err
		}
	}
	return Flags{Restart: flag(raw, keyRestart), Stop: flag(raw, keyStop)}, nil
}

func (f *File) set(key string, v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.readRaw()
	if err != nil {
		raw = map[string]json.RawMessage{}
	}
	value, _ := json.Marshal(v)
	raw[key] = value
	return f.writeRaw(raw)
}

func (f *File) readRaw() (map[string]json.RawMessage, error) {
	raw := map[string]json.RawMessage{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return raw, nil
}

func (f *File) writeRaw(raw map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.path, data, 0o644)
}

func flag(raw map[string]json.RawMessage, key string) bool {
	var v bool
	if data, ok := raw[key]; ok {
		_ = json.Unmarshal(data, &v)
	}
	return v
}
