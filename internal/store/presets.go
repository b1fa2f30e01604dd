package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// NumPresets is the number of preset slots on the front panel.
const NumPresets = 4

// Preset is one saved tuning target.
type Preset struct {
	Name         string  `json:"name,omitempty"`
	FrequencyMHz float64 `json:"frequency_mhz"`
	Subchannel   int     `json:"subchannel"`
}

type presetFile struct {
	Slots [NumPresets]*Preset `json:"slots"`
}

// PresetStore persists the preset slots as a single JSON file. Every
// mutation rewrites the whole file through a temp file and rename so a
// crash mid-write never leaves a torn file behind.
type PresetStore struct {
	mu    sync.Mutex
	path  string
	slots [NumPresets]*Preset
}

// NewPresetStore opens the preset file at path, creating state for an
// empty one if the file does not exist yet.
func NewPresetStore(path string) (*PresetStore, error) {
	s := &PresetStore{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading presets")
	}

	var f presetFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parsing presets")
	}
	s.slots = f.Slots
	return s, nil
}

// Get returns the preset in the given slot, or nil if the slot is empty.
func (s *PresetStore) Get(slot int) (*Preset, error) {
	if slot < 0 || slot >= NumPresets {
		return nil, errors.Errorf("preset slot %d out of range", slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[slot] == nil {
		return nil, nil
	}
	p := *s.slots[slot]
	return &p, nil
}

// Set stores a preset in the given slot and persists the file.
func (s *PresetStore) Set(slot int, p Preset) error {
	if slot < 0 || slot >= NumPresets {
		return errors.Errorf("preset slot %d out of range", slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = &p
	return s.saveLocked()
}

// Clear empties the given slot and persists the file.
func (s *PresetStore) Clear(slot int) error {
	if slot < 0 || slot >= NumPresets {
		return errors.Errorf("preset slot %d out of range", slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = nil
	return s.saveLocked()
}

// All returns a copy of every slot, empty ones as nil.
func (s *PresetStore) All() [NumPresets]*Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [NumPresets]*Preset
	for i, p := range s.slots {
		if p != nil {
			cp := *p
			out[i] = &cp
		}
	}
	return out
}

func (s *PresetStore) saveLocked() error {
	raw, err := json.MarshalIndent(presetFile{Slots: s.slots}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding presets")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating preset dir")
	}
	tmp, err := os.CreateTemp(dir, ".presets-*.json")
	if err != nil {
		return errors.Wrap(err, "creating temp preset file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writing presets")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp preset file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replacing preset file")
	}
	return nil
}
