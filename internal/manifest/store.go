package manifest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/pders01/snapsafe/internal/fsutil"
)

// FileName is the manifest file inside a snapshot directory
const FileName = "manifest.json"

// Write encodes m into dir/manifest.json. The file is written to a
// temporary name and renamed, so it is either complete or absent.
func Write(dir string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	p := filepath.Join(dir, FileName)
	if err := fsutil.WriteFileAtomic(p, data, 0444); err != nil {
		return errors.Wrapf(err, "failed to write manifest %s", p)
	}
	return nil
}

// Read loads the manifest stored in dir
func Read(dir string) (*Manifest, error) {
	p := filepath.Join(dir, FileName)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", p)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", p)
	}
	return m, nil
}

// Encode serialises m deterministically
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, errors.Wrap(err, "failed to marshal manifest")
	}
	return buf.Bytes(), nil
}

// Decode parses an encoded manifest and checks its ordering invariant
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m.Entries == nil {
		m.Entries = []Entry{}
	}
	for i := 1; i < len(m.Entries); i++ {
		if m.Entries[i-1].Path >= m.Entries[i].Path {
			return nil, errors.Errorf("entries out of order at %q", m.Entries[i].Path)
		}
	}
	return &m, nil
}
