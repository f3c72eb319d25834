package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pders01/snapsafe/internal/fsutil"
)

// RepoFile is the per-repository config inside the control directory
const RepoFile = "config.toml"

// ErrUnknownKey is returned for keys outside Keys
var ErrUnknownKey = errors.New("unknown config key")

// Keys lists the valid per-repository keys
var Keys = []string{
	"autobackup",
	"compression",
	"default_snapshot_message",
	"max_backups",
	"text_diff_extensions",
	"verify_after_snapshot",
}

// Repo holds per-repository settings. Compression is stored for
// compatibility but contents are never compressed.
type Repo struct {
	Autobackup             bool     `toml:"autobackup"`
	Compression            string   `toml:"compression"`
	DefaultSnapshotMessage string   `toml:"default_snapshot_message"`
	MaxBackups             uint     `toml:"max_backups"`
	TextDiffExtensions     []string `toml:"text_diff_extensions"`
	VerifyAfterSnapshot    bool     `toml:"verify_after_snapshot"`
}

// KeyValue is one rendered setting
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DefaultRepo returns the settings of a fresh repository
func DefaultRepo() *Repo {
	return &Repo{Compression: "none"}
}

// LoadRepo reads path, falling back to defaults when it does not exist
func LoadRepo(path string) (*Repo, error) {
	c := DefaultRepo()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", path, ErrUnknownKey, undecoded[0].String())
	}
	return c, nil
}

// Save writes the settings atomically
func (c *Repo) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get renders the value of key
func (c *Repo) Get(key string) (string, error) {
	switch key {
	case "autobackup":
		return strconv.FormatBool(c.Autobackup), nil
	case "compression":
		return c.Compression, nil
	case "default_snapshot_message":
		return c.DefaultSnapshotMessage, nil
	case "max_backups":
		return strconv.FormatUint(uint64(c.MaxBackups), 10), nil
	case "text_diff_extensions":
		return strings.Join(c.TextDiffExtensions, ","), nil
	case "verify_after_snapshot":
		return strconv.FormatBool(c.VerifyAfterSnapshot), nil
	default:
		return "", fmt.Errorf("%w: %s (valid keys: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}
}

// Set validates value and assigns it to key
func (c *Repo) Set(key, value string) error {
	switch key {
	case "autobackup", "verify_after_snapshot":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false, got %q", key, value)
		}
		if key == "autobackup" {
			c.Autobackup = b
		} else {
			c.VerifyAfterSnapshot = b
		}
	case "compression":
		switch value {
		case "none", "fast", "best":
			c.Compression = value
		default:
			return fmt.Errorf("compression must be one of none, fast, best; got %q", value)
		}
	case "default_snapshot_message":
		c.DefaultSnapshotMessage = value
	case "max_backups":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("max_backups must be a non-negative integer, got %q", value)
		}
		c.MaxBackups = uint(n)
	case "text_diff_extensions":
		var exts []string
		for _, e := range strings.Split(value, ",") {
			e = strings.TrimPrefix(strings.TrimSpace(e), ".")
			if e == "" {
				return fmt.Errorf("text_diff_extensions must be a comma separated list of non-empty extensions")
			}
			exts = append(exts, e)
		}
		c.TextDiffExtensions = exts
	default:
		return fmt.Errorf("%w: %s (valid keys: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}
	return nil
}

// Unset restores key to its default
func (c *Repo) Unset(key string) error {
	def := DefaultRepo()
	v, err := def.Get(key)
	if err != nil {
		return err
	}
	if key == "text_diff_extensions" {
		c.TextDiffExtensions = nil
		return nil
	}
	return c.Set(key, v)
}

// List returns every key with its current value, sorted by key
func (c *Repo) List() []KeyValue {
	keys := append([]string(nil), Keys...)
	sort.Strings(keys)
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		v, _ := c.Get(k)
		out = append(out, KeyValue{Key: k, Value: v})
	}
	return out
}
