// Package config loads the dataset configuration from TOML
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/aleksaelezovic/tupleindex/internal/storage"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

var ErrInvalid = errors.New("config: invalid")

// Natural column orders of the two tables
const (
	TripleOrder = "SPO"
	QuadOrder   = "GSPO"
)

const defaultConfig = `
# Dataset configuration.

# expose index operation counters
metrics = false

[storage]
# badger, leveldb or memory
backend = "badger"
path = "./data"
sync_writes = false

[indexes]
# the first index of each list is the primary
triple = ["SPO", "POS", "OSP"]
quad = ["GSPO", "GPOS", "GOSP", "SPOG", "POSG", "OSPG"]
check_length = true
allow_full_scan = true
allow_partial_scan = true

[load]
bulk = true
batch_size = 10000

[query]
union_default_graph = false

[log]
# 0 logs warnings only, higher values add detail
verbosity = 0
`

type StorageConfig struct {
	Backend    string `toml:"backend"`
	Path       string `toml:"path"`
	SyncWrites bool   `toml:"sync_writes"`
}

type IndexConfig struct {
	Triple           []string `toml:"triple"`
	Quad             []string `toml:"quad"`
	CheckLength      bool     `toml:"check_length"`
	AllowFullScan    bool     `toml:"allow_full_scan"`
	AllowPartialScan bool     `toml:"allow_partial_scan"`
}

type LoadConfig struct {
	// Bulk loads through asynchronous bulk indexes
	Bulk      bool `toml:"bulk"`
	BatchSize int  `toml:"batch_size"`
}

type QueryConfig struct {
	// UnionDefaultGraph makes the default graph the union of all named graphs
	UnionDefaultGraph bool `toml:"union_default_graph"`
}

type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

type Config struct {
	Metrics bool          `toml:"metrics"`
	Storage StorageConfig `toml:"storage"`
	Indexes IndexConfig   `toml:"indexes"`
	Load    LoadConfig    `toml:"load"`
	Query   QueryConfig   `toml:"query"`
	Log     LogConfig     `toml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	c := &Config{}
	if _, err := toml.Decode(defaultConfig, c); err != nil {
		panic(fmt.Sprintf("decode default config: %v", err))
	}
	return c
}

// Load reads fileName over the defaults and validates the result.
// An empty fileName yields the defaults.
func Load(fileName string) (*Config, error) {
	c := Default()
	if fileName == "" {
		return c, nil
	}

	meta, err := toml.DecodeFile(fileName, c)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", fileName, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), fileName)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the backend and that every index name is a permutation of
// its table's column order
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendBadger, storage.BackendLevelDB:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: backend %s needs a path", ErrInvalid, c.Storage.Backend)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Storage.Backend)
	}

	if err := validateIndexes("triple", TripleOrder, c.Indexes.Triple); err != nil {
		return err
	}
	if err := validateIndexes("quad", QuadOrder, c.Indexes.Quad); err != nil {
		return err
	}

	if c.Load.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalid, c.Load.BatchSize)
	}
	return nil
}

func validateIndexes(kind, natural string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: no %s indexes", ErrInvalid, kind)
	}

	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.ToUpper(name)
		if seen[name] {
			return fmt.Errorf("%w: duplicate %s index %s", ErrInvalid, kind, name)
		}
		seen[name] = true

		if _, err := tuple.NewColumnMap(natural, name); err != nil {
			return fmt.Errorf("%w: %s index %s: %v", ErrInvalid, kind, name, err)
		}
	}
	return nil
}
