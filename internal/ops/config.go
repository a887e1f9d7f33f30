package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	ProcessID uint32          `json:"processId"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Journal   JournalConfig   `json:"journal"`
	Pool      PoolConfig      `json:"pool"`
	Shm       ShmConfig       `json:"shm"`
	Status    StatusConfig    `json:"status"`
	Symbols   []SymbolConfig  `json:"symbols"`
}

// SchedulerConfig declares the scheduler quantum.
type SchedulerConfig struct {
	BasicTimeUnitUs int64 `json:"basicTimeUnitUs"`
}

// JournalConfig declares the event journal sink.
type JournalConfig struct {
	Path   string `json:"path"`
	Format string `json:"format"` // "binary" or "text"
}

// PoolConfig sizes the memory pool.
type PoolConfig struct {
	InitialSizeBytes int `json:"initialSizeBytes"`
	ChunkSizeBytes   int `json:"chunkSizeBytes"`
	ArenaSizeBytes   int `json:"arenaSizeBytes"`
}

// ShmConfig names the shared channels and tunes the manager.
type ShmConfig struct {
	MarketDataName      string `json:"marketDataName"`
	SignalName          string `json:"signalName"`
	ControlName         string `json:"controlName"`
	OpenTimeoutMs       int64  `json:"openTimeoutMs"`
	OperationDeadlineUs int64  `json:"operationDeadlineUs"`
	MaxBatch            int    `json:"maxBatch"`
}

// StatusConfig declares the local status endpoint.
type StatusConfig struct {
	SocketPath string `json:"socketPath"`
}

// SymbolConfig describes one configured instrument.
type SymbolConfig struct {
	Name     string          `json:"name"`
	TickSize decimal.Decimal `json:"tickSize"`
	LotSize  decimal.Decimal `json:"lotSize"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	ProcessID uint32

	BasicTimeUnit time.Duration

	JournalPath   string
	JournalBinary bool

	PoolInitialSize int
	PoolChunkSize   int
	ArenaSize       int

	MarketDataName    string
	SignalName        string
	ControlName       string
	OpenTimeout       time.Duration
	OperationDeadline time.Duration
	MaxBatch          int

	StatusSocketPath string

	Registry *schema.Registry
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config "+path)
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config "+path)
	}
	return Resolve(cfg)
}

// Resolve validates the raw config and produces the resolved record. It is a
// pure function over its input.
func Resolve(cfg FileConfig) (Loaded, error) {
	if err := Validate(cfg); err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		ProcessID:         cfg.ProcessID,
		BasicTimeUnit:     time.Duration(cfg.Scheduler.BasicTimeUnitUs) * time.Microsecond,
		JournalPath:       cfg.Journal.Path,
		JournalBinary:     cfg.Journal.Format != "text",
		PoolInitialSize:   cfg.Pool.InitialSizeBytes,
		PoolChunkSize:     cfg.Pool.ChunkSizeBytes,
		ArenaSize:         cfg.Pool.ArenaSizeBytes,
		MarketDataName:    cfg.Shm.MarketDataName,
		SignalName:        cfg.Shm.SignalName,
		ControlName:       cfg.Shm.ControlName,
		OpenTimeout:       time.Duration(cfg.Shm.OpenTimeoutMs) * time.Millisecond,
		OperationDeadline: time.Duration(cfg.Shm.OperationDeadlineUs) * time.Microsecond,
		MaxBatch:          cfg.Shm.MaxBatch,
		StatusSocketPath:  cfg.Status.SocketPath,
	}
	if loaded.BasicTimeUnit == 0 {
		loaded.BasicTimeUnit = 100 * time.Microsecond
	}
	if loaded.JournalPath == "" {
		loaded.JournalPath = "alaris_events.bin"
	}

	registry := schema.NewRegistry()
	for _, sym := range cfg.Symbols {
		if _, err := registry.Add(schema.Symbol{
			Name:     sym.Name,
			TickSize: sym.TickSize,
			LotSize:  sym.LotSize,
		}); err != nil {
			return Loaded{}, err
		}
	}
	loaded.Registry = registry
	return loaded, nil
}

// Validate checks the raw config without resolving it.
func Validate(cfg FileConfig) error {
	if cfg.Scheduler.BasicTimeUnitUs < 0 {
		return fmt.Errorf("invalid config: scheduler.basicTimeUnitUs must be >= 0")
	}
	if cfg.Journal.Format != "" && cfg.Journal.Format != "binary" && cfg.Journal.Format != "text" {
		return fmt.Errorf("invalid config: journal.format must be binary or text")
	}
	if cfg.Pool.InitialSizeBytes < 0 || cfg.Pool.ChunkSizeBytes < 0 || cfg.Pool.ArenaSizeBytes < 0 {
		return fmt.Errorf("invalid config: pool sizes must be >= 0")
	}
	if cfg.Shm.OpenTimeoutMs < 0 || cfg.Shm.OperationDeadlineUs < 0 || cfg.Shm.MaxBatch < 0 {
		return fmt.Errorf("invalid config: shm tunables must be >= 0")
	}
	for _, sym := range cfg.Symbols {
		if sym.Name == "" {
			return fmt.Errorf("invalid config: symbol with empty name")
		}
		if !positiveDecimal(sym.TickSize) {
			return fmt.Errorf("invalid config: symbol %s tickSize must be > 0", sym.Name)
		}
		if !positiveDecimal(sym.LotSize) {
			return fmt.Errorf("invalid config: symbol %s lotSize must be > 0", sym.Name)
		}
	}
	return nil
}

func positiveDecimal(d decimal.Decimal) bool {
	s := strings.TrimLeft(d.String(), "0.")
	return s != "" && !strings.HasPrefix(d.String(), "-")
}
