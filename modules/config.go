package modules

import "time"

// Config holds every optional override named in spec §6. A node with a
// zero-value Config self-configures using DefaultConfig's values — nothing
// here is required.
type Config struct {
	OwnNodeID        string
	OwnAdvertiseAddr NetAddress

	MetadataAlias   string
	StorageAlias    string
	MetadataAPIPort string

	GossipPeriod       time.Duration
	AntiEntropyPeriod  time.Duration
	RepairPeriod       time.Duration
	HeartbeatPeriod    time.Duration
	HeartbeatTimeout   time.Duration
	PeerReconcilePeriod time.Duration
	HealthCheckPeriod  time.Duration

	Fanout       int
	MinWriteAcks int

	WriteDeadline time.Duration
	ReadDeadline  time.Duration
	GossipDeadline      time.Duration
	AntiEntropyDeadline time.Duration
	HeartbeatDeadline   time.Duration

	InflightWritesPerSN int
	InflightRepairs     int

	GossipBatchSize int
	ChunkSize       int64
	PieceSize       int

	// StorageCapacity is the number of bytes a storage node reports as its
	// total capacity in heartbeats (spec §4.8). It is a configured quota,
	// not a disk query, so operators size nodes deliberately.
	StorageCapacity uint64

	// DownloadSpeedLimit and UploadSpeedLimit cap a storage node's
	// data-surface connections in bytes/sec. Zero means unlimited.
	DownloadSpeedLimit int64
	UploadSpeedLimit   int64

	// TombstoneRetention records open question O2's setting. No code reads
	// it: for any value no GC timer is scheduled, and tombstones (and the
	// files/tags they mark) are retained for the life of the process.
	TombstoneRetention time.Duration

	PeerTTL time.Duration
}

// DefaultConfig returns the spec-mandated defaults (spec §4, §5, §6).
func DefaultConfig() Config {
	return Config{
		MetadataAlias:   "metadata-service",
		StorageAlias:    "storage-service",
		MetadataAPIPort: "9980",

		GossipPeriod:        5 * time.Second,
		AntiEntropyPeriod:   30 * time.Second,
		RepairPeriod:        60 * time.Second,
		HeartbeatPeriod:     10 * time.Second,
		HeartbeatTimeout:    30 * time.Second,
		PeerReconcilePeriod: 5 * time.Minute,
		HealthCheckPeriod:   10 * time.Second,

		Fanout:       2,
		MinWriteAcks: 1,

		WriteDeadline:       60 * time.Second,
		ReadDeadline:        60 * time.Second,
		GossipDeadline:      5 * time.Second,
		AntiEntropyDeadline: 15 * time.Second,
		HeartbeatDeadline:   5 * time.Second,

		InflightWritesPerSN: 16,
		InflightRepairs:     32,

		GossipBatchSize: 256,
		ChunkSize:       4 << 20, // 4 MiB
		PieceSize:       64 << 10, // 64 KiB

		StorageCapacity: 100 << 30, // 100 GiB

		TombstoneRetention: 0,
		PeerTTL:            5 * time.Minute,
	}
}

// fillDefaults returns a copy of cfg with every zero-valued field replaced
// by DefaultConfig's value for that field, so callers may supply a partial
// Config and get spec-compliant defaults for the rest.
func (cfg Config) fillDefaults() Config {
	d := DefaultConfig()
	if cfg.MetadataAlias == "" {
		cfg.MetadataAlias = d.MetadataAlias
	}
	if cfg.StorageAlias == "" {
		cfg.StorageAlias = d.StorageAlias
	}
	if cfg.MetadataAPIPort == "" {
		cfg.MetadataAPIPort = d.MetadataAPIPort
	}
	if cfg.GossipPeriod == 0 {
		cfg.GossipPeriod = d.GossipPeriod
	}
	if cfg.AntiEntropyPeriod == 0 {
		cfg.AntiEntropyPeriod = d.AntiEntropyPeriod
	}
	if cfg.RepairPeriod == 0 {
		cfg.RepairPeriod = d.RepairPeriod
	}
	if cfg.HeartbeatPeriod == 0 {
		cfg.HeartbeatPeriod = d.HeartbeatPeriod
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if cfg.PeerReconcilePeriod == 0 {
		cfg.PeerReconcilePeriod = d.PeerReconcilePeriod
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = d.HealthCheckPeriod
	}
	if cfg.Fanout == 0 {
		cfg.Fanout = d.Fanout
	}
	if cfg.MinWriteAcks == 0 {
		cfg.MinWriteAcks = d.MinWriteAcks
	}
	if cfg.WriteDeadline == 0 {
		cfg.WriteDeadline = d.WriteDeadline
	}
	if cfg.ReadDeadline == 0 {
		cfg.ReadDeadline = d.ReadDeadline
	}
	if cfg.GossipDeadline == 0 {
		cfg.GossipDeadline = d.GossipDeadline
	}
	if cfg.AntiEntropyDeadline == 0 {
		cfg.AntiEntropyDeadline = d.AntiEntropyDeadline
	}
	if cfg.HeartbeatDeadline == 0 {
		cfg.HeartbeatDeadline = d.HeartbeatDeadline
	}
	if cfg.InflightWritesPerSN == 0 {
		cfg.InflightWritesPerSN = d.InflightWritesPerSN
	}
	if cfg.InflightRepairs == 0 {
		cfg.InflightRepairs = d.InflightRepairs
	}
	if cfg.GossipBatchSize == 0 {
		cfg.GossipBatchSize = d.GossipBatchSize
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = d.ChunkSize
	}
	if cfg.PieceSize == 0 {
		cfg.PieceSize = d.PieceSize
	}
	if cfg.PeerTTL == 0 {
		cfg.PeerTTL = d.PeerTTL
	}
	if cfg.StorageCapacity == 0 {
		cfg.StorageCapacity = d.StorageCapacity
	}
	return cfg
}

// FillDefaults is the exported form of fillDefaults, used by node
// construction and tests outside this package.
func (cfg Config) FillDefaults() Config {
	return cfg.fillDefaults()
}
