package model

// HealthStatus represents the state of a running fabric
type HealthStatus struct {
	Status    FabricStatus  `json:"status"`
	Source    string        `json:"source,omitempty"`
	Annox     string        `json:"annox,omitempty"`
	Task      string        `json:"task,omitempty"`
	Timestamp int64         `json:"timestamp"`
	Metrics   HealthMetrics `json:"metrics"`
}

// FabricStatus defines the operational status of the fabric
type FabricStatus string

const (
	FabricStatusIdle      FabricStatus = "idle"
	FabricStatusCompiling FabricStatus = "compiling"
	FabricStatusLoading   FabricStatus = "loading"
	FabricStatusRunning   FabricStatus = "running"
	FabricStatusFailed    FabricStatus = "failed"
)

// HealthMetrics contains a snapshot of loader figures
type HealthMetrics struct {
	LoadedItems  int     `json:"loaded_items"`
	LoadedBytes  int64   `json:"loaded_bytes"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	DiskUsage    float64 `json:"disk_usage"`
}
