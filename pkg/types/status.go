package types

// SyncStatus is the aggregate health view returned by the coordinator for
// dashboards and tests.
type SyncStatus struct {
	TotalDevices  int                               `json:"total_devices"`
	OnlineDevices int                               `json:"online_devices"`
	Devices       map[string]DeviceConnectionRecord `json:"devices"`
	Statistics    SyncStatistics                    `json:"statistics"`
}

// SyncStatistics summarizes delivery behavior since startup.
type SyncStatistics struct {
	SnapshotSyncs      uint64  `json:"snapshot_syncs"`
	DeliveryAttempts   uint64  `json:"delivery_attempts"`
	MessagesDelivered  uint64  `json:"messages_delivered"`
	MessagesQueued     int     `json:"messages_queued"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}
