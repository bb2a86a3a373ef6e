package constant

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

const (
	StableBackendBadger = "badger"
	StableBackendConsul = "consul"
)

// DefaultSnapshotKey is where the authorized set is persisted across restarts.
const DefaultSnapshotKey = "lifecycle/authorized_set"
