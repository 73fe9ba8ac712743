package entity

// Snapshot is the persisted ledger+escrow state reloaded at startup.
type Snapshot struct {
	Jobs     []Job
	Balances map[Actor]uint64
	Escrow   map[JobID]uint64
	Events   []Event
}
