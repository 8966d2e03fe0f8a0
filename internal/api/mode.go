package api

// Mode is the execution context of a job. Batch modes change the privilege a
// job asks for and leave persistence and cleanup to the caller.
type Mode int

const (
	ModeNormal Mode = iota
	ModeBatchAdd
	ModeBatchEdit
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeBatchAdd:
		return "batch-add"
	case ModeBatchEdit:
		return "batch-edit"
	default:
		return "unknown"
	}
}

// IsBatch reports whether persistence is deferred to the caller.
func (m Mode) IsBatch() bool {
	return m == ModeBatchAdd || m == ModeBatchEdit
}
