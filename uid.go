package audiograph

import "github.com/rs/xid"

// UID identifies a node for the lifetime of a process; it's used for log
// correlation and String(), never for graph equality (nodes compare by
// pointer).
type UID string

// newUID returns a new globally-ordered unique id.
func newUID() UID {
	return UID(xid.New().String())
}

func (u UID) String() string {
	return string(u)
}
