// Package rtsched makes a best-effort attempt to raise the scheduling
// priority of the goroutine driving the audio thread. Failure is never
// fatal: the render loop's correctness does not depend on it, only its
// freedom from scheduling jitter under load.
package rtsched

import (
	"os"

	"golang.org/x/sys/unix"
)

// Boost sets this process's nice value to -prio (raising its scheduling
// priority for a positive prio). It's a process-wide knob, not per-goroutine — Go doesn't expose
// thread-level priority — so callers should invoke it once, early, from
// whatever goroutine will spend most of its life inside Context.RenderQuantum.
// Errors are swallowed; most callers won't have CAP_SYS_NICE and that's fine.
func Boost(prio int) {
	_ = unix.Setpriority(unix.PRIO_PROCESS, os.Getpid(), -prio)
}
