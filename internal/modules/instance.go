package modules

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
)

// State is an Instance's position in the lifecycle described in §3.
type State int32

const (
	Starting State = iota
	Ready
	Dying
	Dead
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Dying:
		return "dying"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Instance is one running child process of a module (C2).
type Instance struct {
	ModuleName string
	InstanceID string

	cmd       *exec.Cmd
	transport *Transport
	state     atomic.Int32

	mu        sync.Mutex
	cleanedUp bool
}

func newInstance(moduleName string, index int, cmd *exec.Cmd, transport *Transport) *Instance {
	inst := &Instance{
		ModuleName: moduleName,
		InstanceID: fmt.Sprintf("%s-%d", moduleName, index),
		cmd:        cmd,
		transport:  transport,
	}
	inst.state.Store(int32(Starting))
	return inst
}

func (i *Instance) State() State {
	return State(i.state.Load())
}

func (i *Instance) setState(s State) {
	i.state.Store(int32(s))
}

// MarkReady transitions Starting -> Ready on the instance's first
// register message (§4.2). A no-op once past Starting.
func (i *Instance) MarkReady() {
	i.state.CompareAndSwap(int32(Starting), int32(Ready))
}

// markCleanedUp reports whether this call is the first to observe
// cleanup for this instance, so the four exit signals in §4.2 (exit,
// close, error, disconnect) can share one idempotent path.
func (i *Instance) markCleanedUp() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cleanedUp {
		return false
	}
	i.cleanedUp = true
	i.setState(Dead)
	return true
}
