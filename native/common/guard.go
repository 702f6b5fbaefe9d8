package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module is administratively halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-process PauseView with explicit set/clear operations. It
// backs deployments that do not source pause flags from an external store.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet() *PauseSet {
	return &PauseSet{paused: make(map[string]bool)}
}

func (p *PauseSet) Pause(module string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[module] = true
}

func (p *PauseSet) Resume(module string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.paused, module)
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}
