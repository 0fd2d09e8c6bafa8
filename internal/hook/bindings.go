package hook

import (
	"sync"
	"sync/atomic"
)

// maxBindings bounds the number of managers that can hold an installed hook
// at once. Each slot owns one OS callback that is created on first use and
// never released, so its address stays valid for the life of the process.
const maxBindings = 32

// bindingTable maps OS callback slots to the manager that currently owns
// them. Callbacks look their manager up on every invocation.
type bindingTable struct {
	mu    sync.Mutex
	used  [maxBindings]bool
	slots [maxBindings]atomic.Pointer[Manager]
}

var bindings bindingTable

func (t *bindingTable) acquire(m *Manager) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.used {
		if !t.used[i] {
			t.used[i] = true
			t.slots[i].Store(m)
			return i, nil
		}
	}
	return -1, ErrNoBindings
}

func (t *bindingTable) release(slot int) {
	if slot < 0 || slot >= maxBindings {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.slots[slot].Store(nil)
	t.used[slot] = false
}

// retire clears the owner of slot but keeps it reserved. It is used when the
// OS refused to remove a hook: the callback may still fire and must not reach
// a manager that later reuses the slot.
func (t *bindingTable) retire(slot int) {
	if slot < 0 || slot >= maxBindings {
		return
	}
	t.slots[slot].Store(nil)
}

func (t *bindingTable) lookup(slot int) *Manager {
	if slot < 0 || slot >= maxBindings {
		return nil
	}
	return t.slots[slot].Load()
}

// invoke is called by every backend from its OS callback. ok is false when
// the slot has no owner; the backend must then forward on its own.
func invoke(slot int, code int32, wParam uintptr, rec *RawMouseRecord) (ret uintptr, ok bool) {
	m := bindings.lookup(slot)
	if m == nil {
		return 0, false
	}
	return m.route(code, wParam, rec), true
}
