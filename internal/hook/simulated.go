package hook

import "sync"

// SimulatedPlatform emulates the OS hook chain in memory. Hooks are inserted
// at the head of the chain; Forward calls the next hook down and returns the
// chain result once the end is reached.
type SimulatedPlatform struct {
	mu sync.Mutex

	nextHandle  Handle
	chain       []simHook
	forwards    map[Handle]int
	registers   int
	unregisters int

	registerErr   Errno
	unregisterErr Errno
	cursor        Point
	cursorErr     Errno
	chainResult   uintptr

	// OnForward, when set, is called at the start of every Forward.
	OnForward func(h Handle, code int32, wParam uintptr)
}

type simHook struct {
	handle Handle
	kind   HookKind
	slot   int
}

// NewSimulatedPlatform returns an empty simulated hook chain.
func NewSimulatedPlatform() *SimulatedPlatform {
	return &SimulatedPlatform{
		nextHandle: 0x1000,
		forwards:   make(map[Handle]int),
	}
}

// FailRegister makes every following Register fail with code. Zero clears it.
func (s *SimulatedPlatform) FailRegister(code Errno) {
	s.mu.Lock()
	s.registerErr = code
	s.mu.Unlock()
}

// FailUnregister makes every following Unregister fail with code. The hook
// stays in the chain, as it would if the OS refused removal.
func (s *SimulatedPlatform) FailUnregister(code Errno) {
	s.mu.Lock()
	s.unregisterErr = code
	s.mu.Unlock()
}

// SetCursor sets the position returned by CursorPosition.
func (s *SimulatedPlatform) SetCursor(pt Point) {
	s.mu.Lock()
	s.cursor = pt
	s.mu.Unlock()
}

// FailCursor makes CursorPosition fail with code. Zero clears it.
func (s *SimulatedPlatform) FailCursor(code Errno) {
	s.mu.Lock()
	s.cursorErr = code
	s.mu.Unlock()
}

// SetChainResult sets the value returned when a forward reaches the end of
// the chain.
func (s *SimulatedPlatform) SetChainResult(v uintptr) {
	s.mu.Lock()
	s.chainResult = v
	s.mu.Unlock()
}

func (s *SimulatedPlatform) Register(kind HookKind, slot int) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registers++
	if s.registerErr != ErrnoSuccess {
		return NoHandle, s.registerErr
	}
	s.nextHandle++
	h := s.nextHandle
	s.chain = append([]simHook{{handle: h, kind: kind, slot: slot}}, s.chain...)
	return h, nil
}

func (s *SimulatedPlatform) Unregister(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unregisters++
	if s.unregisterErr != ErrnoSuccess {
		return s.unregisterErr
	}
	for i, hk := range s.chain {
		if hk.handle == h {
			s.chain = append(s.chain[:i:i], s.chain[i+1:]...)
			return nil
		}
	}
	return ErrnoInvalidHandle
}

func (s *SimulatedPlatform) Forward(h Handle, code int32, wParam uintptr, rec *RawMouseRecord) uintptr {
	s.mu.Lock()
	s.forwards[h]++
	onForward := s.OnForward
	next := -1
	for i, hk := range s.chain {
		if hk.handle == h {
			next = i + 1
			break
		}
	}
	s.mu.Unlock()

	if onForward != nil {
		onForward(h, code, wParam)
	}
	if next < 0 {
		return s.result()
	}
	return s.callFrom(next, code, wParam, rec)
}

func (s *SimulatedPlatform) CursorPosition() (Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursorErr != ErrnoSuccess {
		return Point{}, s.cursorErr
	}
	return s.cursor, nil
}

// Inject delivers one callback to the head of the chain, as the OS would on
// mouse input, and returns the chain's result.
func (s *SimulatedPlatform) Inject(code int32, msg Message, rec RawMouseRecord) uintptr {
	return s.callFrom(0, code, uintptr(msg), &rec)
}

// callFrom invokes the first mouse hook at or after index i. Hooks whose
// binding has no owner are passed over the way an OS callback with a stale
// binding forwards without routing.
func (s *SimulatedPlatform) callFrom(i int, code int32, wParam uintptr, rec *RawMouseRecord) uintptr {
	for {
		s.mu.Lock()
		if i >= len(s.chain) {
			s.mu.Unlock()
			return s.result()
		}
		hk := s.chain[i]
		s.mu.Unlock()

		if hk.kind == KindMouse {
			if ret, ok := invoke(hk.slot, code, wParam, rec); ok {
				return ret
			}
		}
		i++
	}
}

func (s *SimulatedPlatform) result() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainResult
}

// Registers returns the number of Register calls.
func (s *SimulatedPlatform) Registers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers
}

// Unregisters returns the number of Unregister calls.
func (s *SimulatedPlatform) Unregisters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregisters
}

// Forwards returns the number of Forward calls made with h.
func (s *SimulatedPlatform) Forwards(h Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwards[h]
}

// Hooks returns the chain from head to tail.
func (s *SimulatedPlatform) Hooks() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Handle, len(s.chain))
	for i, hk := range s.chain {
		out[i] = hk.handle
	}
	return out
}
