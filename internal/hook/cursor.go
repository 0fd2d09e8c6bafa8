package hook

// CursorPosition reads the pointer location from p. It does not depend on
// any hook being installed.
func CursorPosition(p Platform) (Point, error) {
	pt, err := p.CursorPosition()
	if err != nil {
		return Point{}, &CursorQueryError{Code: codeOf(err)}
	}
	return pt, nil
}

// CursorPosition reads the pointer location from the manager's platform.
func (m *Manager) CursorPosition() (Point, error) {
	return CursorPosition(m.platform)
}
