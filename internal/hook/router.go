package hook

// route handles one low-level mouse callback. It never consumes the event:
// every path ends in exactly one Forward call whose result is returned.
func (m *Manager) route(code int32, wParam uintptr, rec *RawMouseRecord) uintptr {
	if code >= 0 && rec != nil && m.events.Len() > 0 {
		m.deliver(Message(wParam), rec)
		m.observer.Callback(code, true)
	} else {
		m.observer.Callback(code, false)
	}
	return m.platform.Forward(Handle(m.handle.Load()), code, wParam, rec)
}

func (m *Manager) deliver(msg Message, rec *RawMouseRecord) {
	defer func() {
		// Translation is pure; this only guards against a broken record.
		if r := recover(); r != nil {
			m.logger.Error("mouse event translation panicked", "panic", r)
		}
	}()
	ev := Translate(msg, rec)
	if err := m.events.Publish(ev); err != nil {
		m.observer.DeliveryFailed(err)
		m.logger.Warn("mouse event delivery failed", "message", msg, "error", err)
	}
}
