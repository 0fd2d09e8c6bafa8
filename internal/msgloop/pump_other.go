//go:build !windows

package msgloop

// chanPump stands in for a message queue where hooks do not need one. It
// still gives the loop a dedicated locked thread.
type chanPump struct {
	wakeCh chan struct{}
	quitCh chan struct{}
}

func newPump() pump {
	return &chanPump{
		wakeCh: make(chan struct{}, 1),
		quitCh: make(chan struct{}),
	}
}

func (p *chanPump) init() error { return nil }

func (p *chanPump) run(drain func()) {
	for {
		select {
		case <-p.wakeCh:
			drain()
		case <-p.quitCh:
			return
		}
	}
}

func (p *chanPump) wake() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *chanPump) quit() error {
	close(p.quitCh)
	return nil
}
