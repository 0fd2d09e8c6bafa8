//go:build !windows && !linux

package msgloop

// currentThreadID is unknown here, so Do never runs work inline.
func currentThreadID() uint64 {
	return 0
}
