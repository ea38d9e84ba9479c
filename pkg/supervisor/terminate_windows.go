//go:build windows

package supervisor

import "os"

// terminate has no graceful-signal equivalent on Windows for arbitrary
// child processes, so it goes straight to Kill; Stop's escalation timeout
// still applies but will resolve immediately.
func terminate(p *os.Process) error {
	return p.Kill()
}
