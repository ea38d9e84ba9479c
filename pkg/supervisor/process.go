package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/logger"
	"github.com/betterqa-sync/agent-core/pkg/observability"
)

// State is one point in a managed child's lifecycle: Stopped -> Starting ->
// Running -> Crashed, or Running -> Stopping -> Stopped. No code in this
// package sets StateStalled; a stalled watcher is restarted by
// Supervisor.RestartIfNeeded through Stop and Start.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateCrashed  State = "crashed"
	StateStalled  State = "stalled"
	StateStopping State = "stopping"
)

// killGrace is how long Stop waits after requesting termination before
// escalating to a hard kill.
const killGrace = 5 * time.Second

// ChildSpec describes one managed subprocess.
type ChildSpec struct {
	Name string // logical name: "data_service", "window_watcher", ...
	Bin  string // binary name, resolved against the discovered install dir
	Args []string
}

// Child is one supervised tracker subprocess.
type Child struct {
	spec ChildSpec
	dir  string
	log  logger.Logger
	o11y observability.Observability

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	exited  chan struct{}
	exitErr error
}

func newChild(spec ChildSpec, dir string, log logger.Logger, o11y observability.Observability) *Child {
	return &Child{spec: spec, dir: dir, log: log, o11y: o11y, state: StateStopped}
}

// State returns the child's current lifecycle state.
func (c *Child) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the child process if it is not already running. A non-nil
// args overrides the ChildSpec's own arguments (used by SetAFKTimeout to
// relaunch with a new --timeout value).
func (c *Child) Start(args []string) error {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateStarting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStarting
	c.mu.Unlock()

	binPath := c.spec.Bin
	if c.dir != "" {
		binPath = filepath.Join(c.dir, binaryName(c.spec.Bin))
	}
	if args == nil {
		args = c.spec.Args
	}

	cmd := exec.Command(binPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("supervisor: child %s: stdout pipe: %w", c.spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("supervisor: child %s: stderr pipe: %w", c.spec.Name, err)
	}

	if err := cmd.Start(); err != nil {
		c.mu.Lock()
		c.state = StateCrashed
		c.mu.Unlock()
		return fmt.Errorf("supervisor: start child %s: %w", c.spec.Name, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.state = StateRunning
	c.exited = make(chan struct{})
	c.mu.Unlock()

	go c.drain(stdout, "stdout")
	go c.drain(stderr, "stderr")
	go c.wait()

	return nil
}

func (c *Child) drain(r io.Reader, stream string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.log.Info(scanner.Text(), logger.String("child", c.spec.Name), logger.String("stream", stream))
	}
}

func (c *Child) wait() {
	err := c.cmd.Wait()
	c.mu.Lock()
	c.exitErr = err
	if c.state != StateStopping {
		c.state = StateCrashed
	} else {
		c.state = StateStopped
	}
	close(c.exited)
	c.mu.Unlock()
}

// Exited returns a channel closed when the process has exited, or nil if
// the child was never started.
func (c *Child) Exited() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

// Alive reports whether the process is currently running.
func (c *Child) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRunning || c.state == StateStarting
}

// Stop requests graceful termination, escalating to a hard kill after
// killGrace if the process has not exited.
func (c *Child) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StateStarting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	cmd := c.cmd
	exited := c.exited
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = terminate(cmd.Process)

	select {
	case <-exited:
		return nil
	case <-time.After(killGrace):
		c.o11y.Logger().Warn(ctx, "supervisor: child did not stop gracefully, killing",
			observability.String("child", c.spec.Name))
		_ = cmd.Process.Kill()
		<-exited
		return nil
	}
}
