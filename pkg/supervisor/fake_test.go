package supervisor

import (
	"sync"
	"syscall"
)

type fakeChild struct {
	mu           sync.Mutex
	pid          int
	signals      []syscall.Signal
	disconnected bool
	killed       bool
}

func (c *fakeChild) Pid() int {
	return c.pid
}

func (c *fakeChild) Signal(sig syscall.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.signals = append(c.signals, sig)
	return nil
}

func (c *fakeChild) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnected = true
	return nil
}

func (c *fakeChild) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.killed = true
	return nil
}

func (c *fakeChild) Signals() []syscall.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]syscall.Signal(nil), c.signals...)
}

// fakeSpawner hands out fake children with increasing pids. When onSpawn is
// set it runs in its own goroutine after every spawn.
type fakeSpawner struct {
	mu       sync.Mutex
	nextPid  int
	children map[int]*fakeChild
	onSpawn  func(id int, child *fakeChild, emit func(Event))
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		nextPid:  1000,
		children: make(map[int]*fakeChild),
	}
}

func (s *fakeSpawner) Spawn(id int, emit func(Event)) (Child, error) {
	s.mu.Lock()
	s.nextPid++
	child := &fakeChild{pid: s.nextPid}
	s.children[id] = child
	onSpawn := s.onSpawn
	s.mu.Unlock()

	if onSpawn != nil {
		go onSpawn(id, child, emit)
	}

	return child, nil
}

func (s *fakeSpawner) Child(id int) *fakeChild {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.children[id]
}

func (s *fakeSpawner) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.children)
}
