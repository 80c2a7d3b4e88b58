package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// drainTimeout bounds how long Wait waits for the output reader after the
// process exits; a grandchild holding the pipe open must not hang a run.
const drainTimeout = 2 * time.Second

// execProcess is a Process backed by os/exec.
type execProcess struct {
	cmd   *exec.Cmd
	r     *os.File
	lines chan string
	start time.Time

	stopSend   chan struct{}
	readerDone chan struct{}
	killed     atomic.Bool

	mu   sync.Mutex
	tail tailBuffer
}

func startProcess(cmd *exec.Cmd) (*execProcess, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = w

	p := &execProcess{
		cmd:        cmd,
		r:          r,
		lines:      make(chan string, lineBuffer),
		stopSend:   make(chan struct{}),
		readerDone: make(chan struct{}),
		tail:       tailBuffer{limit: maxTailBytes},
	}

	p.start = time.Now()
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	// The child holds its own copy of the write end.
	w.Close()

	go p.read()
	return p, nil
}

// read is the only reader of the pipe.
func (p *execProcess) read() {
	defer close(p.readerDone)
	defer close(p.lines)

	sc := bufio.NewScanner(p.r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanLinesOrCR)

	sending := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " ")
		if line == "" {
			continue
		}
		p.mu.Lock()
		p.tail.add(line)
		p.mu.Unlock()

		if !sending {
			continue
		}
		select {
		case p.lines <- line:
		case <-p.stopSend:
			sending = false
		}
	}
}

func (p *execProcess) Lines() <-chan string { return p.lines }

func (p *execProcess) Wait() RunResult {
	err := p.cmd.Wait()
	elapsed := time.Since(p.start)

	// Remaining lines still reach the tail; nobody needs them delivered.
	close(p.stopSend)
	select {
	case <-p.readerDone:
	case <-time.After(drainTimeout):
	}
	p.r.Close()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	p.mu.Lock()
	tail := p.tail.String()
	p.mu.Unlock()

	return RunResult{
		ExitCode:   exitCode,
		OutputTail: tail,
		Duration:   elapsed,
		Killed:     p.killed.Load(),
	}
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	p.killed.Store(true)
	// SIGKILL also ends a suspended process.
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Suspend() error { return suspend(p.cmd.Process) }
func (p *execProcess) Resume() error  { return resume(p.cmd.Process) }

// scanLinesOrCR splits on \n, \r\n or a lone \r; ffmpeg rewrites its stats
// line with carriage returns.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Might be the first half of \r\n; wait for more.
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the most recent lines within limit bytes.
type tailBuffer struct {
	limit int
	size  int
	lines []string
}

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	t.size += len(line) + 1
	for t.size > t.limit && len(t.lines) > 1 {
		t.size -= len(t.lines[0]) + 1
		t.lines = t.lines[1:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
