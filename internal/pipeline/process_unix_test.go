//go:build !windows

package pipeline

import (
	"os/exec"
	"strings"
	"testing"
	"time"
)

func shell(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("no sh on PATH: %v", err)
	}
	return exec.Command(sh, "-c", script)
}

func TestExecProcess_CollectsOutput(t *testing.T) {
	p, err := startProcess(shell(t, `printf 'out_time_us=1000000\n'; printf 'warn line\n' >&2; exit 3`))
	if err != nil {
		t.Fatalf("startProcess() error = %v", err)
	}

	var lines []string
	for l := range p.Lines() {
		lines = append(lines, l)
	}
	res := p.Wait()

	if res.ExitCode != 3 || res.IsSuccess() {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	joined := strings.Join(lines, "|")
	if !strings.Contains(joined, "out_time_us=1000000") || !strings.Contains(joined, "warn line") {
		t.Errorf("lines = %q, want stdout and stderr", lines)
	}
	if !strings.Contains(res.OutputTail, "warn line") {
		t.Errorf("OutputTail = %q", res.OutputTail)
	}
}

func TestExecProcess_WaitWithoutReading(t *testing.T) {
	// More output than the line buffer holds; Wait must not block on it.
	p, err := startProcess(shell(t, `i=0; while [ $i -lt 500 ]; do echo line $i; i=$((i+1)); done`))
	if err != nil {
		t.Fatalf("startProcess() error = %v", err)
	}

	done := make(chan RunResult, 1)
	go func() { done <- p.Wait() }()

	// Drain concurrently until Wait returns, as the supervisor does.
	timeout := time.After(10 * time.Second)
	for {
		select {
		case res := <-done:
			if res.ExitCode != 0 {
				t.Errorf("ExitCode = %d, want 0", res.ExitCode)
			}
			if !strings.Contains(res.OutputTail, "line 499") {
				t.Errorf("OutputTail misses the last line: %q", res.OutputTail)
			}
			return
		case <-p.Lines():
		case <-timeout:
			t.Fatal("Wait did not return")
		}
	}
}

func TestExecProcess_SuspendResumeKill(t *testing.T) {
	p, err := startProcess(shell(t, `sleep 30`))
	if err != nil {
		t.Fatalf("startProcess() error = %v", err)
	}
	if err := p.Suspend(); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	res := p.Wait()
	if !res.Killed || res.IsSuccess() {
		t.Errorf("result = %+v, want killed", res)
	}
	if err := p.Kill(); err != nil {
		t.Errorf("second Kill() error = %v", err)
	}
}
