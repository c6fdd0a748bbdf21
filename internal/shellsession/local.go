package shellsession

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
)

// LocalSession is a persistent local PTY shell session. Environment
// variables, working directory, aliases and shell functions set by one
// Execute call remain visible to subsequent calls, since all commands run
// inside the same long-lived interactive shell process.
type LocalSession struct {
	mu     sync.Mutex
	ptmx   *os.File
	cmd    *exec.Cmd
	closed atomic.Bool
	cancel atomic.Bool
}

// DetectShell returns $SHELL (or $COMSPEC on Windows), falling back to
// /bin/sh (cmd.exe on Windows).
func DetectShell() string {
	if runtime.GOOS == "windows" {
		if s := os.Getenv("COMSPEC"); s != "" {
			return s
		}
		return "cmd.exe"
	}
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/sh"
}

// NewLocalSession spawns shell (DetectShell() if empty) as an interactive
// PTY-attached process rooted at dir (current directory if empty). On
// platforms without PTY support, it returns ErrPtyError — no best-effort
// one-shot fallback is offered.
func NewLocalSession(shell, dir string) (*LocalSession, error) {
	if shell == "" {
		shell = DetectShell()
	}
	args := []string{}
	if runtime.GOOS != "windows" {
		args = append(args, "-i")
	}
	cmd := exec.Command(shell, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, errors.Join(ErrPtyError, err)
	}
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 24, Cols: 80})

	return &LocalSession{ptmx: ptmx, cmd: cmd}, nil
}

func (s *LocalSession) IsAlive() bool {
	if s.closed.Load() {
		return false
	}
	return s.cmd.ProcessState == nil
}

func (s *LocalSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return nil
}

// Cancel kills the shell process itself (SIGKILL), which ends the session.
// A read loop in progress that sees the cancel flag returns the output
// gathered so far without an error; one whose PTY read fails first
// returns that read error.
func (s *LocalSession) Cancel() {
	s.cancel.Store(true)
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func (s *LocalSession) Execute(command string, timeout time.Duration) (CommandOutput, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if s.closed.Load() {
		return CommandOutput{}, ErrSessionClosed
	}

	marker := generateMarker()
	start := time.Now()

	s.mu.Lock()
	if _, err := s.ptmx.WriteString(command + "\necho \"" + marker + "\"\n"); err != nil {
		s.mu.Unlock()
		return CommandOutput{}, err
	}
	s.mu.Unlock()

	raw, err := s.readUntilMarker(marker, timeout, start)
	if err != nil {
		return CommandOutput{}, err
	}

	return CommandOutput{
		Output:   cleanShellOutput(raw, command, marker),
		Duration: time.Since(start),
	}, nil
}

// readUntilMarker polls the PTY for output until marker has appeared
// twice, the timeout elapses, or the session is cancelled.
func (s *LocalSession) readUntilMarker(marker string, timeout time.Duration, start time.Time) (string, error) {
	buf := make([]byte, 4096)
	var output strings.Builder

	for {
		if s.cancel.Load() {
			s.cancel.Store(false)
			return output.String(), nil
		}
		if time.Since(start) > timeout {
			return output.String(), &TimeoutError{Timeout: timeout}
		}

		_ = s.ptmx.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			output.Write(buf[:n])
			if countMarkerOccurrences(output.String(), marker) >= 2 {
				return output.String(), nil
			}
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			// EOF / closed pty: the shell process exited.
			return output.String(), err
		}
	}
}

func (s *LocalSession) ExecuteStreaming(command string, timeout time.Duration) (<-chan OutputChunk, <-chan streamResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if s.closed.Load() {
		return nil, nil, ErrSessionClosed
	}

	marker := generateMarker()
	chunks := make(chan OutputChunk, 16)
	done := make(chan streamResult, 1)

	s.mu.Lock()
	if _, err := s.ptmx.WriteString(command + "\necho \"" + marker + "\"\n"); err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	s.mu.Unlock()

	go s.streamLoop(command, marker, timeout, chunks, done)
	return chunks, done, nil
}

func (s *LocalSession) streamLoop(command, marker string, timeout time.Duration, chunks chan<- OutputChunk, done chan<- streamResult) {
	defer close(chunks)

	start := time.Now()
	buf := make([]byte, 4096)
	var full strings.Builder
	var pending strings.Builder
	lastSend := time.Now().Add(-minSendInterval)
	lastPartialArrival := time.Now()

	flushLines := func(force bool) {
		text := pending.String()
		idx := lastNewline(text)
		if idx < 0 {
			if force && text != "" && time.Since(lastPartialArrival) >= partialLineDelay && time.Since(lastSend) >= minSendInterval {
				chunks <- OutputChunk{Text: text}
				pending.Reset()
				lastSend = time.Now()
			}
			return
		}
		complete := text[:idx+1]
		rest := text[idx+1:]
		pending.Reset()
		pending.WriteString(rest)
		if time.Since(lastSend) < minSendInterval {
			time.Sleep(minSendInterval - time.Since(lastSend))
		}
		chunks <- OutputChunk{Text: complete}
		lastSend = time.Now()
	}

	for {
		if s.cancel.Load() {
			s.cancel.Store(false)
			break
		}
		if time.Since(start) > timeout {
			chunks <- OutputChunk{Text: "\n[TIMEOUT]\n", IsFinal: true}
			done <- streamResult{Err: &TimeoutError{Timeout: timeout}}
			return
		}

		_ = s.ptmx.SetReadDeadline(time.Now().Add(30 * time.Millisecond))
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			full.Write(buf[:n])
			pending.WriteString(string(buf[:n]))
			lastPartialArrival = time.Now()
			flushLines(false)
			if countMarkerOccurrences(full.String(), marker) >= 2 {
				break
			}
		}
		if err != nil {
			if os.IsTimeout(err) {
				flushLines(true)
				continue
			}
			done <- streamResult{Err: err}
			return
		}
	}

	flushLines(true)
	chunks <- OutputChunk{IsFinal: true}

	output := cleanShellOutput(full.String(), command, marker)
	done <- streamResult{Output: CommandOutput{Output: output, Duration: time.Since(start)}}
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}
