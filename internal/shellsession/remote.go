package shellsession

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

// defaultKeyFiles is the order remote sessions try private keys in when
// none is specified.
var defaultKeyFiles = []string{"id_ed25519", "id_rsa", "id_ecdsa", "id_dsa"}

// RemoteAuth selects how RemoteSession authenticates.
type RemoteAuth struct {
	Password string // used if non-empty
	KeyPath  string // explicit private key path; empty triggers defaultKeyFiles discovery
}

// RemoteSession is an SSH-backed shell session. Each command opens its own
// session channel wrapped so the remote PID can be captured and used for
// cancellation, since SSH has no native "kill this specific command"
// primitive.
type RemoteSession struct {
	client *ssh.Client
	mu     sync.Mutex
	closed atomic.Bool

	currentPID   atomic.Int64
	cancelSignal atomic.Bool
}

// DialRemote opens an SSH connection to addr (host:port) authenticating as
// user via auth.
func DialRemote(addr, user string, auth RemoteAuth) (*RemoteSession, error) {
	var authMethods []ssh.AuthMethod
	if auth.Password != "" {
		authMethods = append(authMethods, ssh.Password(auth.Password))
	}
	if signer, err := loadKey(auth.KeyPath); err == nil && signer != nil {
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("shellsession: no usable SSH auth method (password empty, no key found)")
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // host keys are not verified; no known_hosts file is consulted
		Timeout:         10 * time.Second,
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("shellsession: ssh dial %s: %w", addr, err)
	}
	return &RemoteSession{client: client}, nil
}

// loadKey resolves an SSH private key. If path is empty, it tries
// id_ed25519, id_rsa, id_ecdsa, id_dsa under ~/.ssh in that order.
func loadKey(path string) (ssh.Signer, error) {
	candidates := []string{path}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		candidates = nil
		for _, name := range defaultKeyFiles {
			candidates = append(candidates, filepath.Join(home, ".ssh", name))
		}
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			continue
		}
		return signer, nil
	}
	return nil, fmt.Errorf("shellsession: no usable private key found")
}

func (s *RemoteSession) IsAlive() bool {
	if s.closed.Load() {
		return false
	}
	_, _, err := s.client.SendRequest("keepalive@agentrun", true, nil)
	return err == nil
}

func (s *RemoteSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

// Cancel opens a second channel that runs `kill -9 <pid>` against the
// remote command's captured PID.
func (s *RemoteSession) Cancel() {
	s.cancelSignal.Store(true)
	pid := s.currentPID.Load()
	if pid == 0 {
		return
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return
	}
	defer sess.Close()
	_ = sess.Run("kill -9 " + strconv.FormatInt(pid, 10))
}

// wrapCommand wraps command so the remote shell prints its own PID as the
// first line, letting Cancel later target exactly this process:
// `bash -c 'echo "PID:$$"; exec bash -c "<escaped>"'`.
func wrapCommand(command string) string {
	escaped := strings.ReplaceAll(command, `"`, `\"`)
	return fmt.Sprintf(`bash -c 'echo "PID:$$"; exec bash -c "%s"'`, escaped)
}

func (s *RemoteSession) Execute(command string, timeout time.Duration) (CommandOutput, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if s.closed.Load() {
		return CommandOutput{}, ErrSessionClosed
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return CommandOutput{}, err
	}
	defer sess.Close()

	marker := generateMarker()
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return CommandOutput{}, err
	}

	start := time.Now()
	full := wrapCommand(command) + "; echo \"" + marker + "\""
	if err := sess.Start(full); err != nil {
		return CommandOutput{}, err
	}

	raw, pid, err := readRemoteUntilMarker(stdout, marker, timeout)
	if pid != 0 {
		s.currentPID.Store(pid)
	}
	waitErr := sess.Wait()
	if err != nil {
		if s.cancelSignal.Load() {
			s.cancelSignal.Store(false)
			return CommandOutput{Output: cleanShellOutput(raw, command, marker), Duration: time.Since(start)}, nil
		}
		return CommandOutput{}, err
	}

	return CommandOutput{
		Output:   stripPIDLine(cleanShellOutput(raw, command, marker)),
		ExitCode: remoteExitCode(waitErr),
		Duration: time.Since(start),
	}, nil
}

// remoteExitCode recovers the SSH exit status from sess.Wait(): nil means
// 0, an ssh.ExitError carries the remote code, anything else (signal,
// missing status) stays best-effort nil.
func remoteExitCode(waitErr error) *int {
	if waitErr == nil {
		code := 0
		return &code
	}
	if exitErr, ok := waitErr.(*ssh.ExitError); ok {
		code := exitErr.ExitStatus()
		return &code
	}
	return nil
}

func (s *RemoteSession) ExecuteStreaming(command string, timeout time.Duration) (<-chan OutputChunk, <-chan streamResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if s.closed.Load() {
		return nil, nil, ErrSessionClosed
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, nil, err
	}

	marker := generateMarker()
	full := wrapCommand(command) + "; echo \"" + marker + "\""
	if err := sess.Start(full); err != nil {
		sess.Close()
		return nil, nil, err
	}

	chunks := make(chan OutputChunk, 16)
	done := make(chan streamResult, 1)

	go func() {
		defer sess.Close()
		defer close(chunks)

		start := time.Now()
		buf := make([]byte, 4096)
		var full strings.Builder
		var pending strings.Builder
		lastSend := time.Now().Add(-minSendInterval)

		for {
			if time.Since(start) > timeout {
				chunks <- OutputChunk{Text: "\n[TIMEOUT]\n", IsFinal: true}
				done <- streamResult{Err: &TimeoutError{Timeout: timeout}}
				return
			}
			n, rerr := stdout.Read(buf)
			if n > 0 {
				full.Write(buf[:n])
				pending.WriteString(string(buf[:n]))
				if idx := lastNewline(pending.String()); idx >= 0 {
					text := pending.String()
					complete := text[:idx+1]
					pending.Reset()
					pending.WriteString(text[idx+1:])
					if time.Since(lastSend) < minSendInterval {
						time.Sleep(minSendInterval - time.Since(lastSend))
					}
					chunks <- OutputChunk{Text: complete}
					lastSend = time.Now()
				}
				// The exec channel has no PTY, so the command is not
				// echoed back: the marker appears exactly once, as the
				// output of the trailing echo.
				if countMarkerOccurrences(full.String(), marker) >= 1 {
					break
				}
			}
			if rerr != nil {
				break
			}
		}
		if pending.Len() > 0 {
			chunks <- OutputChunk{Text: pending.String()}
		}
		chunks <- OutputChunk{IsFinal: true}

		waitErr := sess.Wait()
		output := stripPIDLine(cleanShellOutput(full.String(), command, marker))
		done <- streamResult{Output: CommandOutput{
			Output:   output,
			ExitCode: remoteExitCode(waitErr),
			Duration: time.Since(start),
		}}
	}()

	return chunks, done, nil
}

// readRemoteUntilMarker reads from r until marker appears, capturing the
// `PID:<n>` line the wrapped command prints first. Unlike the local PTY
// path, the SSH exec channel does not echo the command, so the marker
// shows up exactly once — as the trailing echo's own output.
func readRemoteUntilMarker(r interface{ Read([]byte) (int, error) }, marker string, timeout time.Duration) (string, int64, error) {
	start := time.Now()
	buf := make([]byte, 4096)
	var out strings.Builder
	var pid int64

	for {
		if time.Since(start) > timeout {
			return out.String(), pid, &TimeoutError{Timeout: timeout}
		}
		n, err := r.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
			if pid == 0 {
				if p, ok := extractPID(out.String()); ok {
					pid = p
				}
			}
			if countMarkerOccurrences(out.String(), marker) >= 1 {
				return out.String(), pid, nil
			}
		}
		if err != nil {
			return out.String(), pid, err
		}
	}
}

func extractPID(s string) (int64, bool) {
	idx := strings.Index(s, "PID:")
	if idx < 0 {
		return 0, false
	}
	rest := s[idx+4:]
	end := strings.IndexAny(rest, "\r\n")
	if end < 0 {
		return 0, false
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(rest[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return pid, true
}

func stripPIDLine(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "PID:") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
