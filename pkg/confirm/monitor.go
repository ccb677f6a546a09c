package confirm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Key is one recognized keystroke.
type Key int

const (
	KeyApprove Key = iota + 1
	KeyDeny
	KeyQuit
)

func (k Key) String() string {
	switch k {
	case KeyApprove:
		return "approve"
	case KeyDeny:
		return "deny"
	case KeyQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Verdict maps an answer key to a verdict. KeyQuit has none.
func (k Key) Verdict() (Verdict, bool) {
	switch k {
	case KeyApprove:
		return Approve, true
	case KeyDeny:
		return Deny, true
	default:
		return 0, false
	}
}

const (
	ctrlC = 0x03
	ctrlD = 0x04
)

// Monitor owns the confirmation input stream and emits Keys.
//
// When the input is a terminal it is switched to raw mode so single
// keystrokes are seen without Enter; otherwise input is read line by line.
type Monitor struct {
	in     io.Reader
	fd     int
	isTTY  bool
	logger zerolog.Logger

	keys chan Key
	stop chan struct{}

	mu       sync.Mutex
	state    *term.State
	started  bool
	stopOnce sync.Once
}

// NewMonitor creates a Monitor reading from in.
func NewMonitor(in io.Reader, logger zerolog.Logger) *Monitor {
	m := &Monitor{
		in:     in,
		fd:     -1,
		logger: logger.With().Str("component", "monitor").Logger(),
		keys:   make(chan Key, 8),
		stop:   make(chan struct{}),
	}
	if f, ok := in.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			m.fd = fd
			m.isTTY = true
		}
	}
	return m
}

// Raw reports whether the monitor reads single keystrokes from a raw-mode
// terminal. Output written while raw needs explicit carriage returns.
func (m *Monitor) Raw() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != nil
}

// Keys returns the key events. Reading continues after a quit key so a
// later one can still be seen. The channel is closed when the input ends.
func (m *Monitor) Keys() <-chan Key {
	return m.keys
}

// Start switches the terminal to raw mode, if there is one, and begins
// reading.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("monitor already started")
	}
	m.started = true

	if m.isTTY {
		state, err := term.MakeRaw(m.fd)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		m.state = state
		go m.readKeys()
	} else {
		go m.readLines()
	}

	m.logger.Debug().Bool("raw", m.isTTY).Msg("Input monitor started")
	return nil
}

// Stop restores the terminal. The blocked read is abandoned.
func (m *Monitor) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stop)

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state != nil {
			err = term.Restore(m.fd, m.state)
			m.state = nil
		}
	})
	return err
}

func (m *Monitor) emit(k Key) bool {
	select {
	case m.keys <- k:
		return true
	case <-m.stop:
		return false
	}
}

func (m *Monitor) readKeys() {
	defer close(m.keys)

	buf := make([]byte, 1)
	for {
		n, err := m.in.Read(buf)
		if n == 1 {
			if k, ok := keyFromByte(buf[0]); ok {
				if !m.emit(k) {
					return
				}
			}
		}
		if err != nil {
			m.endOfInput(err)
			return
		}
	}
}

func (m *Monitor) readLines() {
	defer close(m.keys)

	scanner := bufio.NewScanner(m.in)
	for scanner.Scan() {
		k, ok := keyFromLine(scanner.Text())
		if !ok {
			m.logger.Debug().Str("input", scanner.Text()).Msg("Ignoring unrecognized input")
			continue
		}
		if !m.emit(k) {
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	m.endOfInput(err)
}

// endOfInput treats a closed or failed input stream as a request to quit.
func (m *Monitor) endOfInput(err error) {
	if !errors.Is(err, io.EOF) {
		m.logger.Warn().Err(err).Msg("Input read failed")
	}
	m.emit(KeyQuit)
}

func keyFromByte(b byte) (Key, bool) {
	switch b {
	case 'y', 'Y':
		return KeyApprove, true
	case 'n', 'N':
		return KeyDeny, true
	case 'q', 'Q', ctrlC, ctrlD:
		return KeyQuit, true
	default:
		return 0, false
	}
}

func keyFromLine(line string) (Key, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return KeyApprove, true
	case "n", "no":
		return KeyDeny, true
	case "q", "quit":
		return KeyQuit, true
	default:
		return 0, false
	}
}
