package action

import (
	"fmt"
	"unicode/utf8"
)

// Kind identifies the variant of an Action. Its value is the wire "type".
type Kind string

const (
	KindExecuteCommand Kind = "exec"
	KindReadFile       Kind = "read_file"
	KindWriteFile      Kind = "write_file"
)

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// Action is a single remote request. Implementations are ExecuteCommand,
// ReadFile and WriteFile.
type Action interface {
	// ID returns the relay-assigned identifier, unique within a session.
	ID() string
	// Kind returns the variant tag.
	Kind() Kind
	// Summary returns a one-line human readable description.
	Summary() string
}

// ExecuteCommand asks the agent to run a shell command.
type ExecuteCommand struct {
	ActionID string
	Command  string
}

func (a ExecuteCommand) ID() string      { return a.ActionID }
func (a ExecuteCommand) Kind() Kind      { return KindExecuteCommand }
func (a ExecuteCommand) Summary() string { return a.Command }

// ReadFile asks the agent for the contents of a file.
type ReadFile struct {
	ActionID string
	Path     string
}

func (a ReadFile) ID() string      { return a.ActionID }
func (a ReadFile) Kind() Kind      { return KindReadFile }
func (a ReadFile) Summary() string { return a.Path }

// WriteFile asks the agent to replace the contents of a file.
type WriteFile struct {
	ActionID string
	Path     string
	Content  []byte
}

func (a WriteFile) ID() string { return a.ActionID }
func (a WriteFile) Kind() Kind { return KindWriteFile }

func (a WriteFile) Summary() string {
	if utf8.Valid(a.Content) && len(a.Content) <= 60 {
		return fmt.Sprintf("%s %q", a.Path, a.Content)
	}
	return fmt.Sprintf("%s (%d bytes)", a.Path, len(a.Content))
}
