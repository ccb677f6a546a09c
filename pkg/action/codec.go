package action

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Content encodings accepted and produced on the wire.
const (
	EncodingUTF8   = "utf8"
	EncodingBase64 = "base64"
)

// Request is the wire form of an inbound message (relay → agent).
type Request struct {
	ID       string  `json:"id"`
	Type     Kind    `json:"type"`
	Command  string  `json:"command,omitempty"`
	Path     string  `json:"path,omitempty"`
	Content  *string `json:"content,omitempty"`
	Encoding string  `json:"encoding,omitempty"`
}

// Response is the wire form of an outbound message (agent → relay).
// Each byte stream carries its own encoding marker; an empty marker means
// plain UTF-8.
type Response struct {
	ID             string  `json:"id"`
	Status         Status  `json:"status"`
	Stdout         string  `json:"stdout,omitempty"`
	StdoutEncoding string  `json:"stdout_encoding,omitempty"`
	Stderr         string  `json:"stderr,omitempty"`
	StderrEncoding string  `json:"stderr_encoding,omitempty"`
	ExitCode       *int    `json:"exit_code,omitempty"`
	Content        *string `json:"content,omitempty"`
	Encoding       string  `json:"encoding,omitempty"`
	Truncated      bool    `json:"truncated,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Decode parses one inbound message into an Action. Any problem is reported
// as a *ProtocolError.
func Decode(data []byte) (Action, error) {
	if err := validateRequest(data); err != nil {
		return nil, protocolErrorf(peekID(data), err, "invalid request")
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, protocolErrorf(peekID(data), err, "invalid request")
	}

	return req.Action()
}

// Action converts a wire request into its Action variant.
func (r Request) Action() (Action, error) {
	if r.ID == "" {
		return nil, protocolErrorf("", nil, "missing id")
	}

	switch r.Type {
	case KindExecuteCommand:
		if r.Command == "" {
			return nil, protocolErrorf(r.ID, nil, "exec requires a command")
		}
		return ExecuteCommand{ActionID: r.ID, Command: r.Command}, nil

	case KindReadFile:
		if r.Path == "" {
			return nil, protocolErrorf(r.ID, nil, "read_file requires a path")
		}
		return ReadFile{ActionID: r.ID, Path: r.Path}, nil

	case KindWriteFile:
		if r.Path == "" {
			return nil, protocolErrorf(r.ID, nil, "write_file requires a path")
		}
		if r.Content == nil {
			return nil, protocolErrorf(r.ID, nil, "write_file requires content")
		}
		content, err := decodeContent(*r.Content, r.Encoding)
		if err != nil {
			return nil, protocolErrorf(r.ID, err, "invalid content")
		}
		return WriteFile{ActionID: r.ID, Path: r.Path, Content: content}, nil

	default:
		return nil, protocolErrorf(r.ID, nil, "unsupported type %q", r.Type)
	}
}

// NewRequest builds the wire form of an Action.
func NewRequest(a Action) Request {
	req := Request{ID: a.ID(), Type: a.Kind()}
	switch v := a.(type) {
	case ExecuteCommand:
		req.Command = v.Command
	case ReadFile:
		req.Path = v.Path
	case WriteFile:
		req.Path = v.Path
		content, encoding := encodeContent(v.Content)
		req.Content = &content
		req.Encoding = encoding
	}
	return req
}

// EncodeAction serializes an Action to its wire form.
func EncodeAction(a Action) ([]byte, error) {
	return json.Marshal(NewRequest(a))
}

// NewResponse builds the wire form of a Result.
func NewResponse(r Result) Response {
	resp := Response{
		ID:     r.ActionID,
		Status: r.Status(),
	}
	if r.Denied {
		return resp
	}

	out := r.Outcome
	resp.Stdout, resp.StdoutEncoding = encodeContent([]byte(out.Stdout))
	resp.Stderr, resp.StderrEncoding = encodeContent([]byte(out.Stderr))
	resp.ExitCode = out.ExitCode
	resp.Truncated = out.Truncated
	resp.Error = out.Err
	if out.Content != nil {
		content, encoding := encodeContent(out.Content)
		resp.Content = &content
		resp.Encoding = encoding
	}
	return resp
}

// Result converts a wire response back into a Result.
func (r Response) Result() (Result, error) {
	switch r.Status {
	case StatusDenied:
		return Denied(r.ID), nil
	case StatusOK, StatusError:
	default:
		return Result{}, fmt.Errorf("unknown status %q", r.Status)
	}

	stdout, err := decodeContent(r.Stdout, r.StdoutEncoding)
	if err != nil {
		return Result{}, fmt.Errorf("invalid stdout: %w", err)
	}
	stderr, err := decodeContent(r.Stderr, r.StderrEncoding)
	if err != nil {
		return Result{}, fmt.Errorf("invalid stderr: %w", err)
	}

	out := Outcome{
		Success:   r.Status == StatusOK,
		Stdout:    string(stdout),
		Stderr:    string(stderr),
		ExitCode:  r.ExitCode,
		Truncated: r.Truncated,
		Err:       r.Error,
	}
	if r.Content != nil {
		content, err := decodeContent(*r.Content, r.Encoding)
		if err != nil {
			return Result{}, fmt.Errorf("invalid content: %w", err)
		}
		out.Content = content
	}
	return Completed(r.ID, out), nil
}

// EncodeResult serializes a Result to its wire form.
func EncodeResult(r Result) ([]byte, error) {
	return json.Marshal(NewResponse(r))
}

// DecodeResult parses a wire response.
func DecodeResult(data []byte) (Result, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Result{}, err
	}
	return resp.Result()
}

// encodeContent picks the plain encoding for valid UTF-8 and base64 for
// anything else.
func encodeContent(b []byte) (string, string) {
	if utf8.Valid(b) {
		return string(b), ""
	}
	return base64.StdEncoding.EncodeToString(b), EncodingBase64
}

func decodeContent(s, encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingUTF8:
		return []byte(s), nil
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

// peekID extracts the id of a message that failed validation, if it has one.
func peekID(data []byte) string {
	var probe struct {
		ID interface{} `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	id, _ := probe.ID.(string)
	return id
}
