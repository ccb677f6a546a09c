package confirm

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/harun/serverwitch/pkg/action"
)

// Prompter renders confirmation prompts and action status lines.
type Prompter struct {
	out io.Writer
	raw bool

	banner   lipgloss.Style
	sigil    lipgloss.Style
	subject  lipgloss.Style
	hint     lipgloss.Style
	approved lipgloss.Style
	denied   lipgloss.Style
	failed   lipgloss.Style
	muted    lipgloss.Style
}

// NewPrompter creates a Prompter writing to out.
func NewPrompter(out io.Writer) *Prompter {
	r := lipgloss.NewRenderer(out)
	return &Prompter{
		out:      out,
		banner:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		sigil:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		subject:  r.NewStyle().Foreground(lipgloss.Color("255")),
		hint:     r.NewStyle().Foreground(lipgloss.Color("243")),
		approved: r.NewStyle().Foreground(lipgloss.Color("42")),
		denied:   r.NewStyle().Foreground(lipgloss.Color("214")),
		failed:   r.NewStyle().Foreground(lipgloss.Color("196")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// SetRaw makes every line end in CRLF, as a raw-mode terminal needs.
func (p *Prompter) SetRaw(raw bool) {
	p.raw = raw
}

// Banner prints the session id the operator hands to the remote side.
func (p *Prompter) Banner(sessionID string) {
	p.println(p.banner.Render("Session id: " + sessionID))
	p.println(p.hint.Render("Waiting for actions. y approves, n denies, q quits."))
}

// Present implements Presenter.
func (p *Prompter) Present(a action.Action) {
	p.println("")
	p.println(p.describe(a))
	p.print(p.hint.Render("[y/n] "))
}

// Approved prints that a is about to run.
func (p *Prompter) Approved(a action.Action) {
	p.println(p.approved.Render("approved " + a.ID()))
}

// Denied prints that a was rejected.
func (p *Prompter) Denied(a action.Action) {
	p.println(p.denied.Render("denied " + a.ID()))
}

// Finished prints how an executed action ended.
func (p *Prompter) Finished(a action.Action, out action.Outcome) {
	if out.Success {
		msg := "finished " + a.ID()
		if out.ExitCode != nil {
			msg += fmt.Sprintf(" (exit %d)", *out.ExitCode)
		}
		p.println(p.approved.Render(msg))
		return
	}
	p.println(p.failed.Render(fmt.Sprintf("failed %s: %s", a.ID(), out.Err)))
}

// Discarded lists actions dropped without a decision.
func (p *Prompter) Discarded(actions []action.Action) {
	for _, a := range actions {
		p.println(p.muted.Render("discarded " + a.ID() + ": " + a.Summary()))
	}
}

// Info prints a plain status line.
func (p *Prompter) Info(msg string) {
	p.println(p.muted.Render(msg))
}

func (p *Prompter) describe(a action.Action) string {
	var sigil string
	switch a.Kind() {
	case action.KindExecuteCommand:
		sigil = ">"
	case action.KindReadFile:
		sigil = "¶"
	case action.KindWriteFile:
		sigil = "✎"
	default:
		sigil = "?"
	}
	return p.sigil.Render(sigil) + " " + p.subject.Render(a.Summary())
}

func (p *Prompter) println(s string) {
	p.print(s + "\n")
}

func (p *Prompter) print(s string) {
	if p.raw {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	_, _ = io.WriteString(p.out, s)
}
