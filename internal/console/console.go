// Package console renders the run for a person watching the terminal:
// timestamped progress lines, warnings, the final summary banner and the
// closing prompt.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/deixis/autoview/internal/workflow"
)

const (
	timeLayout = "2006-01-02 15:04:05"

	markOK   = "✔"
	markFail = "✘"
)

// Console implements workflow.Console on a writer. Colors are only emitted
// when the writer is a terminal.
type Console struct {
	out io.Writer
	in  io.Reader

	interactive bool
	now         func() time.Time

	ts     lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
	warn   lipgloss.Style
	title  lipgloss.Style
	note   lipgloss.Style
	banner lipgloss.Style
}

var _ workflow.Console = (*Console)(nil)

// New returns a Console writing to out and reading the pause acknowledgment
// from in. Pause only blocks when in is a terminal.
func New(out io.Writer, in io.Reader) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:         out,
		in:          in,
		interactive: isTerminal(in),
		now:         time.Now,

		ts:    r.NewStyle().Foreground(lipgloss.Color("240")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("11")),
		title: r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		note:  r.NewStyle().Foreground(lipgloss.Color("240")),
		banner: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("14")).
			Padding(0, 2),
	}
}

// Progress prints a timestamped progress line.
func (c *Console) Progress(format string, args ...any) {
	c.line("", lipgloss.Style{}, format, args...)
}

// Warn prints a timestamped warning. Used for non-fatal step failures.
func (c *Console) Warn(format string, args ...any) {
	c.line("WARNING: ", c.warn, format, args...)
}

// Fatal prints a timestamped error. The run stops after it.
func (c *Console) Fatal(format string, args ...any) {
	c.line("ERROR: ", c.fail, format, args...)
}

func (c *Console) line(prefix string, style lipgloss.Style, format string, args ...any) {
	msg := prefix + fmt.Sprintf(format, args...)
	if prefix != "" {
		msg = style.Render(msg)
	}
	_, _ = fmt.Fprintf(c.out, "%s %s\n", c.ts.Render("["+c.now().Format(timeLayout)+"]"), msg)
}

// Summary prints the bordered banner with one marker per step, followed by
// where the scripts leave their output.
func (c *Console) Summary(o *workflow.Outcome, outputRoot string, folders []string) {
	var b strings.Builder
	b.WriteString(c.title.Render("Run summary"))
	for _, s := range o.Steps {
		b.WriteString("\n")
		if s.Succeeded {
			b.WriteString(c.ok.Render(markOK) + " " + s.Name)
			continue
		}
		b.WriteString(c.fail.Render(markFail) + " " + s.Name + " " + failureDetail(s))
	}

	_, _ = fmt.Fprintln(c.out)
	_, _ = fmt.Fprintln(c.out, c.banner.Render(b.String()))

	if len(folders) > 0 {
		paths := make([]string, len(folders))
		for i, f := range folders {
			paths[i] = filepath.Join(outputRoot, f)
		}
		_, _ = fmt.Fprintln(c.out, c.note.Render("Results are written to "+strings.Join(paths, " and ")))
	}
}

func failureDetail(s workflow.StepResult) string {
	if s.Detail != "" {
		return "(" + s.Detail + ")"
	}
	return fmt.Sprintf("(exit %d)", s.ExitCode)
}

// Pause waits for the user to press Enter. It returns immediately when input
// is not interactive so unattended runs never hang.
func (c *Console) Pause() {
	if !c.interactive {
		return
	}
	_, _ = fmt.Fprint(c.out, "\nPress Enter to exit...")
	_, _ = bufio.NewReader(c.in).ReadString('\n')
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
