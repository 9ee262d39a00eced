package turn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/kalambet/secureguard/internal/session"
	"github.com/kalambet/secureguard/internal/similarity"
)

var (
	userColor   = color.New(color.FgCyan, color.Bold)
	botColor    = color.New(color.FgMagenta, color.Bold)
	useColor    = color.New(color.FgGreen)
	filterColor = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

// BandColor is the terminal colour used for a quality band.
func BandColor(b similarity.Band) *color.Color {
	switch b {
	case similarity.Excellent:
		return color.New(color.FgGreen, color.Bold)
	case similarity.Good:
		return color.New(color.FgGreen)
	case similarity.Fair:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// REPL is a line-oriented render loop for terminals without full-screen
// support and for scripted use. Besides free text it understands:
//
//	/suggest N   queue suggestion N as the next input and dispatch it
//	/clear       clear the history
//	/export      write the history to ExportDir
//	/stats       show message counters
//	/quit        leave the loop
type REPL struct {
	d         *Dispatcher
	in        io.Reader
	out       io.Writer
	exportDir string
	now       func() time.Time
}

// NewREPL returns a REPL reading commands from in and drawing to out.
func NewREPL(d *Dispatcher, in io.Reader, out io.Writer, exportDir string) *REPL {
	return &REPL{d: d, in: in, out: out, exportDir: exportDir, now: time.Now}
}

// Run processes lines until EOF, /quit, or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	r.d.Start()
	r.banner()

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := sc.Text()
		if cmd, arg, ok := parseCommand(line); ok {
			if cmd == "quit" {
				return nil
			}
			r.command(ctx, cmd, arg)
			continue
		}
		r.cycle(ctx, line)
	}
}

func (r *REPL) cycle(ctx context.Context, direct string) {
	out, err := r.d.Dispatch(ctx, direct)
	if errors.Is(err, ErrNoInput) {
		return
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.render(out)
	r.d.Ready()
}

func (r *REPL) command(ctx context.Context, cmd, arg string) {
	sess := r.d.Session()
	switch cmd {
	case "suggest":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(Suggestions) {
			fmt.Fprintf(r.out, "usage: /suggest 1-%d\n", len(Suggestions))
			return
		}
		sess.SetPendingInput(Suggestions[n-1])
		r.cycle(ctx, "")
	case "clear":
		sess.Clear()
		fmt.Fprintln(r.out, "history cleared")
	case "export":
		path, err := sess.WriteExport(r.exportDir, r.now())
		if errors.Is(err, session.ErrNothingToExport) {
			fmt.Fprintln(r.out, "No conversation to export!")
			return
		}
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "exported to %s\n", path)
	case "stats":
		st := sess.Stats()
		fmt.Fprintf(r.out, "total messages: %d, your messages: %d\n", st.Total, st.User)
	default:
		fmt.Fprintf(r.out, "unknown command /%s\n", cmd)
	}
}

func (r *REPL) render(o Outcome) {
	userColor.Fprint(r.out, "you: ")
	fmt.Fprintln(r.out, o.Input)

	if !o.Report.Empty() {
		dimColor.Fprintln(r.out, "-- similarity analysis --")
		th := o.Report.ThresholdText()
		for _, e := range o.Report.Entries {
			BandColor(e.Band).Fprintf(r.out, "  %.4f %s", e.Score, e.Band.Label())
			verdict := filterColor
			if e.Included {
				verdict = useColor
			}
			verdict.Fprintf(r.out, "  %s (threshold %s)\n", e.Verdict(), th)
			dimColor.Fprintf(r.out, "    %s\n", e.Preview)
		}
	}

	botColor.Fprint(r.out, "secureguard: ")
	fmt.Fprintln(r.out, o.Answer)
}

func (r *REPL) banner() {
	fmt.Fprintln(r.out, "SecureGuard AI - type a question, \"exit\" to say goodbye, /quit to leave.")
	for i, s := range Suggestions {
		fmt.Fprintf(r.out, "  /suggest %d  %s\n", i+1, s)
	}
}

func parseCommand(line string) (cmd, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}
