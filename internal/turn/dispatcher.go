// Package turn drives one conversational turn from raw input to an updated
// session history.
package turn

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kalambet/secureguard/internal/collab"
	"github.com/kalambet/secureguard/internal/session"
	"github.com/kalambet/secureguard/internal/similarity"
)

// ExitSentinel ends the conversation politely without closing the session.
// It is matched case-insensitively.
const ExitSentinel = "exit"

const (
	Farewell = "🌙 Whenever you need a listening ear, a gentle reminder, or a little light — I'll be here. Goodbye for now 🤍"
	Apology  = "I apologize, but I encountered an error processing your request. Please try again."
)

// Suggestions are the canned prompts offered next to the input.
var Suggestions = []string{
	"Tell me about cybersecurity best practices",
	"How can I protect my personal data?",
	"What are common security threats?",
	"Explain two-factor authentication",
}

var (
	// ErrNoInput means the cycle had nothing to dispatch: no pending value
	// and blank direct input.
	ErrNoInput = errors.New("no input to dispatch")
	// ErrBusy means a turn is already in flight or awaiting render.
	ErrBusy = errors.New("turn already in progress")
)

// State is a step of the turn lifecycle.
type State int

const (
	Idle State = iota
	AwaitingInput
	Dispatching
	ExitFlow
	ProcessFlow
	Rendered
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingInput:
		return "awaiting_input"
	case Dispatching:
		return "dispatching"
	case ExitFlow:
		return "exit_flow"
	case ProcessFlow:
		return "process_flow"
	case Rendered:
		return "rendered"
	default:
		return "unknown"
	}
}

// Pending is an input selected for dispatch by Begin.
type Pending struct {
	Input string
	// Exit is set when Input matched the exit sentinel.
	Exit bool
	// Injected is set when Input came from the pending-input slot.
	Injected bool
}

// Reply is what the answering service produced for a Pending input.
type Reply struct {
	Result collab.Result
	Err    error
}

// Outcome describes a committed turn for rendering.
type Outcome struct {
	Input  string
	Flow   State
	Answer string
	// Report is empty for the exit flow and for failed calls.
	Report similarity.Report
	// Err is the service failure that was replaced by Apology, if any.
	Err error
}

// Dispatcher runs the turn state machine over a session. It is not safe
// for concurrent use; Resolve is the only method that may run on another
// goroutine, and it touches no session state.
type Dispatcher struct {
	sess      *session.State
	answerer  collab.Collaborator
	threshold float64
	log       *zap.Logger
	state     State
}

// NewDispatcher returns a dispatcher in the Idle state.
func NewDispatcher(sess *session.State, answerer collab.Collaborator, threshold float64, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sess:      sess,
		answerer:  answerer,
		threshold: threshold,
		log:       log,
		state:     Idle,
	}
}

// State returns the current lifecycle step.
func (d *Dispatcher) State() State {
	return d.state
}

// Session returns the session the dispatcher writes to.
func (d *Dispatcher) Session() *session.State {
	return d.sess
}

// Threshold is the inclusion ceiling applied to reports.
func (d *Dispatcher) Threshold() float64 {
	return d.threshold
}

// Start moves an idle dispatcher to AwaitingInput.
func (d *Dispatcher) Start() {
	if d.state == Idle {
		d.state = AwaitingInput
	}
}

// Begin selects the input for this cycle. A pending value in the session
// takes priority over direct and is consumed. Surrounding whitespace is
// trimmed; a blank result yields ErrNoInput and leaves the dispatcher
// awaiting input.
func (d *Dispatcher) Begin(direct string) (Pending, error) {
	d.Start()
	if d.state != AwaitingInput {
		return Pending{}, ErrBusy
	}

	raw, injected := d.sess.ConsumePendingInput()
	if !injected {
		raw = direct
	}
	input := strings.TrimSpace(raw)
	if input == "" {
		return Pending{}, ErrNoInput
	}

	d.state = Dispatching
	p := Pending{
		Input:    input,
		Exit:     strings.EqualFold(input, ExitSentinel),
		Injected: injected,
	}
	if p.Exit {
		d.state = ExitFlow
	} else {
		d.state = ProcessFlow
	}
	return p, nil
}

// Resolve calls the answering service for p. It blocks until the service
// returns and does not modify the session. Exit inputs are not sent.
func (d *Dispatcher) Resolve(ctx context.Context, p Pending) Reply {
	if p.Exit {
		return Reply{}
	}
	res, err := d.answerer.Answer(ctx, p.Input)
	return Reply{Result: res, Err: err}
}

// Commit appends the user turn and the assistant turn for p and moves to
// Rendered. A failed reply is logged and answered with Apology; the pair
// is appended either way.
func (d *Dispatcher) Commit(p Pending, r Reply) (Outcome, error) {
	if d.state != ExitFlow && d.state != ProcessFlow {
		return Outcome{}, ErrBusy
	}

	out := Outcome{Input: p.Input, Flow: d.state}
	switch {
	case d.state == ExitFlow:
		out.Answer = Farewell
	case r.Err != nil:
		d.log.Error("answering query failed",
			zap.Error(r.Err),
			zap.Int("query_len", len(p.Input)),
			zap.Bool("injected", p.Injected),
		)
		out.Answer = Apology
		out.Err = r.Err
	default:
		out.Answer = r.Result.Text
		out.Report = similarity.BuildReport(r.Result.Diagnostics, d.threshold)
		used, filtered := out.Report.Counts()
		d.log.Debug("turn answered",
			zap.Int("records", len(out.Report.Entries)),
			zap.Int("used", used),
			zap.Int("filtered", filtered),
		)
	}

	d.appendPair(out.Input, out.Answer)
	d.state = Rendered
	return out, nil
}

// Ready marks the turn as drawn and returns to AwaitingInput.
func (d *Dispatcher) Ready() {
	if d.state == Rendered {
		d.state = AwaitingInput
	}
}

// Dispatch runs Begin, Resolve and Commit in sequence. The dispatcher is
// left in Rendered; call Ready once the outcome is shown.
func (d *Dispatcher) Dispatch(ctx context.Context, direct string) (Outcome, error) {
	p, err := d.Begin(direct)
	if err != nil {
		return Outcome{}, err
	}
	return d.Commit(p, d.Resolve(ctx, p))
}

func (d *Dispatcher) appendPair(user, assistant string) {
	// Speakers are constants, so AppendTurn cannot fail here.
	_ = d.sess.AppendTurn(session.User, user)
	_ = d.sess.AppendTurn(session.Assistant, assistant)
}
