/*
Package bot turns slash-command invocations into ledger operations and
chat replies.

PURPOSE:
  The Router owns the command table. For each invocation it applies the
  authorization gate, dispatches to the command handler, and reduces any
  unexpected failure to a generic reply. It knows nothing about HTTP or
  signatures; the transport hands it a decoded Request.

REQUEST FLOW:
  1. Look up the command (unknown -> "Unknown command.")
  2. Blacklist check, unless the command allows blacklisted callers
  3. Admin check for admin commands
  4. Run the handler
  5. Log and record metrics

ERROR HANDLING:
  Handlers answer expected outcomes (invalid code, insufficient credits)
  with a specific reply and a nil error. A returned error is unexpected: it
  is logged with command and caller fields and the user sees
  MsgGenericError. Panics are recovered the same way.

SEE ALSO:
  - commands.go: Command table and handlers
  - messages.go: Reply texts
  - auth/gate.go: Blacklist and admin checks
*/
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/credit-bot/auth"
	"github.com/warp/credit-bot/ledger"
)

// DefaultAdminRoleLabel is the role name shown in permission-denied replies.
const DefaultAdminRoleLabel = "Admin"

// Request is one command invocation.
type Request struct {
	Command string
	Caller  auth.Caller
	GuildID string
	Options Options
}

// Reply is the response to a Request.
type Reply struct {
	Content   string
	Ephemeral bool
}

func private(content string) Reply {
	return Reply{Content: content, Ephemeral: true}
}

// HandlerFunc runs a command after the gate has passed.
type HandlerFunc func(ctx context.Context, req Request) (Reply, error)

// Command describes one slash command.
type Command struct {
	Name             string
	Description      string
	Admin            bool
	AllowBlacklisted bool
	Options          []OptionSpec
	Handle           HandlerFunc
}

// StockAlerter is told when a product's stock reaches zero.
type StockAlerter interface {
	StockEmpty(ctx context.Context, product string)
}

// stockAlertTimeout bounds one alert delivery.
const stockAlertTimeout = 30 * time.Second

// Router dispatches requests to commands.
type Router struct {
	ledger     *ledger.Ledger
	gate       *auth.Gate
	log        logrus.FieldLogger
	metrics    *Metrics
	adminLabel string
	alerts     StockAlerter

	commands map[string]*Command
	order    []*Command
}

// NewRouter creates a Router with the full command table.
func NewRouter(l *ledger.Ledger, gate *auth.Gate, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{
		ledger:     l,
		gate:       gate,
		log:        log,
		adminLabel: DefaultAdminRoleLabel,
		commands:   make(map[string]*Command),
	}
	r.registerCommands()
	return r
}

// WithMetrics attaches Prometheus collectors.
func (r *Router) WithMetrics(m *Metrics) *Router {
	r.metrics = m
	return r
}

// WithAdminRoleLabel sets the role name shown in permission-denied replies.
func (r *Router) WithAdminRoleLabel(label string) *Router {
	if label != "" {
		r.adminLabel = label
	}
	return r
}

// WithStockAlerts sends out-of-stock alerts to a.
func (r *Router) WithStockAlerts(a StockAlerter) *Router {
	r.alerts = a
	return r
}

// alertStockEmpty delivers the alert in the background.
func (r *Router) alertStockEmpty(ctx context.Context, product string) {
	if r.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stockAlertTimeout)
	go func() {
		defer cancel()
		r.alerts.StockEmpty(ctx, product)
	}()
}

func (r *Router) register(cmd *Command) {
	if _, dup := r.commands[cmd.Name]; dup {
		panic(fmt.Sprintf("bot: duplicate command %q", cmd.Name))
	}
	r.commands[cmd.Name] = cmd
	r.order = append(r.order, cmd)
}

// Commands returns the command table in registration order.
func (r *Router) Commands() []*Command {
	out := make([]*Command, len(r.order))
	copy(out, r.order)
	return out
}

// Handle runs one command invocation. It never returns an error: every
// failure becomes a reply.
func (r *Router) Handle(ctx context.Context, req Request) (reply Reply) {
	start := time.Now()

	cmd, ok := r.commands[req.Command]
	if !ok {
		r.log.WithField("command", req.Command).Warn("unknown command")
		r.metrics.observe("unknown", OutcomeUnknown, time.Since(start))
		return private(MsgUnknownCommand)
	}

	log := r.log.WithFields(logrus.Fields{
		"command": cmd.Name,
		"caller":  string(req.Caller.Identity),
		"guild":   req.GuildID,
	})

	outcome := OutcomeOK
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("command panicked")
			reply = private(MsgGenericError)
			outcome = OutcomeError
		}
		reply.Content = truncate(reply.Content)
		r.metrics.observe(cmd.Name, outcome, time.Since(start))
		log.WithFields(logrus.Fields{
			"outcome":     outcome,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("command handled")
	}()

	if !cmd.AllowBlacklisted {
		blocked, err := r.gate.CheckBlacklist(ctx, req.Caller.Identity)
		if err != nil {
			log.WithError(err).Error("blacklist check failed")
			outcome = OutcomeError
			return private(MsgGenericError)
		}
		if blocked {
			outcome = OutcomeBlacklisted
			return private(MsgBlacklisted)
		}
	}

	if cmd.Admin && !r.gate.RequireAdmin(req.Caller) {
		outcome = OutcomeDenied
		return private(permissionDenied(r.adminLabel))
	}

	reply, err := cmd.Handle(ctx, req)
	if err != nil {
		var optErr *OptionError
		if errors.As(err, &optErr) {
			outcome = OutcomeInvalid
			return private(optionInvalid(optErr))
		}
		log.WithError(err).Error("command failed")
		outcome = OutcomeError
		return private(MsgGenericError)
	}
	return reply
}
