// Package dispatch delivers sends and reminders over the configured
// channels. The Dispatcher selects the transport for a channel, fans out to
// every resolved target (a person may have several registered devices), and
// aggregates per-target outcomes rather than failing the whole operation
// when at least one delivery succeeds.
//
// The dispatcher never mutates assignment state: it reports an Outcome and
// the orchestrating service decides whether the state machine advances.
//
// Resource behavior:
//   - every transport call is bounded by a per-attempt timeout; a hung
//     transport counts as a failed target and is not retried in-request;
//   - outbound traffic per channel is paced with a token bucket so a burst
//     of sends cannot hammer a provider.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Channel identifies the transport used to deliver a send or reminder.
type Channel string

const (
	// ChannelSMS delivers a text message to the person's phone number.
	ChannelSMS Channel = "sms"
	// ChannelEmail delivers an email to the person's address.
	ChannelEmail Channel = "email"
	// ChannelPush delivers a push notification to every registered device.
	ChannelPush Channel = "push"
	// ChannelShare mints the public link without dispatching anything; the
	// asker forwards it personally. It always trivially succeeds.
	ChannelShare Channel = "share"
)

// Valid reports whether c is a recognized channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelPush, ChannelShare:
		return true
	}
	return false
}

// Network reports whether c involves an actual transport call.
func (c Channel) Network() bool { return c.Valid() && c != ChannelShare }

// Message is the content handed to a transport. Link is the public recording
// URL and is always present; Subject only matters for email.
type Message struct {
	Subject string
	Body    string
	Link    string
}

// Destination carries the resolved addresses for one person. The dispatcher
// picks the field matching the channel; empty fields make the channel
// undeliverable for this person.
type Destination struct {
	Phone      string
	Email      string
	PushTokens []string
}

// targets returns the address list for the given channel.
func (d Destination) targets(c Channel) []string {
	switch c {
	case ChannelSMS:
		if d.Phone == "" {
			return nil
		}
		return []string{d.Phone}
	case ChannelEmail:
		if d.Email == "" {
			return nil
		}
		return []string{d.Email}
	case ChannelPush:
		return d.PushTokens
	}
	return nil
}

// Transport delivers one message to one address or device token and returns
// the provider's message id. Implementations must honor ctx for cancellation
// and deadline.
type Transport interface {
	Send(ctx context.Context, target string, msg Message) (string, error)
}

// Attempt records one transport invocation. Attempts are ephemeral: they are
// logged and returned to the caller but never persisted.
type Attempt struct {
	Channel   Channel   `json:"channel"`
	Target    string    `json:"target"`
	At        time.Time `json:"at"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// OK reports whether the attempt succeeded.
func (a Attempt) OK() bool { return a.Error == "" }

// Outcome aggregates the attempts of one dispatch. At least one success
// counts as an overall success; the caller treats Sent == 0 as a hard
// failure and leaves the state machine untouched.
type Outcome struct {
	Channel  Channel   `json:"channel"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

var (
	// ErrUnknownChannel is returned for a channel with no registered
	// transport.
	ErrUnknownChannel = errors.New("no transport registered for channel")
	// ErrNoDestination is returned when the person has no address or device
	// for the requested channel.
	ErrNoDestination = errors.New("no destination for channel")
	// ErrAllTargetsFailed is returned when every transport attempt failed;
	// the caller can offer a different channel.
	ErrAllTargetsFailed = errors.New("all dispatch targets failed")
)

// Dispatcher fans a message out to the transport registered for a channel.
// It is safe for concurrent use once configured; Register is not safe to
// call concurrently with Dispatch.
type Dispatcher struct {
	transports map[Channel]Transport
	pacers     map[Channel]*rate.Limiter
	timeout    time.Duration

	// Now is a test seam; defaults to time.Now.
	Now func() time.Time
}

// New constructs a Dispatcher whose transport calls are bounded by timeout.
// A non-positive timeout falls back to 10 seconds.
func New(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		transports: make(map[Channel]Transport),
		pacers:     make(map[Channel]*rate.Limiter),
		timeout:    timeout,
		Now:        time.Now,
	}
}

// Register installs the transport for a channel with an outbound pacing
// budget of rps tokens per second and the given burst. A burst below 1 is
// coerced to 1.
func (d *Dispatcher) Register(c Channel, t Transport, rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	d.transports[c] = t
	d.pacers[c] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Dispatch delivers msg to every target dest resolves for the channel.
//
// share is handled without any transport: the link already exists, so the
// outcome is a single trivially successful attempt.
//
// For network channels, each target gets one paced, timeout-bounded transport
// call. Per-target failures are swallowed into the aggregate; only zero
// successes across all targets surfaces as ErrAllTargetsFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, c Channel, dest Destination, msg Message) (Outcome, error) {
	out := Outcome{Channel: c}

	if c == ChannelShare {
		out.Sent = 1
		out.Attempts = []Attempt{{Channel: c, Target: "link", At: d.Now()}}
		dispatchAttempts.WithLabelValues(string(c), outcomeOK).Inc()
		return out, nil
	}

	t, ok := d.transports[c]
	if !ok {
		return out, ErrUnknownChannel
	}
	targets := dest.targets(c)
	if len(targets) == 0 {
		return out, ErrNoDestination
	}

	for _, target := range targets {
		att := Attempt{Channel: c, Target: target, At: d.Now()}

		if p := d.pacers[c]; p != nil {
			if err := p.Wait(ctx); err != nil {
				att.Error = err.Error()
				out.Failed++
				out.Attempts = append(out.Attempts, att)
				dispatchAttempts.WithLabelValues(string(c), outcomeError).Inc()
				continue
			}
		}

		tctx, cancel := context.WithTimeout(ctx, d.timeout)
		id, err := t.Send(tctx, target, msg)
		cancel()

		if err != nil {
			att.Error = err.Error()
			out.Failed++
			dispatchAttempts.WithLabelValues(string(c), outcomeError).Inc()
			log.Warn().
				Str("channel", string(c)).
				Str("target", target).
				Err(err).
				Msg("dispatch attempt failed")
		} else {
			att.MessageID = id
			out.Sent++
			dispatchAttempts.WithLabelValues(string(c), outcomeOK).Inc()
			log.Debug().
				Str("channel", string(c)).
				Str("target", target).
				Str("message_id", id).
				Msg("dispatch attempt succeeded")
		}
		out.Attempts = append(out.Attempts, att)
	}

	if out.Sent == 0 {
		return out, ErrAllTargetsFailed
	}
	return out, nil
}
