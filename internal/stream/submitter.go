package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/insites-io/module-ai/internal/backend"
	"github.com/insites-io/module-ai/internal/cache"
	"github.com/insites-io/module-ai/internal/logx"
)

// Agent is the single async capability the submitter drives.
type Agent interface {
	RunAgentTurn(ctx context.Context, prompt string, creds backend.Credentials) (string, error)
}

// ValidationError reports a missing required field on a submission.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string { return e.Field + " is required" }

// Submission is one unit of work bound to a session.
type Submission struct {
	SessionID string
	Prompt    string
	Creds     backend.Credentials
}

// Submitter accepts work, runs it off the calling path, and guarantees the
// session channel terminates: every task exit pushes one Data or Error event
// followed unconditionally by End.
type Submitter struct {
	reg     *Registry
	agent   Agent
	cache   *cache.Cache
	timeout time.Duration
}

// NewSubmitter builds a submitter. cache may be nil to disable caching.
func NewSubmitter(reg *Registry, agent Agent, c *cache.Cache, timeout time.Duration) *Submitter {
	return &Submitter{reg: reg, agent: agent, cache: c, timeout: timeout}
}

// Submit validates sub and, when valid, launches the agent turn in the
// background and returns immediately. Validation failures start no task.
func (s *Submitter) Submit(sub Submission) error {
	switch {
	case sub.SessionID == "":
		return &ValidationError{Field: "session_id"}
	case sub.Prompt == "":
		return &ValidationError{Field: "prompt"}
	case sub.Creds.InstanceURL == "":
		return &ValidationError{Field: "instance_url"}
	case sub.Creds.InstanceAPIKey == "":
		return &ValidationError{Field: "instance_api_key"}
	}
	ch := s.reg.GetOrCreate(sub.SessionID)
	go s.run(ch, sub)
	return nil
}

func (s *Submitter) run(ch chan Event, sub Submission) {
	defer func() {
		if r := recover(); r != nil {
			logx.Log.Error().Str("session_id", sub.SessionID).Interface("panic", r).Msg("agent task panicked")
			trySend(ch, ErrorEvent(fmt.Sprintf("An error occurred: %v", r)))
			trySend(ch, EndEvent())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if text, ok := s.cache.Get(ctx, sub.Prompt, sub.Creds.InstanceURL); ok {
		logx.Log.Info().Str("session_id", sub.SessionID).Msg("serving cached response")
		trySend(ch, DataEvent(text))
		trySend(ch, EndEvent())
		return
	}

	text, err := s.agent.RunAgentTurn(ctx, sub.Prompt, sub.Creds)
	if err != nil {
		logx.Log.Warn().Str("session_id", sub.SessionID).Err(err).Msg("agent turn failed")
		trySend(ch, ErrorEvent(fmt.Sprintf("An error occurred: %v", err)))
		trySend(ch, EndEvent())
		return
	}
	s.cache.Put(ctx, sub.Prompt, sub.Creds.InstanceURL, text)
	logx.Log.Info().Str("session_id", sub.SessionID).Int("chars", len(text)).Msg("agent turn complete")
	trySend(ch, DataEvent(text))
	trySend(ch, EndEvent())
}

// trySend never blocks; a full channel means the consumer is gone or wedged,
// and the event is dropped rather than leaking the producer goroutine.
func trySend(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		logx.Log.Warn().Str("kind", string(ev.Kind)).Msg("session channel full, dropping event")
	}
}
