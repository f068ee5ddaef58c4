// Package classify asks a language model whether a message is a task.
// Every failure path answers false so an outage never creates tasks.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrClassification = errors.New("classification failed")
	ErrNoProvider     = errors.New("no classification provider configured")
)

// Provider completes a single prompt with a model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

const defaultTimeout = 15 * time.Second

// New builds a service that tries providers in order. Nil providers are dropped.
func New(timeout time.Duration, logger *zap.Logger, providers ...Provider) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &Service{providers: kept, timeout: timeout, logger: logger}
}

func (s *Service) Enabled() bool {
	return len(s.providers) > 0
}

// IsTask reports whether text reads as a to-do, open question or request.
func (s *Service) IsTask(ctx context.Context, text string) bool {
	ok, err := s.Classify(ctx, text)
	if err != nil {
		s.logger.Warn("classification unavailable", zap.Error(err))
		return false
	}
	return ok
}

// Classify is IsTask with the failure exposed. Errors wrap ErrClassification
// or ErrNoProvider.
func (s *Service) Classify(ctx context.Context, text string) (bool, error) {
	if rejectLocally(text) {
		return false, nil
	}
	if !s.Enabled() {
		return false, ErrNoProvider
	}

	prompt := BuildPrompt(text)
	var errs []error
	for _, p := range s.providers {
		answer, err := s.complete(ctx, p, prompt)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			s.logger.Debug("provider failed", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		result := ParseAnswer(answer)
		s.logger.Debug("classified",
			zap.String("provider", p.Name()),
			zap.String("text", preview(text, 30)),
			zap.Bool("task", result),
		)
		return result, nil
	}
	return false, fmt.Errorf("%w: %w", ErrClassification, errors.Join(errs...))
}

func (s *Service) complete(ctx context.Context, p Provider, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return p.Complete(callCtx, prompt)
}

// rejectLocally catches the cases the prompt rules out anyway.
func rejectLocally(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || strings.HasPrefix(text, "/") || strings.HasPrefix(text, "```")
}

// ParseAnswer accepts "true" with optional quotes or trailing words.
func ParseAnswer(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	answer = strings.Trim(answer, "\"'`. ")
	return strings.HasPrefix(answer, "true")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
