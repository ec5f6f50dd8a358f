// Package chat answers portal assistant messages.
//
// A message is first looked up in the FAQ. When nothing matches, the
// embedded keyword rules are tried, and finally a generic reply is built.
// The generic reply can be produced by a model backend when one is
// configured; any backend failure falls back to the canned text.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/moussadar/moussadar/internal/clock"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

// MaxMessageLength is the longest accepted message, in characters.
const MaxMessageLength = 1000

const (
	faqMatchLimit   = 3
	suggestionLimit = 10
)

// ErrInvalidMessage is returned for empty or over-long messages.
var ErrInvalidMessage = errors.New("message must be between 1 and 1000 characters")

// FAQStore is the subset of the database the responder needs.
type FAQStore interface {
	SearchFAQ(ctx context.Context, lang schema.Lang, term string, limit int) ([]schema.LocalizedFAQ, error)
	IncrementFAQViews(ctx context.Context, lang schema.Lang, questions []string) error
	FAQSuggestions(ctx context.Context, lang schema.Lang, category string, limit int) ([]string, error)
	IncrementFAQHelpful(ctx context.Context, lang schema.Lang, question string) (bool, error)
}

// Generator produces a free-form answer for messages no rule covers.
type Generator interface {
	Generate(ctx context.Context, message string, lang schema.Lang) (string, error)
}

// Response is the assistant's answer.
type Response struct {
	Type        string   `json:"type"`
	Content     string   `json:"content"`
	Suggestions []string `json:"suggestions"`
}

// Reply wraps a response with the time it was produced.
type Reply struct {
	Response  Response `json:"response"`
	Timestamp string   `json:"timestamp"`
}

// Config holds responder options.
type Config struct {
	// Delay before each reply is returned
	Delay time.Duration

	// Rules overrides the embedded keyword rules
	Rules *RuleSet

	// Generator for the generic case (optional)
	Generator Generator

	Clock  clock.Clock
	Logger *log.Logger
}

// DefaultConfig returns the embedded rules with a one second delay.
func DefaultConfig() *Config {
	return &Config{
		Delay:  time.Second,
		Clock:  clock.NewRealClock(),
		Logger: log.New(os.Stderr, "[chat] ", log.LstdFlags),
	}
}

// Responder answers chat messages.
type Responder struct {
	store     FAQStore
	rules     *RuleSet
	generator Generator
	delay     time.Duration
	clock     clock.Clock
	logger    *log.Logger
}

// New creates a responder backed by store. A nil cfg uses DefaultConfig().
func New(store FAQStore, cfg *Config) (*Responder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()

	rules := cfg.Rules
	if rules == nil {
		var err error
		if rules, err = DefaultRules(); err != nil {
			return nil, err
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	return &Responder{
		store:     store,
		rules:     rules,
		generator: cfg.Generator,
		delay:     cfg.Delay,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}, nil
}

// ValidateMessage checks the message length.
func ValidateMessage(message string) error {
	n := utf8.RuneCountInString(message)
	if n < 1 || n > MaxMessageLength {
		return ErrInvalidMessage
	}
	return nil
}

// Respond answers message in lang.
func (r *Responder) Respond(ctx context.Context, message string, lang schema.Lang) (*Reply, error) {
	if err := ValidateMessage(message); err != nil {
		return nil, err
	}

	resp, err := r.answer(ctx, message, lang)
	if err != nil {
		return nil, err
	}

	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return &Reply{
		Response:  *resp,
		Timestamp: schema.FormatTime(r.clock.Now()),
	}, nil
}

func (r *Responder) answer(ctx context.Context, message string, lang schema.Lang) (*Response, error) {
	faqs, err := r.store.SearchFAQ(ctx, lang, message, faqMatchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search faq: %w", err)
	}

	if len(faqs) > 0 {
		questions := make([]string, len(faqs))
		for i, f := range faqs {
			questions[i] = f.Question
		}
		if err := r.store.IncrementFAQViews(ctx, lang, questions); err != nil {
			return nil, fmt.Errorf("failed to update faq views: %w", err)
		}
		return &Response{
			Type:        TypeText,
			Content:     faqs[0].Answer,
			Suggestions: questions[1:],
		}, nil
	}

	rule := r.rules.Match(message)
	text := rule.For(lang)
	resp := &Response{
		Type:        rule.Type,
		Content:     strings.ReplaceAll(text.Content, "{message}", message),
		Suggestions: append([]string{}, text.Suggestions...),
	}

	if rule == &r.rules.Fallback && r.generator != nil {
		generated, err := r.generator.Generate(ctx, message, lang)
		switch {
		case err != nil:
			r.logger.Printf("WARNING: generator failed, using canned reply: %v", err)
		case strings.TrimSpace(generated) != "":
			resp.Content = generated
		}
	}
	return resp, nil
}

// Suggestions returns the most viewed FAQ questions, optionally filtered
// by category.
func (r *Responder) Suggestions(ctx context.Context, category string, lang schema.Lang) ([]string, error) {
	return r.store.FAQSuggestions(ctx, lang, category, suggestionLimit)
}

// Feedback records a helpful vote against the FAQ entry whose localized
// question equals messageID. Unhelpful votes are accepted and not stored.
// It reports whether an entry was updated.
func (r *Responder) Feedback(ctx context.Context, messageID string, helpful bool, lang schema.Lang) (bool, error) {
	if !helpful {
		return false, nil
	}
	return r.store.IncrementFAQHelpful(ctx, lang, messageID)
}
