package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"eventsim/internal/domain/event"
	"eventsim/internal/services/confirmation"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
	"eventsim/pkg/templates"
)

// Compile-time check
var _ confirmation.Notifier = (*Prompter)(nil)

const (
	actionConfirm = "confirm"
	actionIgnore  = "ignore"

	promptTemplate  = "telegram/confirmation_prompt"
	outcomeTemplate = "telegram/confirmation_outcome"
)

// outcomes rendered under the prompt once it is answered
const (
	outcomeConfirmed = "confirmed"
	outcomeIgnored   = "ignored"
	outcomeExpired   = "expired"
)

// Resolver applies the operator's answer. Implemented by *confirmation.Registry.
type Resolver interface {
	Confirm(eventID uuid.UUID) error
	Ignore(eventID uuid.UUID) error
}

// EventLookup returns a snapshot of an event
type EventLookup func(id uuid.UUID) (*event.Event, bool)

// Messenger is the part of *Bot the prompter needs
type Messenger interface {
	SendMarkdown(ctx context.Context, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditText(ctx context.Context, messageID int, text string) error
	AnswerCallback(callbackID, text string)
}

// Prompter asks the operator to confirm accepted events with inline buttons
type Prompter struct {
	bot      Messenger
	resolver Resolver
	lookup   EventLookup
	tmpl     *templates.Registry
	now      func() time.Time

	mu       sync.Mutex
	messages map[uuid.UUID]int // event -> prompt message

	log *logger.Logger
}

// NewPrompter creates a prompter
func NewPrompter(bot Messenger, resolver Resolver, lookup EventLookup, log *logger.Logger) *Prompter {
	return &Prompter{
		bot:      bot,
		resolver: resolver,
		lookup:   lookup,
		tmpl:     templates.Get(),
		now:      time.Now,
		messages: make(map[uuid.UUID]int),
		log:      log.With("component", "telegram_prompter"),
	}
}

// WithTemplates replaces the embedded prompt templates. The registry must provide
// both the prompt and the outcome template.
func (p *Prompter) WithTemplates(reg *templates.Registry) (*Prompter, error) {
	for _, id := range []string{promptTemplate, outcomeTemplate} {
		if _, err := reg.GetTemplate(id); err != nil {
			return nil, errors.Wrapf(err, "prompt templates")
		}
	}
	p.tmpl = reg
	return p, nil
}

// NotifyPending sends the confirmation prompt
func (p *Prompter) NotifyPending(ctx context.Context, eventID uuid.UUID, _ confirmation.Token) error {
	ev, ok := p.lookup(eventID)
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "event %s", eventID)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", callbackData(actionConfirm, eventID)),
			tgbotapi.NewInlineKeyboardButtonData("🚫 Ignore", callbackData(actionIgnore, eventID)),
		),
	)

	text, err := p.render(ev)
	if err != nil {
		return err
	}
	msgID, err := p.bot.SendMarkdown(ctx, text, &keyboard)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.messages[eventID] = msgID
	p.mu.Unlock()
	return nil
}

// HandleCallback applies a button press. Pass it to Bot.Run.
func (p *Prompter) HandleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	action, eventID, err := parseCallbackData(q.Data)
	if err != nil {
		p.log.Warnw("Unknown callback data", "data", q.Data, "error", err)
		p.bot.AnswerCallback(q.ID, "Unknown action")
		return
	}

	switch action {
	case actionConfirm:
		err = p.resolver.Confirm(eventID)
	case actionIgnore:
		err = p.resolver.Ignore(eventID)
	}

	if errors.Is(err, errors.ErrNoPendingConfirmation) {
		p.bot.AnswerCallback(q.ID, "No longer pending")
		p.finish(ctx, eventID, outcomeExpired)
		return
	}
	if err != nil {
		p.log.Errorw("Failed to apply confirmation", "event_id", eventID, "action", action, "error", err)
		p.bot.AnswerCallback(q.ID, "Failed, try again")
		return
	}

	p.log.Infow("Operator answered", "event_id", eventID, "action", action, "from", q.From.String())
	if action == actionConfirm {
		p.bot.AnswerCallback(q.ID, "Confirmed")
		p.finish(ctx, eventID, outcomeConfirmed)
		return
	}
	p.bot.AnswerCallback(q.ID, "Ignored")
	p.finish(ctx, eventID, outcomeIgnored)
}

// finish replaces the prompt with its outcome so the buttons cannot be pressed twice
func (p *Prompter) finish(ctx context.Context, eventID uuid.UUID, outcome string) {
	p.mu.Lock()
	msgID, ok := p.messages[eventID]
	delete(p.messages, eventID)
	p.mu.Unlock()
	if !ok {
		return
	}

	var prompt string
	if ev, found := p.lookup(eventID); found {
		prompt, _ = p.render(ev)
	}
	text, err := p.tmpl.Render(outcomeTemplate, map[string]string{"Prompt": prompt, "Outcome": outcome})
	if err != nil {
		p.log.Errorw("Failed to render outcome", "event_id", eventID, "error", err)
		return
	}
	if err := p.bot.EditText(ctx, msgID, text); err != nil {
		p.log.Warnw("Failed to update prompt", "event_id", eventID, "error", err)
	}
}

// promptView is the data of the confirmation prompt template
type promptView struct {
	EventType  string
	Confidence string
	Symbol     string
	Source     string
	Entities   []string
	DetectedAt time.Time
	Now        time.Time
}

func (p *Prompter) render(ev *event.Event) (string, error) {
	proj := ev.Project()
	return p.tmpl.Render(promptTemplate, promptView{
		EventType:  proj.EventType.String(),
		Confidence: proj.Confidence.String(),
		Symbol:     proj.Symbol,
		Source:     ev.Source,
		Entities:   ev.Entities,
		DetectedAt: ev.Timestamp,
		Now:        p.now(),
	})
}

func callbackData(action string, eventID uuid.UUID) string {
	return action + ":" + eventID.String()
}

func parseCallbackData(data string) (string, uuid.UUID, error) {
	action, raw, ok := strings.Cut(data, ":")
	if !ok || (action != actionConfirm && action != actionIgnore) {
		return "", uuid.Nil, errors.Wrapf(errors.ErrInvalidInput, "callback %q", data)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", uuid.Nil, errors.Wrapf(errors.ErrInvalidInput, "callback event id %q", raw)
	}
	return action, id, nil
}
