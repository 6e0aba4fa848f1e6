// Package telegram is an optional headless announcer: reminders arrive as
// Telegram messages with an inline keyboard, and button presses feed
// decisions back into the watcher.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/journalehsan/UptimeWatcher/internal/announce"
	"github.com/journalehsan/UptimeWatcher/internal/eventbus"
	"github.com/journalehsan/UptimeWatcher/internal/policy"
	"github.com/journalehsan/UptimeWatcher/internal/watch"
	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

// Decider is the slice of the watcher the bot needs to apply answers.
type Decider interface {
	SubmitDecision(ctx context.Context, d watch.Decision) error
}

type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

type Bot struct {
	log     logx.Logger
	bot     *tele.Bot
	bus     eventbus.Bus
	decider Decider
	chat    *tele.Chat
}

func New(cfg Config, decider Decider, bus eventbus.Bus, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{
		log:     log,
		bot:     b,
		bus:     bus,
		decider: decider,
		chat:    &tele.Chat{ID: cfg.ChatID},
	}, nil
}

// Run polls Telegram and drains watcher events until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.bot.Handle(tele.OnCallback, b.onCallback(ctx))

	ch, unsub := b.bus.Subscribe(64)
	defer unsub()

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		b.log.Info("telegram polling started")
		b.bot.Start() // blocks until Stop
	}()

	for {
		select {
		case <-ctx.Done():
			<-pollDone
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				b.bot.Stop()
				<-pollDone
				return nil
			}
			b.announce(ev)
		}
	}
}

func (b *Bot) announce(ev eventbus.Event) {
	text, ok := announce.Render(ev)
	if !ok {
		return
	}
	var opts []any
	if due, isDue := ev.Data.(watch.ReminderDue); isDue {
		opts = append(opts, keyboard(due.Choices))
	}
	if _, err := b.bot.Send(b.chat, text, opts...); err != nil {
		b.log.Warn("telegram send failed", logx.Any("err", err))
	}
}

// keyboard lays out "Reboot now" on its own row and the delay options in a
// 2-column grid below it. Callback data carries the delay in seconds so the
// handler never trusts button labels.
func keyboard(choices []policy.Option) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	btns := make([]tele.Btn, 0, len(choices))
	for _, c := range choices {
		btns = append(btns, tele.Btn{
			Text: "Delay " + c.Label,
			Data: fmt.Sprintf("uw:delay:%d", c.Seconds()),
		})
	}
	rows := rm.Split(2, btns)
	rows = append([]tele.Row{rm.Row(tele.Btn{Text: "Reboot now", Data: "uw:reboot"})}, rows...)
	rm.Inline(rows...)
	return rm
}

func (b *Bot) onCallback(ctx context.Context) tele.HandlerFunc {
	return func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		if m.Chat == nil || m.Chat.ID != b.chat.ID {
			return c.Respond(&tele.CallbackResponse{Text: "Not authorized."})
		}

		d, err := parseCallback(cb.Data)
		if err != nil {
			b.log.Warn("bad callback data", logx.String("data", cb.Data))
			return c.Respond(&tele.CallbackResponse{Text: "Unknown action."})
		}

		if err := b.decider.SubmitDecision(ctx, d); err != nil {
			switch {
			case errors.Is(err, watch.ErrNoReminderPending):
				_ = c.Respond(&tele.CallbackResponse{Text: "Nothing pending anymore."})
			case errors.Is(err, watch.ErrInvalidChoice):
				_ = c.Respond(&tele.CallbackResponse{Text: "That delay is no longer available."})
			default:
				b.log.Error("decision failed", logx.Any("err", err))
				_ = c.Respond(&tele.CallbackResponse{Text: "Could not apply that, see logs."})
			}
			return nil
		}

		// Retire the keyboard so a stale message can't feed a second answer.
		_ = c.Edit(m.Text + "\n\n(answered)")
		return c.Respond(&tele.CallbackResponse{Text: "Done."})
	}
}

func parseCallback(data string) (watch.Decision, error) {
	data = strings.TrimPrefix(strings.TrimSpace(data), "\f")
	switch {
	case data == "uw:reboot":
		return watch.RebootNow(), nil
	case strings.HasPrefix(data, "uw:delay:"):
		secs, err := strconv.ParseInt(strings.TrimPrefix(data, "uw:delay:"), 10, 64)
		if err != nil {
			return watch.Decision{}, fmt.Errorf("bad delay payload: %w", err)
		}
		opt, ok := policy.ByDelay(time.Duration(secs) * time.Second)
		if !ok {
			return watch.Decision{}, fmt.Errorf("no delay option for %ds", secs)
		}
		return watch.Delay(opt), nil
	default:
		return watch.Decision{}, fmt.Errorf("unknown callback %q", data)
	}
}
