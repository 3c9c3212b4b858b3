// Package bot routes chat messages from every frontend to intake or commands
// and reports the results back to the chat.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spoticord/internal/chat"
	"spoticord/internal/commands"
	"spoticord/internal/core"
	"spoticord/internal/i18n"
	"spoticord/internal/intake"
)

const (
	// seenCacheSize bounds the redelivery guard
	seenCacheSize = 1024
	// forcePrefixWindow is how far into a message "!force" may start
	forcePrefixWindow = 7
	forceKeyword      = "!force"
)

// Message kinds reported to the metrics recorder.
const (
	KindLink    = "link"
	KindCommand = "command"
	KindIgnored = "ignored"
	KindFlood   = "flood"
)

// Processor runs intake for one message.
type Processor interface {
	Process(ctx context.Context, sub intake.Submission, log intake.HistoryLog) ([]intake.Outcome, error)
}

// CommandHandler runs "!" commands.
type CommandHandler interface {
	Handle(ctx context.Context, req *commands.Request) bool
}

// Limiter decides whether a sender may be heard right now.
type Limiter interface {
	Allow(chatID, senderID string) bool
}

// HistoryLog is a log intake writes to, plus the counters milestones need.
type HistoryLog interface {
	intake.HistoryLog
	SuccessCount() int
	UserSuccessCount(user string) int
}

// Recorder receives processing metrics.
type Recorder interface {
	RecordMessage(kind, status string)
	RecordVerdict(v core.Verdict)
	RecordError(component string)
	RecordProcessingTime(kind string, duration time.Duration)
	SetPlaylistSize(size int)
}

type inbound struct {
	frontend chat.Frontend
	msg      *chat.Message
}

// Dispatcher feeds messages from all frontends through one worker so history
// order is processing order.
type Dispatcher struct {
	config     *core.Config
	frontends  []chat.Frontend
	pipeline   Processor
	commands   CommandHandler
	production HistoryLog
	test       HistoryLog
	limiter    Limiter
	metrics    Recorder
	localizer  *i18n.Localizer
	logger     *zap.Logger

	seen  *lru.Cache[string, struct{}]
	queue chan inbound
	ready atomic.Bool
}

// NewDispatcher wires the dispatcher. A nil metrics recorder discards metrics.
func NewDispatcher(
	config *core.Config,
	frontends []chat.Frontend,
	pipeline Processor,
	handler CommandHandler,
	production, test HistoryLog,
	limiter Limiter,
	metrics Recorder,
	logger *zap.Logger,
) (*Dispatcher, error) {
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create redelivery cache: %w", err)
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}

	return &Dispatcher{
		config:     config,
		frontends:  frontends,
		pipeline:   pipeline,
		commands:   handler,
		production: production,
		test:       test,
		limiter:    limiter,
		metrics:    metrics,
		localizer:  i18n.NewLocalizer(config.App.Language),
		logger:     logger,
		seen:       seen,
		queue:      make(chan inbound, config.App.QueueSize),
	}, nil
}

// Ready reports whether every frontend has started.
func (d *Dispatcher) Ready() bool {
	return d.ready.Load()
}

// Start brings up the frontends and processes messages until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting message dispatcher", zap.Int("frontends", len(d.frontends)))

	for _, f := range d.frontends {
		if err := f.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s frontend: %w", f.Name(), err)
		}
	}

	d.metrics.SetPlaylistSize(d.production.SuccessCount())
	d.announce(ctx)
	d.ready.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range d.frontends {
		g.Go(func() error {
			return f.Listen(gctx, func(msg *chat.Message) {
				d.enqueue(gctx, f, msg)
			})
		})
	}
	g.Go(func() error {
		return d.run(gctx)
	})

	err := g.Wait()
	d.ready.Store(false)
	d.logger.Info("Message dispatcher stopped")
	return err
}

// enqueue drops redelivered and flooding messages before they reach the worker.
func (d *Dispatcher) enqueue(ctx context.Context, f chat.Frontend, msg *chat.Message) {
	key := f.Name() + ":" + msg.ChatID + ":" + msg.ID
	if seen, _ := d.seen.ContainsOrAdd(key, struct{}{}); seen {
		d.logger.Debug("Ignoring redelivered message", zap.String("key", key))
		return
	}

	if !d.limiter.Allow(msg.ChatID, msg.SenderID) {
		d.logger.Info("Dropping message over flood limit",
			zap.String("chatID", msg.ChatID),
			zap.String("sender", msg.SenderName))
		d.metrics.RecordMessage(KindFlood, "dropped")
		return
	}

	select {
	case d.queue <- inbound{frontend: f, msg: msg}:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) run(ctx context.Context) error {
	for {
		select {
		case in := <-d.queue:
			d.handle(ctx, in)
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, in inbound) {
	msg := in.msg
	text := strings.TrimSpace(msg.Text)
	force := isForce(text)
	playlistID, mapped := d.playlistFor(msg)

	d.logger.Debug("Handling message",
		zap.String("frontend", in.frontend.Name()),
		zap.String("messageID", msg.ID),
		zap.String("chatID", msg.ChatID),
		zap.String("sender", msg.SenderName))

	if commands.IsCommand(text) && !force {
		start := time.Now()
		matched := d.commands.Handle(ctx, &commands.Request{
			Message:    msg,
			Frontend:   in.frontend,
			PlaylistID: playlistID,
		})
		status := "ok"
		if !matched {
			status = "unknown"
		}
		d.metrics.RecordMessage(KindCommand, status)
		d.metrics.RecordProcessingTime(KindCommand, time.Since(start))
		return
	}

	if !mapped {
		d.metrics.RecordMessage(KindIgnored, "unmapped")
		return
	}

	if force && !d.config.IsModerator(msg.SenderID, msg.SenderName) {
		d.logger.Info("Rejected force request", zap.String("sender", msg.SenderName))
		d.reply(ctx, in, d.localizer.T("bot.not_moderator"))
		d.metrics.RecordMessage(KindLink, "forbidden")
		return
	}

	d.intake(ctx, in, playlistID, force)
}

func (d *Dispatcher) intake(ctx context.Context, in inbound, playlistID string, force bool) {
	msg := in.msg
	start := time.Now()
	isTest := d.config.IsTestChat(msg.ChatID, msg.ChatName)
	log := d.production
	if isTest {
		log = d.test
	}

	total := log.SuccessCount()
	userTotal := log.UserSuccessCount(msg.SenderName)

	outcomes, err := d.pipeline.Process(ctx, intake.Submission{
		MessageID:  msg.ID,
		User:       msg.SenderName,
		Text:       msg.Text,
		PlaylistID: playlistID,
		IsTest:     isTest,
		Force:      force,
	}, log)

	for _, o := range outcomes {
		d.metrics.RecordVerdict(o.Entry.Verdict)
		d.reply(ctx, in, o.Response)
		if o.Entry.WasSuccessful() {
			total++
			userTotal++
			d.milestones(ctx, in, total, userTotal)
		}
	}

	if err != nil {
		d.logger.Error("Intake failed", zap.String("messageID", msg.ID), zap.Error(err))
		d.metrics.RecordError("history")
		d.metrics.RecordMessage(KindLink, "error")
		d.reply(ctx, in, d.localizer.T("error.generic"))
		return
	}

	if len(outcomes) == 0 {
		d.metrics.RecordMessage(KindIgnored, "chatter")
		return
	}
	if !isTest {
		d.metrics.SetPlaylistSize(d.production.SuccessCount())
	}
	d.metrics.RecordMessage(KindLink, "ok")
	d.metrics.RecordProcessingTime(KindLink, time.Since(start))
}

// milestones celebrates every UpdateInterval-th addition to the playlist and by the user.
func (d *Dispatcher) milestones(ctx context.Context, in inbound, total, userTotal int) {
	interval := d.config.App.UpdateInterval
	if interval <= 0 {
		return
	}

	if total%interval == 0 {
		d.reply(ctx, in, d.localizer.T("bot.milestone_playlist", total))
		d.react(ctx, in, chat.ReactionParty)
	}
	if userTotal%interval == 0 {
		d.reply(ctx, in, d.localizer.T("bot.milestone_user", userTotal, in.msg.SenderName))
	}
}

// playlistFor maps a chat to its playlist by id, then by name. Names are
// compared case-insensitively since config keys are lower-cased on load.
func (d *Dispatcher) playlistFor(msg *chat.Message) (string, bool) {
	if id, ok := d.config.Channels[msg.ChatID]; ok {
		return id, true
	}
	if msg.ChatName == "" {
		return "", false
	}
	for name, id := range d.config.Channels {
		if strings.EqualFold(name, msg.ChatName) {
			return id, true
		}
	}
	return "", false
}

func isForce(text string) bool {
	head := text
	if len(head) > forcePrefixWindow {
		head = head[:forcePrefixWindow]
	}
	return strings.Contains(head, forceKeyword)
}

func (d *Dispatcher) reply(ctx context.Context, in inbound, text string) {
	if text == "" {
		return
	}
	if _, err := in.frontend.SendText(ctx, in.msg.ChatID, in.msg.ID, text); err != nil {
		d.logger.Warn("Failed to send reply",
			zap.String("frontend", in.frontend.Name()),
			zap.String("chatID", in.msg.ChatID),
			zap.Error(err))
		d.metrics.RecordError(in.frontend.Name())
	}
}

func (d *Dispatcher) react(ctx context.Context, in inbound, r chat.Reaction) {
	if err := in.frontend.React(ctx, in.msg.ChatID, in.msg.ID, r); err != nil {
		d.logger.Debug("Failed to react", zap.Error(err))
	}
}

// announce sends the startup notice. AnnounceChat is "frontend:chatID", or a
// bare chat id for the first frontend.
func (d *Dispatcher) announce(ctx context.Context) {
	target := d.config.App.AnnounceChat
	if target == "" || len(d.frontends) == 0 {
		return
	}

	frontend := d.frontends[0]
	chatID := target
	if name, id, ok := strings.Cut(target, ":"); ok {
		for _, f := range d.frontends {
			if f.Name() == name {
				frontend, chatID = f, id
				break
			}
		}
	}

	if _, err := frontend.SendText(ctx, chatID, "", d.localizer.T("bot.started")); err != nil {
		d.logger.Warn("Failed to announce startup",
			zap.String("frontend", frontend.Name()),
			zap.String("chatID", chatID),
			zap.Error(err))
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordMessage(string, string) {}
func (nopRecorder) RecordVerdict(core.Verdict) {}
func (nopRecorder) RecordError(string) {}
func (nopRecorder) RecordProcessingTime(string, time.Duration) {}
func (nopRecorder) SetPlaylistSize(int) {}
