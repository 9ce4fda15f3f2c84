package notifier

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cronjure/internal/eventhub"
	"cronjure/internal/runtime/supervisor"
	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
)

// Source is the subscription side of the event hub.
type Source interface {
	Subscribe(pattern string, h eventhub.Handler) (eventhub.SubscriptionID, error)
	Unsubscribe(id eventhub.SubscriptionID)
}

type Service struct {
	cfg    Config
	sender Sender
	log    logx.Logger
	lim    *rate.Limiter

	mu        sync.Mutex
	accepting bool
	queue     chan Message
	sup       *supervisor.Supervisor
	subs      []eventhub.SubscriptionID
	src       Source

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:    cfg,
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		// Burst equals the per-second rate so short spikes don't block.
		lim:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup: map[string]time.Time{},
	}
}

// Start subscribes to the configured patterns and starts the workers. It is
// a no-op while already running.
func (s *Service) Start(ctx context.Context, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	s.queue = make(chan Message, s.cfg.QueueSize)
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	for i := 0; i < s.cfg.Workers; i++ {
		q := s.queue
		s.sup.Go0(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) { s.workerLoop(c, q) })
	}

	if src != nil {
		s.src = src
		for _, p := range s.cfg.Events {
			id, err := src.Subscribe(p, s.onEvent)
			if err != nil {
				s.unsubscribeLocked()
				s.sup.Cancel()
				s.sup = nil
				return fmt.Errorf("notifier: subscribe %q: %w", p, err)
			}
			s.subs = append(s.subs, id)
		}
	}
	s.accepting = true
	s.log.Info("notifier started", logx.Strings("events", s.cfg.Events), logx.Int("workers", s.cfg.Workers))
	return nil
}

// Stop unsubscribes and waits for the workers. Queued messages are dropped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.accepting = false
	s.unsubscribeLocked()
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (s *Service) unsubscribeLocked() {
	if s.src != nil {
		for _, id := range s.subs {
			s.src.Unsubscribe(id)
		}
	}
	s.subs = nil
	s.src = nil
}

// Notify queues msg without blocking. A suppressed duplicate returns nil.
func (s *Service) Notify(msg Message) error {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.mu.Unlock()

	if msg.ChatID == 0 {
		msg.ChatID = s.cfg.ChatID
		msg.ThreadID = s.cfg.ThreadID
	}
	if msg.Key != "" && !s.dedupAllow(msg.Key, time.Now()) {
		s.log.Debug("notification deduped", logx.String("key", msg.Key))
		return nil
	}

	select {
	case q <- msg:
		return nil
	default:
		s.log.Warn("notification dropped", logx.Int("queue", cap(q)), logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
}

// Snapshot returns the recent send attempts, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) onEvent(name string, payload any) {
	text, key := Render(name, payload)
	if text == "" {
		return
	}
	_ = s.Notify(Message{Text: text, Key: key})
}

// Render formats a job event as one line; other payloads render by name.
func Render(name string, payload any) (text, key string) {
	var ev scheduler.JobEvent
	switch p := payload.(type) {
	case scheduler.JobEvent:
		ev = p
	case *scheduler.JobEvent:
		if p == nil {
			return name, name
		}
		ev = *p
	default:
		return name, name
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(ev.Kind)
	if ev.Group != "" {
		fmt.Fprintf(&b, " [%s]", ev.Group)
	}
	fmt.Fprintf(&b, " job=%s", ev.ID)
	if ev.Origin != "" {
		fmt.Fprintf(&b, " origin=%s", ev.Origin)
	}
	if ev.Duration > 0 {
		fmt.Fprintf(&b, " took=%s", ev.Duration.Round(time.Millisecond))
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, " err=%q", ev.Error)
	}
	return b.String(), name + "|" + ev.ID + "|" + ev.Error
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-q:
			s.sendWithRetry(ctx, m)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, m Message) {
	attempts := 1 + s.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.lim.Wait(ctx); err != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.sender.SendText(cctx, m.ChatID, m.ThreadID, m.Text)
		cancel()
		if err == nil {
			s.appendHistory(m.Text, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}

		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.appendHistory(m.Text, lastErr)
	s.log.Warn("notification failed", logx.Int64("chat_id", m.ChatID), logx.Err(lastErr))
}

func (s *Service) appendHistory(text string, err error) {
	it := HistoryItem{At: time.Now(), Text: text}
	if err != nil {
		it.Err = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

// dedupAllow records key and reports whether it was outside its window.
func (s *Service) dedupAllow(key string, now time.Time) bool {
	if s.cfg.DedupWindow <= 0 {
		return true
	}
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(s.cfg.DedupWindow)
	if len(s.dedup) > 2000 {
		for k, until := range s.dedup {
			if !now.Before(until) {
				delete(s.dedup, k)
			}
		}
	}
	return true
}

// retryDelay is base * 2^(attempt-1) with 0.7..1.3 jitter, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
