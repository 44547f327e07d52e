package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// termux-sms-list prints "received" in device local time.
const termuxTimeLayout = "2006-01-02 15:04:05"

// CommandRunner executes a termux-api binary and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

type termuxSMS struct {
	ID       int64  `json:"_id"`
	Number   string `json:"number"`
	Received string `json:"received"`
	Body     string `json:"body"`
}

// cursor orders messages by receive time, then by provider row id for
// messages sharing the same second.
type cursor struct {
	ReceivedMillis int64
	ID             int64
}

func (c cursor) before(o cursor) bool {
	if c.ReceivedMillis != o.ReceivedMillis {
		return c.ReceivedMillis < o.ReceivedMillis
	}
	return c.ID < o.ID
}

func (c cursor) String() string {
	return strconv.FormatInt(c.ReceivedMillis, 10) + ":" + strconv.FormatInt(c.ID, 10)
}

func parseCursor(raw string) (cursor, bool) {
	ms, id, _ := strings.Cut(strings.TrimSpace(raw), ":")
	received, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || received <= 0 {
		return cursor{}, false
	}
	rowID, _ := strconv.ParseInt(id, 10, 64)
	return cursor{ReceivedMillis: received, ID: rowID}, true
}

// TermuxPoller implements Source by polling the device inbox through
// termux-sms-list. The cursor lives in the settings store so restarts do
// not replay the inbox.
type TermuxPoller struct {
	store    settings.Store
	logger   *logging.Logger
	interval time.Duration
	limit    int
	location *time.Location
	run      CommandRunner
	now      func() time.Time
}

// TermuxOption customizes a TermuxPoller.
type TermuxOption func(*TermuxPoller)

func WithPollInterval(d time.Duration) TermuxOption {
	return func(p *TermuxPoller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithPollLimit(n int) TermuxOption {
	return func(p *TermuxPoller) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithCommandRunner replaces the exec-based runner.
func WithCommandRunner(run CommandRunner) TermuxOption {
	return func(p *TermuxPoller) {
		if run != nil {
			p.run = run
		}
	}
}

// WithLocation sets the zone used to read "received" timestamps.
func WithLocation(loc *time.Location) TermuxOption {
	return func(p *TermuxPoller) {
		if loc != nil {
			p.location = loc
		}
	}
}

func WithPollClock(now func() time.Time) TermuxOption {
	return func(p *TermuxPoller) {
		if now != nil {
			p.now = now
		}
	}
}

func NewTermuxPoller(store settings.Store, logger *logging.Logger, opts ...TermuxOption) *TermuxPoller {
	if store == nil {
		panic("ingest: settings store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &TermuxPoller{
		store:    store,
		logger:   logger.Component("ingest.termux"),
		interval: 15 * time.Second,
		limit:    50,
		location: time.Local,
		run:      runTermuxCommand,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls immediately and then on every interval until ctx is cancelled.
// Poll failures are logged and retried on the next tick.
func (p *TermuxPoller) Run(ctx context.Context, pub Publisher) error {
	if pub == nil {
		return errors.New("ingest: publisher cannot be nil")
	}

	cur, err := p.loadCursor(ctx)
	if err != nil {
		return err
	}

	cur = p.poll(ctx, pub, cur)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur = p.poll(ctx, pub, cur)
		}
	}
}

// loadCursor returns the stored cursor, or starts one at now on first run.
func (p *TermuxPoller) loadCursor(ctx context.Context) (cursor, error) {
	raw, err := p.store.Get(ctx, settings.KeyIngestCursor)
	if err != nil {
		return cursor{}, fmt.Errorf("ingest: load cursor: %w", err)
	}
	if cur, ok := parseCursor(raw); ok {
		return cur, nil
	}
	cur := cursor{ReceivedMillis: p.now().UnixMilli()}
	if err := p.store.Set(ctx, settings.KeyIngestCursor, cur.String()); err != nil {
		return cursor{}, fmt.Errorf("ingest: save cursor: %w", err)
	}
	p.logger.Info("first run, starting from now", "cursor", cur.String())
	return cur, nil
}

// poll publishes every inbox message after cur in receive order and returns
// the advanced cursor. A publish failure stops the batch so the message is
// picked up again next tick.
func (p *TermuxPoller) poll(ctx context.Context, pub Publisher, cur cursor) cursor {
	out, err := p.run(ctx, "termux-sms-list", "-l", strconv.Itoa(p.limit), "-t", "inbox")
	if err != nil {
		p.logger.Error("termux sms list failed", "error", err)
		return cur
	}

	var inbox []termuxSMS
	if err := json.Unmarshal(out, &inbox); err != nil {
		p.logger.Error("termux sms list returned invalid json", "error", err)
		return cur
	}

	type pending struct {
		at  cursor
		msg sms.InboundMessage
	}
	fresh := make([]pending, 0, len(inbox))
	for _, m := range inbox {
		received, err := time.ParseInLocation(termuxTimeLayout, m.Received, p.location)
		if err != nil {
			p.logger.Warn("skipping sms with unreadable timestamp", "id", m.ID, "received", m.Received)
			continue
		}
		at := cursor{ReceivedMillis: received.UnixMilli(), ID: m.ID}
		if !cur.before(at) {
			continue
		}
		fresh = append(fresh, pending{at: at, msg: sms.NewInboundMessage(m.Number, m.Body, received)})
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].at.before(fresh[j].at) })

	forwarded := 0
	next := cur
	for _, f := range fresh {
		if err := pub.Publish(ctx, f.msg); err != nil {
			p.logger.Error("failed to publish sms", "error", err, "sender", f.msg.Sender)
			break
		}
		next = f.at
		forwarded++
	}

	if next != cur {
		if err := p.store.Set(ctx, settings.KeyIngestCursor, next.String()); err != nil {
			p.logger.Error("failed to save ingest cursor", "error", err)
		}
	}
	if forwarded > 0 {
		p.logger.Info("forwarded sms from device inbox", "count", forwarded)
	}
	return next
}
