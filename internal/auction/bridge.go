package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/notify"
	"github.com/jensholdgaard/cricket-auction/internal/sio"
)

// ErrGaveUp is returned by Run once reconnect attempts are exhausted.
var ErrGaveUp = errors.New("auction socket: giving up after repeated connection failures")

// Socket is a connected broadcast channel. *sio.Conn implements it.
type Socket interface {
	Emit(ctx context.Context, event string, payload any) error
	Read(ctx context.Context) (sio.Message, error)
	Close() error
}

// Dialer opens a new Socket.
type Dialer func(ctx context.Context) (Socket, error)

// CurrentFetcher returns the server's current auction. *api.Client
// implements it.
type CurrentFetcher interface {
	Current(ctx context.Context, tournamentID string) (*model.CurrentAuction, error)
}

// Ledger records lot outcomes. *ledger.Manager implements it.
type Ledger interface {
	RecordSold(ctx context.Context, tournamentID string, player model.Player, teamID string, price int64) error
	RecordUnsold(ctx context.Context, tournamentID string, player model.Player) error
}

// Sink receives every new snapshot.
type Sink interface {
	Publish(ctx context.Context, s State) error
}

// Options tunes reconnection and wires optional collaborators.
type Options struct {
	// MaxAttempts is how many consecutive failed sessions are tolerated.
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration

	Ledger   Ledger
	Sinks    []Sink
	Notifier notify.Notifier
}

// Bridge joins a tournament's broadcast room and mirrors it locally.
type Bridge struct {
	tournamentID string
	mirror       *Mirror
	dial         Dialer
	current      CurrentFetcher
	events       event.Store
	opts         Options

	logger *slog.Logger
	tracer trace.Tracer
	tp     trace.TracerProvider
	clock  clock.Clock

	received   metric.Int64Counter
	reconnects metric.Int64Counter

	connected atomic.Bool
}

// NewBridge creates a Bridge with an idle mirror.
func NewBridge(tournamentID string, dial Dialer, current CurrentFetcher, events event.Store, opts Options, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Bridge, error) {
	meter := mp.Meter("github.com/jensholdgaard/cricket-auction/internal/auction")
	received, err := meter.Int64Counter("auction.events.received",
		metric.WithDescription("Socket events received from the auction server"))
	if err != nil {
		return nil, fmt.Errorf("creating received counter: %w", err)
	}
	reconnects, err := meter.Int64Counter("auction.socket.reconnects",
		metric.WithDescription("Socket reconnect attempts"))
	if err != nil {
		return nil, fmt.Errorf("creating reconnect counter: %w", err)
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{Logger: logger}
	}

	return &Bridge{
		tournamentID: tournamentID,
		mirror:       NewMirror(tournamentID, tp, clk),
		dial:         dial,
		current:      current,
		events:       events,
		opts:         opts,
		logger:       logger,
		tracer:       tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/auction"),
		tp:           tp,
		clock:        clk,
		received:     received,
		reconnects:   reconnects,
	}, nil
}

// TournamentID returns the mirrored tournament.
func (b *Bridge) TournamentID() string { return b.tournamentID }

// Snapshot returns the mirrored state.
func (b *Bridge) Snapshot() State { return b.mirror.Snapshot() }

// Connected reports whether a socket session is live.
func (b *Bridge) Connected() bool { return b.connected.Load() }

// Ping fails while the socket is down. It fits health.Checker.
func (b *Bridge) Ping(context.Context) error {
	if !b.Connected() {
		return errors.New("auction socket disconnected")
	}
	return nil
}

// Recover seeds the mirror from recorded events so a restarted bridge
// starts from its last known state. It returns the number of events
// replayed.
func (b *Bridge) Recover(ctx context.Context) (int, error) {
	ctx, span := b.tracer.Start(ctx, "Bridge.Recover",
		trace.WithAttributes(attribute.String("tournament.id", b.tournamentID)),
	)
	defer span.End()

	events, err := b.events.Load(ctx, b.tournamentID)
	if err != nil {
		return 0, fmt.Errorf("loading events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	m, err := Replay(events, b.tp, b.clock)
	if err != nil {
		return 0, err
	}
	b.mirror.restore(m.Snapshot())

	b.logger.InfoContext(ctx, "recovered auction mirror",
		slog.String("tournament_id", b.tournamentID),
		slog.Int("events", len(events)),
		slog.Int("version", m.Snapshot().Version),
	)
	return len(events), nil
}

// Run mirrors the auction until ctx is cancelled or reconnects are
// exhausted. Cancellation only stops local mirroring; the server-side
// auction keeps running.
func (b *Bridge) Run(ctx context.Context) error {
	if _, err := b.Recover(ctx); err != nil {
		b.logger.WarnContext(ctx, "auction recovery failed, starting empty", slog.Any("error", err))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.opts.InitialDelay
	bo.MaxInterval = b.opts.MaxDelay
	bo.Multiplier = 2

	var failures uint
	for {
		live, err := b.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if live {
			failures = 0
			bo.Reset()
		}
		failures++
		if failures >= b.opts.MaxAttempts {
			b.logger.ErrorContext(ctx, "auction socket gave up",
				slog.Uint64("attempts", uint64(failures)),
				slog.Any("error", err),
			)
			return fmt.Errorf("%w (%d attempts): %v", ErrGaveUp, failures, err)
		}

		delay := bo.NextBackOff()
		b.reconnects.Add(ctx, 1)
		b.logger.WarnContext(ctx, "auction socket lost, reconnecting",
			slog.Any("error", err),
			slog.Uint64("attempt", uint64(failures)),
			slog.Duration("delay", delay),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one socket connection. live reports whether the room was
// joined before the session ended.
func (b *Bridge) session(ctx context.Context) (live bool, err error) {
	sock, err := b.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dialing auction socket: %w", err)
	}
	defer sock.Close()

	room := event.RoomData{TournamentID: b.tournamentID}
	if err := sock.Emit(ctx, string(event.JoinAuction), room); err != nil {
		return false, fmt.Errorf("joining auction room: %w", err)
	}

	// Leave the room on cancellation and unblock Read.
	left := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(left)
		leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := sock.Emit(leaveCtx, string(event.LeaveAuction), room); err != nil {
			b.logger.DebugContext(leaveCtx, "leaving auction room failed", slog.Any("error", err))
		}
		_ = sock.Close()
	})
	defer func() {
		if !stop() {
			<-left
		}
	}()

	b.connected.Store(true)
	defer b.connected.Store(false)
	b.logger.InfoContext(ctx, "joined auction room", slog.String("tournament_id", b.tournamentID))

	b.resync(ctx)

	for {
		msg, err := sock.Read(ctx)
		if err != nil {
			return true, err
		}
		b.handle(ctx, msg)
	}
}

// resync rebuilds the mirror from REST after (re)joining the room.
func (b *Bridge) resync(ctx context.Context) {
	ctx, span := b.tracer.Start(ctx, "Bridge.resync")
	defer span.End()

	cur, err := b.current.Current(ctx, b.tournamentID)
	if err != nil {
		span.RecordError(err)
		b.logger.WarnContext(ctx, "fetching current auction failed", slog.Any("error", err))
		b.notify(ctx, notify.Notice{Level: notify.LevelError, Title: "Resync failed", Message: err.Error()})
		return
	}
	change, err := b.mirror.Reset(ctx, *cur)
	if err != nil {
		span.RecordError(err)
		b.logger.ErrorContext(ctx, "resetting mirror failed", slog.Any("error", err))
		return
	}
	b.persist(ctx)
	b.publish(ctx, change.Next)
}

// handle applies one broadcast and fans the result out.
func (b *Bridge) handle(ctx context.Context, msg sio.Message) {
	typ := event.Type(msg.Event)
	ctx, span := b.tracer.Start(ctx, "Bridge.handle",
		trace.WithAttributes(attribute.String("event", msg.Event)),
	)
	defer span.End()

	b.received.Add(ctx, 1, metric.WithAttributes(attribute.String("event", msg.Event)))

	change, err := b.mirror.Apply(ctx, typ, msg.Data)
	if errors.Is(err, ErrUnknownEvent) {
		b.logger.DebugContext(ctx, "ignoring socket event", slog.String("event", msg.Event))
		return
	}
	if err != nil {
		b.logger.WarnContext(ctx, "dropping socket event",
			slog.String("event", msg.Event),
			slog.Any("error", err),
		)
		return
	}
	if change.Partial != nil {
		b.logger.WarnContext(ctx, "closed lot from unreadable payload",
			slog.String("event", msg.Event),
			slog.Any("error", change.Partial),
		)
	}

	b.persist(ctx)
	b.record(ctx, change)
	b.publish(ctx, change.Next)
	if n, ok := noticeFor(change); ok {
		b.notify(ctx, n)
	}
}

func (b *Bridge) persist(ctx context.Context) {
	if err := b.events.Append(ctx, b.mirror.PendingEvents()...); err != nil {
		b.logger.ErrorContext(ctx, "failed to persist auction events", slog.Any("error", err))
	}
}

func (b *Bridge) record(ctx context.Context, c Change) {
	if b.opts.Ledger == nil {
		return
	}
	var err error
	switch d := c.Payload.(type) {
	case event.PlayerSoldData:
		if d.Player != nil {
			err = b.opts.Ledger.RecordSold(ctx, b.tournamentID, *d.Player, d.TeamID, d.SoldPrice)
		}
	case event.PlayerUnsoldData:
		if d.Player != nil {
			err = b.opts.Ledger.RecordUnsold(ctx, b.tournamentID, *d.Player)
		}
	}
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to record lot outcome", slog.Any("error", err))
	}
}

func (b *Bridge) publish(ctx context.Context, s State) {
	for _, sink := range b.opts.Sinks {
		if err := sink.Publish(ctx, s); err != nil {
			b.logger.WarnContext(ctx, "publishing snapshot failed", slog.Any("error", err))
		}
	}
}

func (b *Bridge) notify(ctx context.Context, n notify.Notice) {
	if err := b.opts.Notifier.Notify(ctx, n); err != nil {
		b.logger.WarnContext(ctx, "notice delivery failed", slog.Any("error", err))
	}
}

// noticeFor turns a change into the toast an operator would see.
func noticeFor(c Change) (notify.Notice, bool) {
	teamName := func(id string) string {
		if t, ok := c.Next.Team(id); ok && t.Name != "" {
			return t.Name
		}
		if id == "" {
			return "unknown team"
		}
		return id
	}

	switch d := c.Payload.(type) {
	case event.AuctionStartedData:
		return notify.Notice{Level: notify.LevelInfo, Title: "Auction started", Message: "Bidding is open"}, true
	case event.PlayerSelectedData:
		return notify.Notice{
			Level:   notify.LevelInfo,
			Title:   "Now bidding",
			Message: fmt.Sprintf("%s (%s), base price %d", d.Player.Name, d.Player.Category, d.Player.BasePrice),
		}, true
	case event.BidPlacedData:
		name := "current player"
		if p := c.Next.CurrentPlayer; p != nil {
			name = p.Name
		}
		return notify.Notice{
			Level:   notify.LevelInfo,
			Title:   "Bid placed",
			Message: fmt.Sprintf("%s bids %d for %s", teamName(d.TeamID), d.Amount, name),
		}, true
	case event.PlayerSoldData:
		if d.Player == nil {
			return notify.Notice{}, false
		}
		return notify.Notice{
			Level:   notify.LevelSuccess,
			Title:   "Sold",
			Message: fmt.Sprintf("%s sold to %s for %d", d.Player.Name, teamName(d.TeamID), d.SoldPrice),
		}, true
	case event.PlayerUnsoldData:
		if d.Player == nil {
			return notify.Notice{}, false
		}
		return notify.Notice{Level: notify.LevelWarning, Title: "Unsold", Message: d.Player.Name + " went unsold"}, true
	}
	return notify.Notice{}, false
}

// SocketDialer adapts sio.Dial to a Dialer for a server base URL.
func SocketDialer(baseURL string) Dialer {
	return func(ctx context.Context) (Socket, error) {
		dialCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		conn, err := sio.Dial(dialCtx, baseURL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
