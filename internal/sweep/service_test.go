package sweep

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"romabot/internal/manifest"
	"romabot/internal/transport"
	"romabot/pkg/logx"
)

var testBase = time.Date(2026, 3, 10, 8, 0, 0, 0, time.FixedZone("-03", -3*60*60))

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Location() *time.Location { return testBase.Location() }

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentItem struct {
	chatID int64
	text   string
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentItem
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, to transport.ChatTarget, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentItem{chatID: to.ChatID, text: text})
	return d.err
}

func (d *fakeDispatcher) sends() []sentItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentItem(nil), d.sent...)
}

type fakeSaver struct {
	mu    sync.Mutex
	saves int
	last  manifest.Registry
}

func (s *fakeSaver) Save(_ context.Context, reg manifest.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.last = reg
	return nil
}

func TestTickFiresTightestTierOnce(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(testBase)
	store := manifest.NewStore()
	disp := &fakeDispatcher{}
	svc := New(Config{}, store, disp, nil, clk, logx.Nop())

	store.Insert(10, "ACME", testBase.Add(2*time.Hour), clk.Now())
	clk.Advance(76 * time.Minute) // 44 min remain, 60 and 45 both crossed

	svc.tick(context.Background())

	sent := disp.sends()
	if len(sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(sent))
	}
	if sent[0].chatID != 10 || !strings.Contains(sent[0].text, "ACME") || !strings.Contains(sent[0].text, "44") {
		t.Fatalf("unexpected alert: %+v", sent[0])
	}
	recs := store.List(10)
	if recs[0].LastTier != 45 {
		t.Fatalf("LastTier = %d, want 45 (tightest crossed, not 60)", recs[0].LastTier)
	}

	// Same window on the next cadence: nothing tighter crossed, no re-fire.
	clk.Advance(20 * time.Second)
	svc.tick(context.Background())
	if got := len(disp.sends()); got != 1 {
		t.Fatalf("sends after second tick = %d, want 1", got)
	}
	snap := svc.Snapshot()
	if snap.Ticks != 2 || snap.Alerts != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestTickExpiresOnce(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(testBase)
	store := manifest.NewStore()
	disp := &fakeDispatcher{}
	svc := New(Config{}, store, disp, nil, clk, logx.Nop())

	store.Insert(7, "BETA", testBase.Add(30*time.Second), clk.Now())
	clk.Advance(time.Minute)

	svc.tick(context.Background())
	sent := disp.sends()
	if len(sent) != 1 || !strings.Contains(sent[0].text, "BETA") {
		t.Fatalf("sends = %+v, want one overdue notice", sent)
	}
	if recs := store.List(7); recs[0].Status != manifest.StatusExpired {
		t.Fatalf("status = %q, want expired", recs[0].Status)
	}

	clk.Advance(20 * time.Second)
	svc.tick(context.Background())
	if got := len(disp.sends()); got != 1 {
		t.Fatalf("expired record re-notified: sends = %d", got)
	}
	if snap := svc.Snapshot(); snap.Expiries != 1 {
		t.Fatalf("expiries = %d, want 1", snap.Expiries)
	}
}

func TestDispatchFailureStillAdvancesBookkeeping(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(testBase)
	store := manifest.NewStore()
	disp := &fakeDispatcher{err: errors.New("telegram down")}
	svc := New(Config{}, store, disp, nil, clk, logx.Nop())

	store.Insert(3, "GAMA", testBase.Add(2*time.Hour), clk.Now())
	clk.Advance(76 * time.Minute)

	svc.tick(context.Background())
	if recs := store.List(3); recs[0].LastTier != 45 {
		t.Fatalf("LastTier = %d, want 45 even after dispatch failure", recs[0].LastTier)
	}
	snap := svc.Snapshot()
	if snap.Alerts != 1 || snap.DispatchFailures != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// The tier is consumed; the transport being back does not replay it.
	disp.err = nil
	clk.Advance(20 * time.Second)
	svc.tick(context.Background())
	if got := len(disp.sends()); got != 1 {
		t.Fatalf("failed tier was replayed: sends = %d", got)
	}
}

func TestTickSavesOncePerMutatingPass(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(testBase)
	store := manifest.NewStore()
	disp := &fakeDispatcher{}
	saver := &fakeSaver{}
	svc := New(Config{}, store, disp, saver, clk, logx.Nop())

	store.Insert(1, "ACME", testBase.Add(2*time.Hour), clk.Now())
	store.Insert(2, "BETA", testBase.Add(2*time.Hour), clk.Now())
	clk.Advance(76 * time.Minute)

	svc.tick(context.Background())
	if len(disp.sends()) != 2 {
		t.Fatalf("sends = %d, want 2", len(disp.sends()))
	}
	if saver.saves != 1 {
		t.Fatalf("saves = %d, want exactly 1 for the whole tick", saver.saves)
	}
	if len(saver.last) != 2 {
		t.Fatalf("saved registry has %d chats, want 2", len(saver.last))
	}

	// Quiet tick: nothing changed, nothing written.
	clk.Advance(20 * time.Second)
	svc.tick(context.Background())
	if saver.saves != 1 {
		t.Fatalf("saves after quiet tick = %d, want 1", saver.saves)
	}
}

func TestSpacingGuardDefersTighterTier(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(testBase)
	store := manifest.NewStore()
	disp := &fakeDispatcher{}
	svc := New(Config{Tiers: []int{45, 44}, MinSpacing: time.Minute}, store, disp, nil, clk, logx.Nop())

	store.Insert(5, "ACME", testBase.Add(90*time.Minute), clk.Now())

	clk.Advance(44*time.Minute + 30*time.Second) // 45 min remain
	svc.tick(context.Background())
	if got := len(disp.sends()); got != 1 {
		t.Fatalf("sends = %d, want 1 (tier 45)", got)
	}

	// 44 crossed 40s later, but inside the spacing window: deferred, not lost.
	clk.Advance(40 * time.Second)
	svc.tick(context.Background())
	if got := len(disp.sends()); got != 1 {
		t.Fatalf("spacing guard did not defer: sends = %d", got)
	}

	clk.Advance(30 * time.Second)
	svc.tick(context.Background())
	if got := len(disp.sends()); got != 2 {
		t.Fatalf("deferred tier never fired: sends = %d", got)
	}
	if recs := store.List(5); recs[0].LastTier != 44 {
		t.Fatalf("LastTier = %d, want 44", recs[0].LastTier)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(testBase)
	svc := New(Config{Interval: 5 * time.Millisecond}, manifest.NewStore(), &fakeDispatcher{}, nil, clk, logx.Nop())

	ctx := context.Background()
	svc.Start(ctx)
	svc.Start(ctx) // idempotent
	time.Sleep(100 * time.Millisecond)
	svc.Stop(ctx)
	svc.Stop(ctx)

	if snap := svc.Snapshot(); snap.Ticks == 0 {
		t.Fatal("no ticks recorded while running")
	}
}
