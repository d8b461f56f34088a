package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/tradewatch/internal/lane"
	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/render"
)

type captureSink struct {
	mu      sync.Mutex
	updates []render.Update
	ch      chan render.Update
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan render.Update, 64)}
}

func (s *captureSink) Render(u render.Update) {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
	s.ch <- u
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	for cat, lc := range cfg.Lanes {
		lc.MaxCount = 3
		lc.MaxWait = 100 * time.Millisecond
		cfg.Lanes[cat] = lc
	}
	return cfg
}

// startRegistry registers a separate capture sink for every category.
func startRegistry(t *testing.T, cfg Config) (Registry, map[model.Category]*captureSink) {
	t.Helper()
	r := NewRegistry(cfg, nil, nil)
	sinks := make(map[model.Category]*captureSink)
	for _, cat := range model.Categories() {
		s := newCaptureSink()
		sinks[cat] = s
		if err := r.RegisterSink(cat, s); err != nil {
			t.Fatalf("RegisterSink(%s): %v", cat, err)
		}
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	return r, sinks
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	for _, cat := range model.Categories() {
		if _, ok := cfg.Lanes[cat]; !ok {
			t.Errorf("%s: no lane config", cat)
		}
	}
}

func TestRegistry_StartRequiresEverySink(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil, nil)
	for _, cat := range model.Categories() {
		if cat == model.CountryCodes {
			continue
		}
		if err := r.RegisterSink(cat, newCaptureSink()); err != nil {
			t.Fatalf("RegisterSink: %v", err)
		}
	}

	err := r.Start(context.Background())
	if !errors.Is(err, ErrMissingSink) {
		t.Fatalf("Start = %v, want ErrMissingSink", err)
	}
}

func TestRegistry_RegisterSinkErrors(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil, nil)

	if err := r.RegisterSink(model.Unknown, newCaptureSink()); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("unknown category: %v", err)
	}
	if err := r.RegisterSink(model.SellValue, nil); !errors.Is(err, ErrNilSink) {
		t.Errorf("nil sink: %v", err)
	}
	if err := r.RegisterSink(model.SellValue, newCaptureSink()); err != nil {
		t.Fatalf("RegisterSink: %v", err)
	}
	if err := r.RegisterSink(model.SellValue, newCaptureSink()); !errors.Is(err, ErrSinkRegistered) {
		t.Errorf("second sink: %v", err)
	}
}

func TestRegistry_RegisterAfterStart(t *testing.T) {
	r, _ := startRegistry(t, fastConfig())
	if err := r.RegisterSink(model.SellValue, newCaptureSink()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("RegisterSink after Start = %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}
}

func TestRegistry_UnknownCategoryDropped(t *testing.T) {
	r, sinks := startRegistry(t, fastConfig())

	err := r.Route(model.Envelope{
		Category: model.ParseEvent("FOO"),
		Event:    "FOO",
		Payload:  json.RawMessage(`{}`),
		Source:   model.SourcePush,
	})
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("Route = %v, want ErrUnknownCategory", err)
	}

	time.Sleep(200 * time.Millisecond)
	for cat, s := range sinks {
		if s.count() != 0 {
			t.Errorf("%s sink invoked %d times", cat, s.count())
		}
	}
	if got := r.Stats().Unknown; got != 1 {
		t.Errorf("Unknown = %d, want 1", got)
	}
}

func TestRegistry_RoutesToOwnSinkOnly(t *testing.T) {
	r, sinks := startRegistry(t, fastConfig())

	payload := json.RawMessage(`[{"currency":"EUR","volume":4}]`)
	if err := r.Route(model.Envelope{Category: model.SellVolume, Payload: payload, Source: model.SourcePush}); err != nil {
		t.Fatalf("Route: %v", err)
	}

	select {
	case u := <-sinks[model.SellVolume].ch:
		if u.Category != model.SellVolume || u.Mode != render.ModeFull || u.FirstLoad {
			t.Errorf("unexpected update: %+v", u)
		}
		if u.Count != 1 || u.Reason != "deadline" {
			t.Errorf("count=%d reason=%s", u.Count, u.Reason)
		}
		if len(u.Fragment.Rows) != 1 || u.Fragment.Rows[0][0] != "EUR" {
			t.Errorf("fragment = %+v", u.Fragment)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sell volume update")
	}

	for cat, s := range sinks {
		if cat != model.SellVolume && s.count() != 0 {
			t.Errorf("%s sink invoked", cat)
		}
	}
}

func TestRegistry_OneUpdatePerFlush(t *testing.T) {
	r, sinks := startRegistry(t, fastConfig())

	for i := 0; i < 6; i++ {
		r.Route(model.Envelope{
			Category: model.LatestTrades,
			Payload:  json.RawMessage(`{"userId":"1","currencyFrom":"EUR","currencyTo":"GBP"}`),
			Source:   model.SourcePush,
		})
	}

	s := sinks[model.LatestTrades]
	for i := 0; i < 2; i++ {
		select {
		case u := <-s.ch:
			if u.Mode != render.ModePartial || u.Count != 3 || len(u.Fragment.Rows) != 3 {
				t.Errorf("update %d: mode=%s count=%d rows=%d", i, u.Mode, u.Count, len(u.Fragment.Rows))
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for trades update")
		}
	}
	time.Sleep(200 * time.Millisecond)
	if s.count() != 2 {
		t.Errorf("sink invoked %d times, want 2", s.count())
	}
}

func TestRegistry_DriverExclusion(t *testing.T) {
	r, sinks := startRegistry(t, fastConfig())

	if r.Driver(model.SellValue) != model.SourcePush {
		t.Fatalf("default driver = %s", r.Driver(model.SellValue))
	}
	if r.Driver(model.CountryCodes) != model.SourcePoll {
		t.Fatalf("country codes driver = %s", r.Driver(model.CountryCodes))
	}

	poll := model.Envelope{Category: model.SellValue, Payload: json.RawMessage(`[]`), Source: model.SourcePoll}
	if err := r.Route(poll); !errors.Is(err, ErrWrongTransport) {
		t.Errorf("poll envelope on push lane = %v", err)
	}

	if err := r.SetDriver(model.SellValue, model.SourcePoll); err != nil {
		t.Fatalf("SetDriver: %v", err)
	}
	push := poll
	push.Source = model.SourcePush
	if err := r.Route(push); !errors.Is(err, ErrWrongTransport) {
		t.Errorf("push envelope on poll lane = %v", err)
	}
	if err := r.Route(poll); err != nil {
		t.Errorf("poll envelope after switch = %v", err)
	}

	select {
	case <-sinks[model.SellValue].ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for update")
	}

	stats := r.Stats()
	if stats.WrongTransport != 2 || stats.Routed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Drivers["sell_value"] != "poll" {
		t.Errorf("drivers = %v", stats.Drivers)
	}
}

func TestRegistry_SetDriverErrors(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil, nil)
	if err := r.SetDriver(model.CountryCodes, model.SourcePush); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("push on poll-only = %v", err)
	}
	if err := r.SetDriver(model.SellValue, model.Source(0)); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("zero source = %v", err)
	}
	if err := r.SetDriver(model.Category(42), model.SourcePoll); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("unknown category = %v", err)
	}
}

func TestRegistry_RouteLifecycle(t *testing.T) {
	r := NewRegistry(fastConfig(), nil, nil)
	env := model.Envelope{Category: model.BuyValue, Payload: json.RawMessage(`[]`), Source: model.SourcePush}
	if err := r.Route(env); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Route before Start = %v", err)
	}

	for _, cat := range model.Categories() {
		r.RegisterSink(cat, newCaptureSink())
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Route(env); !errors.Is(err, ErrStopped) {
		t.Errorf("Route after Stop = %v", err)
	}
}

func TestRegistry_StopDrainsPending(t *testing.T) {
	cfg := fastConfig()
	lc := cfg.Lanes[model.BuyVolume]
	lc.MaxWait = time.Minute
	cfg.Lanes[model.BuyVolume] = lc

	r, sinks := startRegistry(t, cfg)
	r.Route(model.Envelope{Category: model.BuyVolume, Payload: json.RawMessage(`[]`), Source: model.SourcePush})

	time.Sleep(50 * time.Millisecond)
	state, err := r.Snapshot(model.BuyVolume)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.Count != 1 || !state.Armed {
		t.Errorf("pending state = %+v", state)
	}

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case u := <-sinks[model.BuyVolume].ch:
		if u.Reason != lane.ReasonDrain.String() {
			t.Errorf("reason = %s", u.Reason)
		}
	default:
		t.Fatal("expected drain update after Stop")
	}
}

func TestRegistry_FormatErrorStillDelivers(t *testing.T) {
	failing := func(model.Category, []json.RawMessage) (render.Fragment, error) {
		return render.Fragment{}, errors.New("bad payload")
	}
	r := NewRegistry(fastConfig(), failing, nil)
	sink := newCaptureSink()
	for _, cat := range model.Categories() {
		if cat == model.SellVolume {
			r.RegisterSink(cat, sink)
			continue
		}
		r.RegisterSink(cat, newCaptureSink())
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())

	r.Route(model.Envelope{Category: model.SellVolume, Payload: json.RawMessage(`"x"`), Source: model.SourcePush})
	select {
	case u := <-sink.ch:
		if len(u.Raw) != 1 || !u.Fragment.Empty() {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	if r.Stats().FormatErrors != 1 {
		t.Errorf("FormatErrors = %d", r.Stats().FormatErrors)
	}
}
