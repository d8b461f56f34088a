package ui

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/render"
)

type fakeActions struct {
	mu     sync.Mutex
	random int
	bulk   int
	err    error
}

func (f *fakeActions) PlaceRandomTrade(ctx context.Context) (model.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.random++
	return model.Trade{CurrencyFrom: "EUR", CurrencyTo: "GBP", AmountSell: 10}, f.err
}

func (f *fakeActions) PlaceBulkTrades(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk++
	return 25, f.err
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func tradeUpdate(mode render.Mode, rows ...string) render.Update {
	frag := render.Fragment{Columns: []string{"Placed", "User"}}
	for _, r := range rows {
		frag.Rows = append(frag.Rows, []string{r, "u"})
	}
	return render.Update{Category: model.LatestTrades, Mode: mode, Count: len(rows), Fragment: frag}
}

func TestPanel_PartialPrependsAndCaps(t *testing.T) {
	p := NewPanel(model.LatestTrades, 3)

	p.Apply(tradeUpdate(render.ModeFull, "a", "b"))
	p.Apply(tradeUpdate(render.ModePartial, "c", "d"))

	rows := p.Rows()
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	want := []string{"c", "d", "a"}
	for i, w := range want {
		if rows[i][0] != w {
			t.Errorf("row %d = %q, want %q", i, rows[i][0], w)
		}
	}
	if p.Updates() != 2 {
		t.Errorf("Updates() = %d, want 2", p.Updates())
	}
}

func TestPanel_FullReplaces(t *testing.T) {
	p := NewPanel(model.SellVolume, 0)
	p.Apply(render.Update{Category: model.SellVolume, Mode: render.ModeFull, Fragment: render.Fragment{
		Columns: []string{"Currency", "Trades"}, Rows: [][]string{{"EUR", "3"}, {"GBP", "1"}},
	}})
	p.Apply(render.Update{Category: model.SellVolume, Mode: render.ModeFull, Fragment: render.Fragment{
		Columns: []string{"Currency", "Trades"}, Rows: [][]string{{"USD", "9"}},
	}})

	if rows := p.Rows(); len(rows) != 1 || rows[0][0] != "USD" {
		t.Errorf("rows = %v, want only USD", rows)
	}
	if !strings.Contains(p.View(), "USD") {
		t.Error("View() should contain the latest row")
	}
}

func TestModel_UpdateRoutesToPanel(t *testing.T) {
	m := NewModel(nil, Options{})
	m.Update(UpdateMsg{Update: tradeUpdate(render.ModeFull, "x")})

	if got := len(m.Panel(model.LatestTrades).Rows()); got != 1 {
		t.Errorf("latest trades rows = %d, want 1", got)
	}
	if got := m.Panel(model.SellValue).Updates(); got != 0 {
		t.Errorf("sell value updates = %d, want 0", got)
	}
}

func TestModel_LoadingHiddenAfterReady(t *testing.T) {
	m := NewModel(nil, Options{Expected: 2, ReadyDelay: time.Second})

	m.Update(ProgressMsg{Completed: 1, Expected: 2, Percent: 50})
	if !m.Loading() {
		t.Fatal("should still be loading after one completion")
	}

	_, cmd := m.Update(ReadyMsg{})
	if cmd == nil {
		t.Fatal("ReadyMsg should schedule hiding the loading view")
	}
	if !m.Loading() {
		t.Error("loading view should linger until the delay elapses")
	}

	m.Update(hideLoadingMsg{})
	if m.Loading() {
		t.Error("loading view should be hidden")
	}
}

func TestModel_Banner(t *testing.T) {
	m := NewModel(nil, Options{})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	m.Update(ConnectionMsg{Lost: true})
	if !m.Lost() {
		t.Fatal("Lost() should be true")
	}
	if !strings.Contains(m.View(), "Connection lost") {
		t.Error("View() should show the banner")
	}

	m.Update(ConnectionMsg{Lost: false})
	if m.Lost() {
		t.Error("Lost() should be false after reopen")
	}
}

func TestModel_TradeKeysCooldown(t *testing.T) {
	actions := &fakeActions{}
	m := NewModel(actions, Options{})

	_, cmd := m.Update(keyMsg("r"))
	if cmd == nil {
		t.Fatal("r should return a command")
	}
	if !m.randomBusy {
		t.Error("random key should be cooling down")
	}

	// Second press during the cooldown is ignored.
	if _, cmd := m.Update(keyMsg("r")); cmd != nil {
		t.Error("r during cooldown should be ignored")
	}

	m.Update(cooldownMsg{})
	if m.randomBusy {
		t.Error("cooldown should clear")
	}

	m.Update(keyMsg("b"))
	if !m.bulkBusy {
		t.Error("bulk key should be cooling down")
	}
	if m.randomBusy {
		t.Error("bulk cooldown must not block random trades")
	}
}

// runBatch executes every command of a batch and returns the messages.
func runBatch(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("command did not return a batch")
	}
	var msgs []tea.Msg
	for _, c := range batch {
		if c != nil {
			msgs = append(msgs, c())
		}
	}
	return msgs
}

func TestModel_TradeResults(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		err    error
		status string
	}{
		{name: "random", key: "r", status: "placed EUR→GBP 10.00"},
		{name: "bulk", key: "b", status: "placed 25 trades"},
		{name: "random error", key: "r", err: errors.New("boom"), status: "trade failed: boom"},
		{name: "bulk error", key: "b", err: errors.New("boom"), status: "bulk trades failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(&fakeActions{err: tt.err}, Options{})
			_, cmd := m.Update(keyMsg(tt.key))

			for _, msg := range runBatch(t, cmd) {
				m.Update(msg)
			}
			if m.statusMsg != tt.status {
				t.Errorf("statusMsg = %q, want %q", m.statusMsg, tt.status)
			}
			if m.randomBusy || m.bulkBusy {
				t.Error("cooldown should have cleared")
			}
		})
	}
}

func TestModel_TradeKeysDisabledWithoutActions(t *testing.T) {
	m := NewModel(nil, Options{})
	if _, cmd := m.Update(keyMsg("r")); cmd != nil {
		t.Error("r without actions should do nothing")
	}
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(nil, Options{})
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestModel_ViewLayouts(t *testing.T) {
	m := NewModel(nil, Options{})
	if m.View() != "Initializing..." {
		t.Error("View before sizing should be the placeholder")
	}

	m.Update(tea.WindowSizeMsg{Width: 160, Height: 48})
	if !strings.Contains(m.View(), "Loading dashboard") {
		t.Error("View should show loading first")
	}

	m.Update(hideLoadingMsg{})
	m.Update(UpdateMsg{Update: render.Update{
		Category: model.CountryCodes, Mode: render.ModeFull,
		Fragment: render.Fragment{Columns: []string{"Country"}, Rows: [][]string{{"DE"}, {"IE"}}},
	}})
	view := m.View()
	for _, want := range []string{model.LatestTrades.Title(), model.BuyValue.Title(), "DE IE"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestBridge(t *testing.T) {
	rs := &recordingSender{}
	b := NewBridge(rs)

	b.Render(tradeUpdate(render.ModePartial, "a"))
	b.ConnectionOpened()
	b.ConnectionLost()
	b.BootstrapProgress(1, 7, 14)
	b.BootstrapReady()

	if len(rs.msgs) != 5 {
		t.Fatalf("sent %d messages, want 5", len(rs.msgs))
	}
	if _, ok := rs.msgs[0].(UpdateMsg); !ok {
		t.Errorf("msg 0 = %T, want UpdateMsg", rs.msgs[0])
	}
	if c, ok := rs.msgs[2].(ConnectionMsg); !ok || !c.Lost {
		t.Errorf("msg 2 = %+v, want lost ConnectionMsg", rs.msgs[2])
	}
	if p, ok := rs.msgs[3].(ProgressMsg); !ok || p.Percent != 14 {
		t.Errorf("msg 3 = %+v, want ProgressMsg 14%%", rs.msgs[3])
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	s.Render(render.Update{Category: model.SellValue, Mode: render.ModeFull, FirstLoad: true, Count: 1})
	s.ConnectionLost()

	out := buf.String()
	for _, want := range []string{"category=sell_value", "first_load=true", "push channel lost"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
