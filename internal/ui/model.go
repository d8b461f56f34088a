package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rickgao/tradewatch/internal/model"
)

// Cooldowns after a trade key press, during which the key is ignored.
const (
	RandomCooldown = 250 * time.Millisecond
	BulkCooldown   = 1 * time.Second
	flashDuration  = 300 * time.Millisecond
	actionTimeout  = 10 * time.Second
)

// Actions places trades on the upstream service.
type Actions interface {
	PlaceRandomTrade(ctx context.Context) (model.Trade, error)
	PlaceBulkTrades(ctx context.Context) (int, error)
}

// Options configures the model.
type Options struct {
	Expected   int           // Bootstrap loads before the dashboard is ready
	LatestRows int           // Rows kept in the latest trades panel
	ReadyDelay time.Duration // Loading view lingers this long after ready
}

// Model is the dashboard program model.
type Model struct {
	actions Actions
	opts    Options
	keys    keyMap

	panels map[model.Category]*Panel

	// Bootstrap
	spinner   spinner.Model
	progress  progress.Model
	completed int
	percent   int
	loading   bool

	// Status
	lost       bool
	statusMsg  string
	randomBusy bool
	bulkBusy   bool

	width  int
	height int
	sized  bool
}

// NewModel creates the dashboard model. actions may be nil to disable trade keys.
func NewModel(actions Actions, opts Options) *Model {
	if opts.Expected < 1 {
		opts.Expected = model.BootstrapCount
	}
	if opts.LatestRows < 1 {
		opts.LatestRows = 50
	}

	panels := make(map[model.Category]*Panel)
	for _, cat := range model.Categories() {
		maxRows := 0
		if cat.Incremental() {
			maxRows = opts.LatestRows
		}
		panels[cat] = NewPanel(cat, maxRows)
	}

	return &Model{
		actions:  actions,
		opts:     opts,
		keys:     defaultKeyMap(),
		panels:   panels,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(TitleStyle)),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		loading:  true,
	}
}

// Init starts the loading spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Random):
			cmds = append(cmds, m.placeRandom())
		case key.Matches(msg, m.keys.Bulk):
			cmds = append(cmds, m.placeBulk())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sized = true

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case UpdateMsg:
		if p, ok := m.panels[msg.Update.Category]; ok {
			p.Apply(msg.Update)
			cmds = append(cmds, tea.Tick(flashDuration, func(time.Time) tea.Msg { return clearFlashMsg{} }))
		}

	case clearFlashMsg:
		for _, p := range m.panels {
			p.ClearFlash()
		}

	case ProgressMsg:
		m.completed = msg.Completed
		m.percent = msg.Percent

	case ReadyMsg:
		m.percent = 100
		m.completed = m.opts.Expected
		cmds = append(cmds, tea.Tick(m.opts.ReadyDelay, func(time.Time) tea.Msg { return hideLoadingMsg{} }))

	case hideLoadingMsg:
		m.loading = false

	case ConnectionMsg:
		m.lost = msg.Lost

	case cooldownMsg:
		if msg.bulk {
			m.bulkBusy = false
		} else {
			m.randomBusy = false
		}

	case tradeResultMsg:
		m.statusMsg = msg.message
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) placeRandom() tea.Cmd {
	if m.actions == nil || m.randomBusy {
		return nil
	}
	m.randomBusy = true
	actions := m.actions
	return tea.Batch(
		tea.Tick(RandomCooldown, func(time.Time) tea.Msg { return cooldownMsg{} }),
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			t, err := actions.PlaceRandomTrade(ctx)
			if err != nil {
				return tradeResultMsg{message: "trade failed: " + err.Error()}
			}
			return tradeResultMsg{message: fmt.Sprintf("placed %s→%s %.2f", t.CurrencyFrom, t.CurrencyTo, t.AmountSell)}
		},
	)
}

func (m *Model) placeBulk() tea.Cmd {
	if m.actions == nil || m.bulkBusy {
		return nil
	}
	m.bulkBusy = true
	actions := m.actions
	return tea.Batch(
		tea.Tick(BulkCooldown, func(time.Time) tea.Msg { return cooldownMsg{bulk: true} }),
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			n, err := actions.PlaceBulkTrades(ctx)
			if err != nil {
				return tradeResultMsg{message: "bulk trades failed: " + err.Error()}
			}
			return tradeResultMsg{message: fmt.Sprintf("placed %d trades", n)}
		},
	)
}

// Loading reports whether the loading view is shown.
func (m *Model) Loading() bool {
	return m.loading
}

// Lost reports whether the connection-lost banner is shown.
func (m *Model) Lost() bool {
	return m.lost
}

// Panel returns the panel of a category.
func (m *Model) Panel(cat model.Category) *Panel {
	return m.panels[cat]
}

// View renders the UI.
func (m *Model) View() string {
	if !m.sized {
		return "Initializing..."
	}

	var sections []string
	if m.lost {
		sections = append(sections, BannerStyle.Width(m.width).Render("Connection lost. Live updates have stopped; restart to reconnect."))
	}

	if m.loading {
		sections = append(sections, lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, m.loadingView()))
		sections = append(sections, m.renderStatusBar())
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	// Layout:
	// ┌──────────────────────┬───────────┬───────────┐
	// │    Latest trades     │ Countries │   Pairs   │
	// ├──────────┬───────────┼───────────┼───────────┤
	// │ Sold vol │ Sold val  │ Bought vol│ Bought val│
	// └──────────┴───────────┴───────────┴───────────┘
	quarter := m.width / 4
	half := m.width - 2*quarter
	avail := m.height - 3
	if m.lost {
		avail--
	}
	topHeight := avail * 3 / 5
	bottomHeight := avail - topHeight

	m.panels[model.LatestTrades].SetSize(half, topHeight)
	m.panels[model.CountryVolume].SetSize(quarter, topHeight)
	m.panels[model.CurrencyPairs].SetSize(quarter, topHeight)
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		m.panels[model.LatestTrades].View(),
		m.panels[model.CountryVolume].View(),
		m.panels[model.CurrencyPairs].View(),
	)

	bottomCats := []model.Category{model.SellVolume, model.SellValue, model.BuyVolume, model.BuyValue}
	views := make([]string, 0, len(bottomCats))
	for i, cat := range bottomCats {
		w := quarter
		if i == len(bottomCats)-1 {
			w = m.width - 3*quarter
		}
		m.panels[cat].SetSize(w, bottomHeight)
		views = append(views, m.panels[cat].View())
	}
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, views...)

	sections = append(sections, top, bottom, m.countriesLine(), m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) loadingView() string {
	title := m.spinner.View() + " Loading dashboard"
	bar := m.progress.ViewAs(float64(m.percent) / 100)
	count := MutedStyle.Render(fmt.Sprintf("%d of %d data sets loaded", m.completed, m.opts.Expected))
	return LoadingStyle.Render(lipgloss.JoinVertical(lipgloss.Center, TitleStyle.Render(title), "", bar, count))
}

func (m *Model) countriesLine() string {
	var codes []string
	for _, row := range m.panels[model.CountryCodes].Rows() {
		if len(row) > 0 {
			codes = append(codes, row[0])
		}
	}
	text := "none yet"
	if len(codes) > 0 {
		text = strings.Join(codes, " ")
	}
	return MutedStyle.Render(" " + model.CountryCodes.Title() + ": " + text)
}

func (m *Model) renderStatusBar() string {
	help := []string{
		StatusBarKeyStyle.Render(m.keys.Random.Help().Key) + StatusBarDescStyle.Render(" "+m.keys.Random.Help().Desc),
		StatusBarKeyStyle.Render(m.keys.Bulk.Help().Key) + StatusBarDescStyle.Render(" "+m.keys.Bulk.Help().Desc),
		StatusBarKeyStyle.Render(m.keys.Quit.Help().Key) + StatusBarDescStyle.Render(" "+m.keys.Quit.Help().Desc),
	}
	helpStr := strings.Join(help, " │ ")

	status := ""
	if m.statusMsg != "" {
		status = " │ " + m.statusMsg
	}
	return StatusBarStyle.Width(m.width).Render(helpStr + status)
}
