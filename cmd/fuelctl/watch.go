package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sweeney/fuel-kiosk/internal/web"
)

type feedSource interface {
	Feed(ctx context.Context, n int) (web.Feed, error)
}

type feedMsg struct {
	feed web.Feed
	at   time.Time
}

type fetchErrMsg struct{ err error }

type refreshMsg struct{}

// watchModel polls the feed on an interval and renders it.
type watchModel struct {
	source   feedSource
	interval time.Duration
	timeout  time.Duration

	feed    web.Feed
	loaded  bool
	updated time.Time
	err     error
}

func newWatchModel(source feedSource, interval time.Duration) watchModel {
	return watchModel{source: source, interval: interval, timeout: 5 * time.Second}
}

func (m watchModel) Init() tea.Cmd {
	return m.fetch()
}

func (m watchModel) fetch() tea.Cmd {
	source, timeout := m.source, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		feed, err := source.Feed(ctx, 0)
		if err != nil {
			return fetchErrMsg{err}
		}
		return feedMsg{feed: feed, at: time.Now()}
	}
}

func (m watchModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case feedMsg:
		m.feed = msg.feed
		m.loaded = true
		m.updated = msg.at
		m.err = nil
		return m, m.scheduleRefresh()

	case fetchErrMsg:
		// Keep showing the last good feed.
		m.err = msg.err
		return m, m.scheduleRefresh()

	case refreshMsg:
		return m, m.fetch()
	}
	return m, nil
}

func (m watchModel) View() string {
	var body string
	if m.loaded {
		body = renderFeed(m.feed)
	} else if m.err == nil {
		body = dimStyle.Render("connecting...")
	}

	footer := dimStyle.Render("q quit · r refresh")
	if !m.updated.IsZero() {
		footer = dimStyle.Render("updated "+m.updated.Format("15:04:05")+" · q quit · r refresh")
	}
	if m.err != nil {
		footer = errStyle.Render(m.err.Error()) + "\n" + footer
	}
	return body + "\n\n" + footer + "\n"
}
