// Package presenter turns log store snapshots into display rows.
//
// It holds no rendering toolkit state: a viewing surface calls
// OnVisible each time it is shown and draws the returned rows.
package presenter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/uxhost/pkg/core"
)

// Display defaults.
const (
	HeaderSeparator   = " · "
	StepPlaceholder   = "-"
	MetaPrefix        = "Meta: "
	DefaultTimeFormat = "15:04:05"
)

// Source supplies newest-first snapshots of the log.
type Source interface {
	Snapshot(ctx context.Context) ([]core.Event, error)
}

// Snapshotter is the read side of an in-process log store.
type Snapshotter interface {
	Snapshot() []core.Event
}

type storeSource struct{ s Snapshotter }

func (ss storeSource) Snapshot(context.Context) ([]core.Event, error) {
	return ss.s.Snapshot(), nil
}

// FromStore adapts an in-process store to Source.
func FromStore(s Snapshotter) Source {
	return storeSource{s: s}
}

// Row is one rendered log entry.
type Row struct {
	Category string
	Header   string
	Time     string
	Message  string
	Meta     string
	ShowMeta bool
	Color    lipgloss.Color
}

// Options control how rows are formatted.
type Options struct {
	TimeFormat string
	Location   *time.Location
	Palette    Palette
}

// DefaultOptions formats times as HH:MM:SS in local time.
func DefaultOptions() Options {
	return Options{
		TimeFormat: DefaultTimeFormat,
		Location:   time.Local,
		Palette:    DefaultPalette(),
	}
}

// Present converts a newest-first snapshot into rows, preserving order.
func Present(snapshot []core.Event, opts Options) []Row {
	if opts.TimeFormat == "" {
		opts.TimeFormat = DefaultTimeFormat
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	rows := make([]Row, len(snapshot))
	for i, ev := range snapshot {
		rows[i] = presentOne(ev, opts)
	}
	return rows
}

func presentOne(ev core.Event, opts Options) Row {
	row := Row{
		Category: ev.Type,
		Header:   ev.Type + HeaderSeparator + ev.StepOr(StepPlaceholder),
		Time:     ev.Time().In(opts.Location).Format(opts.TimeFormat),
		Message:  ev.Message,
		Color:    opts.Palette.Color(ev.Type),
	}
	if meta := ev.MetaString(); meta != "" {
		row.Meta = MetaPrefix + meta
		row.ShowMeta = true
	}
	return row
}

// Text renders rows as plain text, one block per entry.
func Text(rows []Row) string {
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.Time)
		b.WriteString("  ")
		b.WriteString(r.Header)
		b.WriteByte('\n')
		b.WriteString("  ")
		b.WriteString(r.Message)
		b.WriteByte('\n')
		if r.ShowMeta {
			b.WriteString("  ")
			b.WriteString(r.Meta)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Presenter keeps the rows currently shown by a viewing surface.
type Presenter struct {
	source Source
	opts   Options

	mu      sync.Mutex
	rows    []Row
	visible bool
}

// New creates a presenter reading from source.
func New(source Source, opts Options) *Presenter {
	return &Presenter{source: source, opts: opts}
}

// OnVisible re-reads the source and replaces the current rows. It must
// be called every time the surface becomes visible, including the first.
// On error the previous rows are kept.
func (p *Presenter) OnVisible(ctx context.Context) ([]Row, error) {
	p.mu.Lock()
	p.visible = true
	p.mu.Unlock()

	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		return p.Rows(), err
	}
	rows := Present(snap, p.opts)

	p.mu.Lock()
	p.rows = rows
	p.mu.Unlock()
	return rows, nil
}

// OnHidden records that the surface is no longer visible.
func (p *Presenter) OnHidden() {
	p.mu.Lock()
	p.visible = false
	p.mu.Unlock()
}

// Visible reports whether the surface is currently shown.
func (p *Presenter) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Rows returns the rows from the last refresh.
func (p *Presenter) Rows() []Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Row(nil), p.rows...)
}

// Options returns the formatting options.
func (p *Presenter) Options() Options {
	return p.opts
}
