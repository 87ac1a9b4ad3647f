package render

import (
	"sync"

	"github.com/rubiojr/pinmap/pkg/stats"
)

// Chart selectors used by the controller.
const (
	ChartRate   = "loc-stats-rate"
	ChartUpdate = "loc-stats-update"
)

// FormMode tells whether the edit form creates or updates.
type FormMode string

const (
	FormCreate FormMode = "create"
	FormUpdate FormMode = "update"
)

// Form is the edit dialog. Rate zero means no rating selected.
type Form struct {
	Open bool     `json:"open"`
	Mode FormMode `json:"mode,omitempty"`
	Name string   `json:"name"`
	Rate int      `json:"rate"`
}

// ChartView is a chart plus its rendered gradient.
type ChartView struct {
	Gradient string      `json:"gradient"`
	Chart    stats.Chart `json:"chart"`
}

// Snapshot is a copy of everything on the page.
type Snapshot struct {
	Items         []ListItem           `json:"items"`
	EmptyText     string               `json:"emptyText,omitempty"`
	Detail        Detail               `json:"detail"`
	Charts        map[string]ChartView `json:"charts"`
	Debug         string               `json:"debug"`
	FilterText    string               `json:"filterText"`
	FilterMinRate int                  `json:"filterMinRate"`
	Form          Form                 `json:"form"`
	Message       Message              `json:"message"`
}

// Sink receives render output from the controller.
type Sink interface {
	RenderList(items []ListItem)
	SetActive(id string)
	ShowDetail(d Detail)
	HideDetail()
	RenderChart(selector string, c stats.Chart)
	RenderDebug(dump string)
	SetFilterInputs(text string, minRate int)
	OpenForm(f Form)
	CloseForm()
	Flash(msg string)
}

// Page is an in-memory Sink, the server-side stand-in for the DOM.
type Page struct {
	notifier *Notifier

	mu       sync.RWMutex
	items    []ListItem
	detail   Detail
	charts   map[string]ChartView
	debug    string
	txt      string
	minRate  int
	form     Form
	messages []string
}

var _ Sink = (*Page)(nil)

func NewPage(n *Notifier) *Page {
	if n == nil {
		n = NewNotifier(DefaultFlashDelay)
	}
	return &Page{notifier: n, charts: map[string]ChartView{}}
}

func (p *Page) RenderList(items []ListItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append([]ListItem(nil), items...)
}

// SetActive clears every active entry before marking id, so at most one
// entry is active. An empty id only clears.
func (p *Page) SetActive(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.items {
		p.items[i].Active = false
	}
	if id == "" {
		return
	}
	for i := range p.items {
		if p.items[i].ID == id {
			p.items[i].Active = true
			return
		}
	}
}

func (p *Page) ShowDetail(d Detail) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d.Visible = true
	p.detail = d
}

func (p *Page) HideDetail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detail.Visible = false
}

func (p *Page) RenderChart(selector string, c stats.Chart) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charts[selector] = ChartView{Gradient: c.Gradient(), Chart: c}
}

func (p *Page) RenderDebug(dump string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debug = dump
}

func (p *Page) SetFilterInputs(text string, minRate int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txt, p.minRate = text, minRate
}

func (p *Page) OpenForm(f Form) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.Open = true
	p.form = f
}

func (p *Page) CloseForm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.form = Form{}
}

func (p *Page) Flash(msg string) {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	p.notifier.Flash(msg)
}

// Messages returns every message flashed so far, oldest first.
func (p *Page) Messages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.messages...)
}

// ActiveCount returns how many list entries are marked active.
func (p *Page) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, it := range p.items {
		if it.Active {
			n++
		}
	}
	return n
}

func (p *Page) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Snapshot{
		Items:         append([]ListItem{}, p.items...),
		Detail:        p.detail,
		Charts:        make(map[string]ChartView, len(p.charts)),
		Debug:         p.debug,
		FilterText:    p.txt,
		FilterMinRate: p.minRate,
		Form:          p.form,
		Message:       p.notifier.Current(),
	}
	if len(s.Items) == 0 {
		s.EmptyText = EmptyList
	}
	for k, v := range p.charts {
		s.Charts[k] = v
	}
	return s
}
