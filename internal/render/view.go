package render

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"koipond/internal/koi"
	"koipond/internal/model"
	"koipond/internal/simulation"
)

type frameMsg simulation.Frame

type generationMsg int

var (
	waterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#1F4E79"))
	padStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3CB371"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F5F5F5"))
	panelStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5064B4")).
			Padding(0, 1)
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

// pondView is the bubbletea model behind the terminal renderer.
type pondView struct {
	pondWidth  float64
	pondHeight float64
	columns    int
	rows       int

	frame      simulation.Frame
	generation int
	board      func() []model.SpeciesRecord
	onSnapshot func()
	snapshots  int
	quitting   bool
}

func newPondView(opts Options) pondView {
	return pondView{
		pondWidth:  opts.PondWidth,
		pondHeight: opts.PondHeight,
		columns:    opts.Columns,
		rows:       opts.Rows,
		board:      opts.Leaderboard,
		onSnapshot: opts.OnCheckpoint,
	}
}

func (v pondView) Init() tea.Cmd { return nil }

func (v pondView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			v.quitting = true
			return v, tea.Quit
		case "c":
			if v.onSnapshot != nil {
				v.onSnapshot()
				v.snapshots++
			}
		}
	case tea.WindowSizeMsg:
		v.columns = max(msg.Width-panelWidth-4, 10)
		v.rows = max(msg.Height-4, 5)
	case frameMsg:
		v.frame = simulation.Frame(msg)
	case generationMsg:
		v.generation = int(msg)
	}
	return v, nil
}

const panelWidth = 34

func (v pondView) View() string {
	if v.quitting {
		return ""
	}
	header := headerStyle.Render(fmt.Sprintf("Koi pond  generation %d  trial %d  step %d  alive %d  pads %d",
		v.generation, v.frame.Trial, v.frame.Step, len(v.frame.Agents), len(v.frame.LilyPads)))
	body := lipgloss.JoinHorizontal(lipgloss.Top, v.grid(), v.panel())
	footer := dimStyle.Render("q quit  c checkpoint")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// grid draws the pond scaled to columns x rows. Koi are drawn over pads.
func (v pondView) grid() string {
	if v.columns <= 0 || v.rows <= 0 || v.pondWidth <= 0 || v.pondHeight <= 0 {
		return ""
	}
	cells := make([][]string, v.rows)
	for r := range cells {
		cells[r] = make([]string, v.columns)
		for c := range cells[r] {
			cells[r][c] = waterStyle.Render("~")
		}
	}
	for _, pad := range v.frame.LilyPads {
		c, r := v.cell(pad)
		cells[r][c] = padStyle.Render("o")
	}
	for _, a := range v.frame.Agents {
		c, r := v.cell(a.Position)
		cells[r][c] = agentStyle(a.ColorKey).Render(glyph(a))
	}

	var b strings.Builder
	for r, row := range cells {
		if r > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(row, ""))
	}
	return b.String()
}

func (v pondView) cell(p [2]float64) (int, int) {
	c := int(p[0] / v.pondWidth * float64(v.columns-1))
	r := int(p[1] / v.pondHeight * float64(v.rows-1))
	return clampInt(c, 0, v.columns-1), clampInt(r, 0, v.rows-1)
}

func (v pondView) panel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Top species"))
	if v.board == nil {
		b.WriteString("\n" + dimStyle.Render("no leaderboard"))
		return panelStyle.Width(panelWidth).Render(b.String())
	}
	top := v.board()
	if len(top) == 0 {
		b.WriteString("\n" + dimStyle.Render("nothing recorded yet"))
	}
	for i, rec := range top {
		name := rec.ScientificName
		if name == "" {
			name = fmt.Sprintf("Species %d", rec.SpeciesID)
		}
		fmt.Fprintf(&b, "\n%d. %s %s\n   fitness %.0f  gen %d-%d",
			i+1, agentStyle(rec.ColorKey).Render("●"), name,
			rec.HighestFitness, rec.FirstGeneration, rec.LastGeneration)
	}
	return panelStyle.Width(panelWidth).Render(b.String())
}

func agentStyle(colorKey string) lipgloss.Style {
	p, ok := koi.PatternFor(colorKey)
	if !ok {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(p.Base))
}

// glyph points along the koi's last move.
func glyph(a model.AgentSnapshot) string {
	dx := a.Position[0] - a.LastPosition[0]
	dy := a.Position[1] - a.LastPosition[1]
	switch {
	case dx == 0 && dy == 0:
		return "●"
	case math.Abs(dx) >= math.Abs(dy) && dx > 0:
		return ">"
	case math.Abs(dx) >= math.Abs(dy):
		return "<"
	case dy > 0:
		return "v"
	default:
		return "^"
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
