package render

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"koipond/internal/model"
	"koipond/internal/simulation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func headless(opts Options) *Terminal {
	opts.Input = bytes.NewReader(nil)
	opts.Output = io.Discard
	opts.ProgramOptions = append(opts.ProgramOptions,
		tea.WithoutSignals(),
		tea.WithoutCatchPanics(),
		tea.WithoutRenderer(),
	)
	return NewTerminal(opts)
}

func testView() pondView {
	return newPondView(Options{PondWidth: 100, PondHeight: 50, Columns: 20, Rows: 10})
}

func TestViewQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		next, cmd := testView().Update(key)
		require.NotNil(t, cmd, key.String())
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.Empty(t, next.View())
	}
}

func TestViewCheckpointKey(t *testing.T) {
	calls := 0
	v := newPondView(Options{OnCheckpoint: func() { calls++ }})
	next, cmd := v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, next.(pondView).snapshots)

	// without a hook the key is ignored
	_, cmd = testView().Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Nil(t, cmd)
}

func TestViewResizesToWindow(t *testing.T) {
	next, _ := testView().Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	v := next.(pondView)
	assert.Equal(t, 120-panelWidth-4, v.columns)
	assert.Equal(t, 36, v.rows)

	next, _ = testView().Update(tea.WindowSizeMsg{Width: 10, Height: 2})
	v = next.(pondView)
	assert.Equal(t, 10, v.columns)
	assert.Equal(t, 5, v.rows)
}

func TestViewDrawsFrame(t *testing.T) {
	v := newPondView(Options{
		PondWidth: 100, PondHeight: 50, Columns: 20, Rows: 10,
		Leaderboard: func() []model.SpeciesRecord {
			return []model.SpeciesRecord{{SpeciesID: 4, ScientificName: "Cyprinus aureus", HighestFitness: 321, ColorKey: "Kohaku"}}
		},
	})
	next, _ := v.Update(generationMsg(7))
	next, _ = next.Update(frameMsg(simulation.Frame{
		Trial: 0,
		Step:  12,
		Agents: []model.AgentSnapshot{
			{GenomeID: "a", Position: [2]float64{10, 10}, LastPosition: [2]float64{5, 10}, ColorKey: "Kohaku"},
		},
		LilyPads: [][2]float64{{90, 40}},
	}))

	out := next.View()
	assert.Contains(t, out, "generation 7")
	assert.Contains(t, out, "step 12")
	assert.Contains(t, out, "alive 1")
	assert.Contains(t, out, ">")
	assert.Contains(t, out, "o")
	assert.Contains(t, out, "Cyprinus aureus")
	assert.Contains(t, out, "fitness 321")
}

func TestViewEmptyLeaderboard(t *testing.T) {
	v := newPondView(Options{Leaderboard: func() []model.SpeciesRecord { return nil }})
	assert.Contains(t, v.View(), "nothing recorded yet")
	assert.Contains(t, testView().View(), "no leaderboard")
}

func TestGlyphFollowsMovement(t *testing.T) {
	cases := map[string][2]float64{
		"●": {0, 0},
		">": {3, 1},
		"<": {-3, 1},
		"v": {1, 3},
		"^": {1, -3},
	}
	for want, delta := range cases {
		a := model.AgentSnapshot{Position: [2]float64{10 + delta[0], 10 + delta[1]}, LastPosition: [2]float64{10, 10}}
		assert.Equal(t, want, glyph(a), "delta %v", delta)
	}
}

func TestCellClampsToGrid(t *testing.T) {
	v := testView()
	c, r := v.cell([2]float64{-5, 500})
	assert.Equal(t, 0, c)
	assert.Equal(t, 9, r)
	c, r = v.cell([2]float64{100, 0})
	assert.Equal(t, 19, c)
	assert.Equal(t, 0, r)
}

func TestTerminalRenderBeforeStart(t *testing.T) {
	term := headless(Options{PondWidth: 100, PondHeight: 50})
	ok, err := term.Render(context.Background(), simulation.Frame{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, term.Close())
}

func TestTerminalRendersUntilClosed(t *testing.T) {
	term := headless(Options{PondWidth: 100, PondHeight: 50, FPS: 200})
	term.Start()

	term.SetGeneration(3)
	for step := 0; step < 5; step++ {
		ok, err := term.Render(context.Background(), simulation.Frame{Step: step})
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, term.Close())

	ok, err := term.Render(context.Background(), simulation.Frame{})
	assert.False(t, ok)
	assert.NoError(t, err)
	require.NoError(t, term.Close())
}

func TestTerminalStopsWhenUserQuits(t *testing.T) {
	term := headless(Options{PondWidth: 100, PondHeight: 50})
	term.Start()
	term.program.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	select {
	case <-term.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("program did not exit")
	}
	ok, err := term.Render(context.Background(), simulation.Frame{})
	assert.False(t, ok)
	assert.NoError(t, err)
	require.NoError(t, term.Close())
}

func TestTerminalSprites(t *testing.T) {
	term := headless(Options{})
	a, err := term.Acquire(model.AgentSnapshot{GenomeID: "a", ColorKey: "Asagi"})
	require.NoError(t, err)
	b, err := term.Acquire(model.AgentSnapshot{GenomeID: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, term.Sprites())
	assert.Equal(t, "a", a.(*Sprite).GenomeID())

	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	assert.Equal(t, 1, term.Sprites())

	// a re-acquired sprite is not freed by the stale handle
	fresh, err := term.Acquire(model.AgentSnapshot{GenomeID: "b"})
	require.NoError(t, err)
	require.NoError(t, b.Release())
	assert.Equal(t, 1, term.Sprites())
	require.NoError(t, fresh.Release())
	assert.Equal(t, 0, term.Sprites())

	require.NoError(t, term.Close())
	_, err = term.Acquire(model.AgentSnapshot{GenomeID: "c"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHeaderMentionsPads(t *testing.T) {
	v := testView()
	next, _ := v.Update(frameMsg(simulation.Frame{LilyPads: [][2]float64{{1, 1}, {2, 2}}}))
	assert.True(t, strings.Contains(next.View(), "pads 2"))
}
