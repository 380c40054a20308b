package render

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"koipond/internal/model"
	"koipond/internal/simulation"
)

var ErrClosed = errors.New("renderer is closed")

type Options struct {
	PondWidth  float64
	PondHeight float64
	Columns    int
	Rows       int
	// FPS caps the frame rate. Zero renders as fast as frames arrive.
	FPS          int
	Leaderboard  func() []model.SpeciesRecord
	OnCheckpoint func()

	Input          io.Reader
	Output         io.Writer
	ProgramOptions []tea.ProgramOption
}

// Terminal draws the pond with bubbletea. It implements simulation.Renderer
// and simulation.HandleProvider.
type Terminal struct {
	program  *tea.Program
	interval time.Duration

	done chan struct{}
	err  error

	mu      sync.Mutex
	sprites map[string]*Sprite
	started bool
	closed  bool
}

var (
	_ simulation.Renderer       = (*Terminal)(nil)
	_ simulation.HandleProvider = (*Terminal)(nil)
)

func NewTerminal(opts Options) *Terminal {
	if opts.Columns <= 0 {
		opts.Columns = 80
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}
	programOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	programOpts = append(programOpts, opts.ProgramOptions...)

	t := &Terminal{
		program: tea.NewProgram(newPondView(opts), programOpts...),
		done:    make(chan struct{}),
		sprites: make(map[string]*Sprite),
	}
	if opts.FPS > 0 {
		t.interval = time.Second / time.Duration(opts.FPS)
	}
	return t
}

// Start runs the UI in the background until the user quits or Close is
// called.
func (t *Terminal) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	go func() {
		defer close(t.done)
		if _, err := t.program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			t.err = err
		}
	}()
}

// Done is closed once the UI has exited.
func (t *Terminal) Done() <-chan struct{} { return t.done }

func (t *Terminal) SetGeneration(generation int) {
	if !t.isStarted() || t.exited() {
		return
	}
	t.program.Send(generationMsg(generation))
}

// Render hands the frame to the UI and waits out the frame interval. It
// returns false once the user has quit.
func (t *Terminal) Render(ctx context.Context, frame simulation.Frame) (bool, error) {
	if t.exited() {
		return false, t.err
	}
	if !t.isStarted() {
		return false, ErrClosed
	}
	t.program.Send(frameMsg(frame))
	if t.interval <= 0 {
		return true, nil
	}
	timer := time.NewTimer(t.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true, nil
	case <-t.done:
		return false, t.err
	case <-timer.C:
		return true, nil
	}
}

// Acquire registers a sprite for a koi entering the pond.
func (t *Terminal) Acquire(agent model.AgentSnapshot) (model.Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	s := &Sprite{owner: t, genomeID: agent.GenomeID, colorKey: agent.ColorKey}
	t.sprites[agent.GenomeID] = s
	return s, nil
}

// Sprites reports how many sprites are currently held.
func (t *Terminal) Sprites() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sprites)
}

// Close stops the UI and waits for it to exit.
func (t *Terminal) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	t.mu.Unlock()

	if !started {
		return nil
	}
	t.program.Quit()
	<-t.done
	return t.err
}

func (t *Terminal) release(s *Sprite) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.sprites[s.genomeID]; ok && cur == s {
		delete(t.sprites, s.genomeID)
	}
}

func (t *Terminal) exited() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Terminal) isStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Sprite is the display handle a koi holds while it is drawn.
type Sprite struct {
	owner    *Terminal
	genomeID string
	colorKey string
	once     sync.Once
}

func (s *Sprite) GenomeID() string { return s.genomeID }

func (s *Sprite) Release() error {
	s.once.Do(func() { s.owner.release(s) })
	return nil
}
