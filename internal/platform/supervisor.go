package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SupervisorPolicy controls how failed services are restarted.
type SupervisorPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// MaxRestarts gives up on a service after this many restarts. Zero
	// restarts forever.
	MaxRestarts int
}

type SupervisorHooks struct {
	OnRestart func(name string, err error, restarts int)
	OnGiveUp  func(name string, err error, restarts int)
}

// ServiceStatus describes a supervised service.
type ServiceStatus struct {
	Name         string `json:"name"`
	Running      bool   `json:"running"`
	RestartCount int    `json:"restart_count"`
	LastError    string `json:"last_error,omitempty"`
	GaveUp       bool   `json:"gave_up"`
}

func defaultSupervisorPolicy() SupervisorPolicy {
	return SupervisorPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

func normalizeSupervisorPolicy(policy SupervisorPolicy) SupervisorPolicy {
	def := defaultSupervisorPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	return policy
}

// Supervisor keeps the run's background services (the metrics endpoint)
// alive, restarting any that return before they are stopped.
type Supervisor struct {
	policy SupervisorPolicy
	hooks  SupervisorHooks

	mu       sync.Mutex
	services map[string]*service
	finished map[string]ServiceStatus
}

type service struct {
	cancel context.CancelFunc
	done   chan struct{}

	restarts int
	lastErr  error
	gaveUp   bool
}

func NewSupervisor(policy SupervisorPolicy, hooks SupervisorHooks) *Supervisor {
	return &Supervisor{
		policy:   normalizeSupervisorPolicy(policy),
		hooks:    hooks,
		services: make(map[string]*service),
		finished: make(map[string]ServiceStatus),
	}
}

func (s *Supervisor) Start(name string, run func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("service runner is required")
	}

	s.mu.Lock()
	if _, exists := s.services[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("service already running: %s", name)
	}
	delete(s.finished, name)
	ctx, cancel := context.WithCancel(context.Background())
	svc := &service{cancel: cancel, done: make(chan struct{})}
	s.services[name] = svc
	s.mu.Unlock()

	go s.supervise(ctx, name, svc, run)
	return nil
}

func (s *Supervisor) supervise(ctx context.Context, name string, svc *service, run func(ctx context.Context) error) {
	defer func() {
		s.mu.Lock()
		if current, ok := s.services[name]; ok && current == svc {
			if svc.gaveUp || svc.restarts > 0 {
				s.finished[name] = statusOf(name, svc, false)
			}
			delete(s.services, name)
		}
		s.mu.Unlock()
		close(svc.done)
	}()

	backoff := s.policy.InitialBackoff
	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("service exited")
		}

		s.mu.Lock()
		svc.lastErr = err
		restarts := svc.restarts
		if s.policy.MaxRestarts > 0 && restarts >= s.policy.MaxRestarts {
			svc.gaveUp = true
			s.mu.Unlock()
			if s.hooks.OnGiveUp != nil {
				s.hooks.OnGiveUp(name, err, restarts)
			}
			return
		}
		svc.restarts++
		restarts = svc.restarts
		s.mu.Unlock()

		if s.hooks.OnRestart != nil {
			s.hooks.OnRestart(name, err, restarts)
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*s.policy.BackoffFactor), s.policy.MaxBackoff)
	}
}

func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	svc, ok := s.services[name]
	delete(s.finished, name)
	s.mu.Unlock()
	if !ok {
		return
	}
	svc.cancel()
	<-svc.done
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	running := make([]*service, 0, len(s.services))
	for _, svc := range s.services {
		running = append(running, svc)
	}
	s.mu.Unlock()

	for _, svc := range running {
		svc.cancel()
	}
	for _, svc := range running {
		<-svc.done
	}
}

// Services reports running services and those that failed before exiting,
// sorted by name.
func (s *Supervisor) Services() []ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ServiceStatus, 0, len(s.services)+len(s.finished))
	for name, svc := range s.services {
		out = append(out, statusOf(name, svc, true))
	}
	for name, st := range s.finished {
		if _, running := s.services[name]; !running {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func statusOf(name string, svc *service, running bool) ServiceStatus {
	st := ServiceStatus{
		Name:         name,
		Running:      running,
		RestartCount: svc.restarts,
		GaveUp:       svc.gaveUp,
	}
	if svc.lastErr != nil {
		st.LastError = svc.lastErr.Error()
	}
	return st
}
