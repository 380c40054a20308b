package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"koipond/internal/model"
)

const namespace = "koipond"

// Collector holds the run's instruments. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	generation         prometheus.Gauge
	bestFitness        prometheus.Gauge
	meanFitness        prometheus.Gauge
	speciesCount       prometheus.Gauge
	agentsAlive        prometheus.Gauge
	deaths             prometheus.Counter
	controllerErrors   prometheus.Counter
	renderErrors       prometheus.Counter
	checkpoints        *prometheus.CounterVec
	generationDuration prometheus.Histogram
}

func New() *Collector {
	c := &Collector{
		registry:         prometheus.NewRegistry(),
		generation:       gauge("generation", "Index of the last evaluated generation."),
		bestFitness:      gauge("best_fitness", "Best genome fitness in the last evaluated generation."),
		meanFitness:      gauge("mean_fitness", "Mean genome fitness in the last evaluated generation."),
		speciesCount:     gauge("species", "Number of species in the last evaluated generation."),
		agentsAlive:      gauge("agents_alive", "Koi still active in the current trial."),
		deaths:           counter("agent_deaths_total", "Koi removed from a trial by starvation."),
		controllerErrors: counter("controller_errors_total", "Failed controller activations."),
		renderErrors:     counter("render_errors_total", "Frames the renderer failed to draw."),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoint attempts by result.",
		}, []string{"result"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time spent evaluating one generation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
	c.registry.MustRegister(
		c.generation, c.bestFitness, c.meanFitness, c.speciesCount,
		c.agentsAlive, c.deaths, c.controllerErrors, c.renderErrors,
		c.checkpoints, c.generationDuration,
	)
	return c
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveGeneration(diag model.GenerationDiagnostics, took time.Duration) {
	if c == nil {
		return
	}
	c.generation.Set(float64(diag.Generation))
	c.bestFitness.Set(diag.BestFitness)
	c.meanFitness.Set(diag.MeanFitness)
	c.speciesCount.Set(float64(diag.SpeciesCount))
	c.generationDuration.Observe(took.Seconds())
}

func (c *Collector) SetAlive(n int) {
	if c == nil {
		return
	}
	c.agentsAlive.Set(float64(n))
}

func (c *Collector) Death() {
	if c == nil {
		return
	}
	c.deaths.Inc()
}

func (c *Collector) ControllerError() {
	if c == nil {
		return
	}
	c.controllerErrors.Inc()
}

func (c *Collector) RenderError() {
	if c == nil {
		return
	}
	c.renderErrors.Inc()
}

// Checkpoint counts one checkpoint attempt.
func (c *Collector) Checkpoint(ok bool) {
	if c == nil {
		return
	}
	result := "written"
	if !ok {
		result = "failed"
	}
	c.checkpoints.WithLabelValues(result).Inc()
}
