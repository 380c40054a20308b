package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koipond/internal/model"
)

func TestCollectorRecordsGeneration(t *testing.T) {
	c := New()
	c.ObserveGeneration(model.GenerationDiagnostics{
		Generation:   4,
		BestFitness:  180.5,
		MeanFitness:  90,
		SpeciesCount: 3,
	}, 250*time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.generation))
	assert.Equal(t, 180.5, testutil.ToFloat64(c.bestFitness))
	assert.Equal(t, 90.0, testutil.ToFloat64(c.meanFitness))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.speciesCount))
	assert.Equal(t, 1, testutil.CollectAndCount(c.generationDuration))
}

func TestCollectorCounters(t *testing.T) {
	c := New()
	c.Death()
	c.Death()
	c.ControllerError()
	c.RenderError()
	c.SetAlive(7)
	c.Checkpoint(true)
	c.Checkpoint(false)
	c.Checkpoint(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.deaths))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.controllerErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.renderErrors))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.agentsAlive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpoints.WithLabelValues("written")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.checkpoints.WithLabelValues("failed")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Death()
		c.ControllerError()
		c.RenderError()
		c.SetAlive(1)
		c.Checkpoint(true)
		c.ObserveGeneration(model.GenerationDiagnostics{}, time.Second)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.Death()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "koipond_agent_deaths_total 1"))
}
