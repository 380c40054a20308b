package nn

import (
	"errors"
	"math"
	"testing"

	"koipond/internal/model"
)

func TestForwardSimpleFeedForward(t *testing.T) {
	genome := model.Genome{
		Neurons: []model.Neuron{
			{ID: "i1", Activation: "identity"},
			{ID: "i2", Activation: "identity"},
			{ID: "o", Activation: "identity", Bias: 0.5},
		},
		Synapses: []model.Synapse{
			{From: "i1", To: "o", Weight: 2, Enabled: true},
			{From: "i2", To: "o", Weight: -1, Enabled: true},
		},
	}

	values, err := Forward(genome, map[string]float64{"i1": 1.0, "i2": 0.25})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	want := 1.0
	if math.Abs(values["o"]-want) > 1e-9 {
		t.Fatalf("unexpected output: got=%f want=%f", values["o"], want)
	}
}

func TestForwardUnsupportedActivation(t *testing.T) {
	genome := model.Genome{
		Neurons: []model.Neuron{{ID: "o", Activation: "unknown"}},
	}

	_, err := Forward(genome, map[string]float64{})
	if err == nil {
		t.Fatal("expected unsupported activation error")
	}
}

func TestApplyActivation(t *testing.T) {
	tests := []struct {
		name   string
		act    string
		x      float64
		want   float64
		hasErr bool
	}{
		{name: "identity", act: "identity", x: 2.5, want: 2.5},
		{name: "relu-negative", act: "relu", x: -1, want: 0},
		{name: "relu-positive", act: "relu", x: 3, want: 3},
		{name: "tanh", act: "tanh", x: 0, want: 0},
		{name: "sigmoid", act: "sigmoid", x: 0, want: 0.5},
		{name: "gaussian", act: "gaussian", x: 0, want: 1},
		{name: "unknown", act: "none", hasErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := applyActivation(tc.act, tc.x)
			if tc.hasErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("unexpected value: got=%f want=%f", got, tc.want)
			}
		})
	}
}

func twoInputGenome() model.Genome {
	return model.Genome{
		ID: "g1",
		Neurons: []model.Neuron{
			{ID: "i1", Activation: "identity"},
			{ID: "i2", Activation: "identity"},
			{ID: "h", Activation: "relu"},
			{ID: "o1", Activation: "identity", Bias: 0.5},
			{ID: "o2", Activation: "tanh"},
		},
		Synapses: []model.Synapse{
			{ID: "s1", From: "i1", To: "h", Weight: 1, Enabled: true},
			{ID: "s2", From: "i2", To: "h", Weight: 1, Enabled: true},
			{ID: "s3", From: "h", To: "o1", Weight: 2, Enabled: true},
			{ID: "s4", From: "i1", To: "o2", Weight: 3, Enabled: false},
		},
		InputIDs:  []string{"i1", "i2"},
		OutputIDs: []string{"o1", "o2"},
	}
}

func TestNetworkMatchesForward(t *testing.T) {
	genome := twoInputGenome()
	net, err := NewNetwork(genome)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if net.InputWidth() != 2 || net.OutputWidth() != 2 {
		t.Fatalf("unexpected widths: in=%d out=%d", net.InputWidth(), net.OutputWidth())
	}

	for _, in := range [][]float64{{1, 2}, {-3, 1}, {0, 0}} {
		out, err := net.Activate(in)
		if err != nil {
			t.Fatalf("activate %v: %v", in, err)
		}
		values, err := Forward(genome, map[string]float64{"i1": in[0], "i2": in[1]})
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		if math.Abs(out[0]-values["o1"]) > 1e-12 || math.Abs(out[1]-values["o2"]) > 1e-12 {
			t.Fatalf("network and forward disagree for %v: net=%v forward=(%f,%f)", in, out, values["o1"], values["o2"])
		}
	}
}

func TestNetworkIsPure(t *testing.T) {
	net, err := NewNetwork(twoInputGenome())
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	first, _ := net.Activate([]float64{0.3, 0.4})
	_, _ = net.Activate([]float64{9, 9})
	again, _ := net.Activate([]float64{0.3, 0.4})
	if first[0] != again[0] || first[1] != again[1] {
		t.Fatalf("activation depends on history: %v vs %v", first, again)
	}
}

func TestNetworkRejectsWrongInputWidth(t *testing.T) {
	net, err := NewNetwork(twoInputGenome())
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if _, err := net.Activate([]float64{1}); !errors.Is(err, ErrInputWidth) {
		t.Fatalf("expected ErrInputWidth, got %v", err)
	}
}

func TestNetworkReportsNonFiniteOutput(t *testing.T) {
	genome := twoInputGenome()
	genome.Synapses[2].Weight = math.Inf(1)
	net, err := NewNetwork(genome)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if _, err := net.Activate([]float64{1, 1}); err == nil {
		t.Fatal("expected non-finite output error")
	}
}

func TestNewNetworkValidation(t *testing.T) {
	genome := twoInputGenome()
	genome.InputIDs = []string{"missing"}
	if _, err := NewNetwork(genome); err == nil {
		t.Fatal("expected unknown input error")
	}

	genome = twoInputGenome()
	genome.Neurons[2].Activation = "nope"
	if _, err := NewNetwork(genome); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got %v", err)
	}

	genome = twoInputGenome()
	genome.Synapses = append(genome.Synapses, model.Synapse{ID: "bad", From: "ghost", To: "o1", Enabled: true})
	if _, err := NewNetwork(genome); err == nil {
		t.Fatal("expected unknown source error")
	}
}
