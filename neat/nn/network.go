// Package nn turns genomes into runnable neural networks.
package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/baldhumanity/neatkit/neat"
)

// ErrInputCount is returned when an activation gets the wrong number of inputs.
var ErrInputCount = errors.New("wrong number of inputs")

// relaxedDelta is the largest change of any neuron between two steps for a
// network to count as relaxed.
const relaxedDelta = 1e-9

type neuron struct {
	role       neat.NeuronRole
	activation neat.ActivationFunc
}

// Network is the phenotype of a genome. Every call to Activate propagates the
// signal across every link exactly once, so recurrent links carry values from
// the previous call.
type Network struct {
	neurons  []neuron
	inputs   []int
	outputs  []int
	graph    *simple.WeightedDirectedGraph
	selfLoop map[int]float64 // simple graphs reject self edges

	values []float64
	next   []float64
}

// NewNetwork returns an empty network ready to be filled through the
// neat.NetworkBuilder methods.
func NewNetwork() *Network {
	return &Network{
		graph:    simple.NewWeightedDirectedGraph(0, 0),
		selfLoop: make(map[int]float64),
	}
}

// FromGenome builds the network of g.
func FromGenome(g *neat.Genome, activation neat.ActivationFunc) *Network {
	net := NewNetwork()
	g.GenerateNetwork(net, activation)
	return net
}

// AddNeuron adds a neuron and returns its id.
func (n *Network) AddNeuron(role neat.NeuronRole, activation neat.ActivationFunc) int {
	id := len(n.neurons)
	n.neurons = append(n.neurons, neuron{role: role, activation: activation})
	n.graph.AddNode(simple.Node(id))

	switch role {
	case neat.RoleInput:
		n.inputs = append(n.inputs, id)
	case neat.RoleOutput:
		n.outputs = append(n.outputs, id)
	}

	value := 0.0
	if role == neat.RoleBias {
		value = 1
	}
	n.values = append(n.values, value)
	n.next = append(n.next, value)
	return id
}

// AddLink connects two neurons. A second link between the same pair replaces the first.
func (n *Network) AddLink(from, to int, weight float64) {
	if from == to {
		n.selfLoop[from] = weight
		return
	}
	n.graph.SetWeightedEdge(n.graph.NewWeightedEdge(simple.Node(from), simple.Node(to), weight))
}

// NumInputs returns the number of input neurons.
func (n *Network) NumInputs() int { return len(n.inputs) }

// NumOutputs returns the number of output neurons.
func (n *Network) NumOutputs() int { return len(n.outputs) }

// NumNeurons returns the number of neurons, bias included.
func (n *Network) NumNeurons() int { return len(n.neurons) }

// NumLinks returns the number of links.
func (n *Network) NumLinks() int {
	return n.graph.Edges().Len() + len(n.selfLoop)
}

// IsRecurrent reports whether the links contain a cycle.
func (n *Network) IsRecurrent() bool {
	if len(n.selfLoop) > 0 {
		return true
	}
	_, err := topo.Sort(n.graph)
	return err != nil
}

// Reset zeroes the state of every neuron except the bias.
func (n *Network) Reset() {
	for id, nr := range n.neurons {
		if nr.role == neat.RoleBias {
			continue
		}
		n.values[id] = 0
		n.next[id] = 0
	}
}

// Activate loads inputs and runs one synchronous propagation step. It returns
// the output values.
func (n *Network) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.inputs) {
		return nil, fmt.Errorf("%w: got %d, network has %d", ErrInputCount, len(inputs), len(n.inputs))
	}
	n.load(inputs)
	n.step()
	return n.Outputs(), nil
}

// ActivateUntilRelaxed loads inputs and runs propagation steps until no neuron
// changes any more or maxSteps steps have run. It returns the output values and
// whether the network relaxed.
func (n *Network) ActivateUntilRelaxed(inputs []float64, maxSteps int) ([]float64, bool, error) {
	if len(inputs) != len(n.inputs) {
		return nil, false, fmt.Errorf("%w: got %d, network has %d", ErrInputCount, len(inputs), len(n.inputs))
	}
	n.load(inputs)
	for i := 0; i < maxSteps; i++ {
		if n.step() <= relaxedDelta {
			return n.Outputs(), true, nil
		}
	}
	return n.Outputs(), false, nil
}

// Outputs returns the current values of the output neurons.
func (n *Network) Outputs() []float64 {
	out := make([]float64, len(n.outputs))
	for i, id := range n.outputs {
		out[i] = n.values[id]
	}
	return out
}

func (n *Network) load(inputs []float64) {
	for i, id := range n.inputs {
		n.values[id] = inputs[i]
		n.next[id] = inputs[i]
	}
}

// step computes every hidden and output neuron from the previous values and
// returns the largest change.
func (n *Network) step() float64 {
	var delta float64
	for id, nr := range n.neurons {
		if nr.role == neat.RoleBias || nr.role == neat.RoleInput {
			continue
		}
		sum := 0.0
		incoming := n.graph.To(int64(id))
		for incoming.Next() {
			from := incoming.Node().ID()
			sum += n.graph.WeightedEdge(from, int64(id)).Weight() * n.values[from]
		}
		if w, ok := n.selfLoop[id]; ok {
			sum += w * n.values[id]
		}
		n.next[id] = nr.activation(sum)
		delta = math.Max(delta, math.Abs(n.next[id]-n.values[id]))
	}
	// Bias and input slots hold the same value in both buffers.
	n.values, n.next = n.next, n.values
	return delta
}
