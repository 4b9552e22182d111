package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/neatkit/neat"
)

func TestFromGenome_Shape(t *testing.T) {
	g := neat.NewGenome(2, 1)
	g.AddGene(neat.NewGene(0, 0, 3, 0.5))
	g.AddGene(neat.NewGene(1, 1, 4, 1.0))
	g.AddGene(neat.NewGene(2, 4, 3, 1.0))
	g.AddGene(neat.NewGene(3, 2, 3, 1.0))
	g.Genes[3].Enabled = false

	net := FromGenome(&g, neat.Identity)
	assert.Equal(t, 2, net.NumInputs())
	assert.Equal(t, 1, net.NumOutputs())
	assert.Equal(t, 5, net.NumNeurons())
	assert.Equal(t, 3, net.NumLinks(), "disabled genes are not expressed")
	assert.False(t, net.IsRecurrent())
}

func TestNetwork_ActivateIsOneStep(t *testing.T) {
	// bias -> out (0.5), in1 -> hidden (1), hidden -> out (2)
	net := NewNetwork()
	bias := net.AddNeuron(neat.RoleBias, neat.Identity)
	in := net.AddNeuron(neat.RoleInput, neat.Identity)
	out := net.AddNeuron(neat.RoleOutput, neat.Identity)
	hidden := net.AddNeuron(neat.RoleHidden, neat.Identity)
	net.AddLink(bias, out, 0.5)
	net.AddLink(in, hidden, 1)
	net.AddLink(hidden, out, 2)

	outputs, err := net.Activate([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, outputs, "hidden still held 0 during the first step")

	outputs, err = net.Activate([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, []float64{6.5}, outputs)

	net.Reset()
	outputs, relaxed, err := net.ActivateUntilRelaxed([]float64{1}, 10)
	require.NoError(t, err)
	assert.True(t, relaxed)
	assert.Equal(t, []float64{2.5}, outputs)
}

func TestNetwork_WrongInputCount(t *testing.T) {
	g := neat.NewGenome(2, 1)
	net := FromGenome(&g, neat.Identity)
	_, err := net.Activate([]float64{1})
	assert.ErrorIs(t, err, ErrInputCount)
	_, _, err = net.ActivateUntilRelaxed([]float64{1, 2, 3}, 5)
	assert.ErrorIs(t, err, ErrInputCount)
}

func TestNetwork_Recurrence(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		g := neat.NewGenome(1, 1)
		g.AddGene(neat.NewGene(0, 1, 2, 1))
		g.AddGene(neat.NewGene(1, 2, 3, 1))
		g.AddGene(neat.NewGene(2, 3, 2, 1))
		assert.True(t, FromGenome(&g, neat.Identity).IsRecurrent())
	})

	t.Run("self loop", func(t *testing.T) {
		g := neat.NewGenome(1, 1)
		g.AddGene(neat.NewGene(0, 2, 2, 0.5))
		net := FromGenome(&g, neat.Identity)
		assert.True(t, net.IsRecurrent())
		assert.Equal(t, 1, net.NumLinks())
	})
}

func TestNetwork_OscillatingNetworkDoesNotRelax(t *testing.T) {
	// The output feeds itself with weight -1 and flips sign every step.
	net := NewNetwork()
	bias := net.AddNeuron(neat.RoleBias, neat.Identity)
	net.AddNeuron(neat.RoleInput, neat.Identity)
	out := net.AddNeuron(neat.RoleOutput, neat.Identity)
	net.AddLink(out, out, -1)
	net.AddLink(bias, out, 1)

	_, relaxed, err := net.ActivateUntilRelaxed([]float64{0}, 10)
	require.NoError(t, err)
	assert.False(t, relaxed)
}

func TestNetwork_SigmoidOutputRange(t *testing.T) {
	g := neat.NewGenome(2, 1)
	g.AddGene(neat.NewGene(0, 1, 3, 10))
	g.AddGene(neat.NewGene(1, 2, 3, -10))
	net := FromGenome(&g, neat.SteepenedSigmoid)

	for _, inputs := range [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		outputs, err := net.Activate(inputs)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, outputs[0], 0.0)
		assert.LessOrEqual(t, outputs[0], 1.0)
	}
}
