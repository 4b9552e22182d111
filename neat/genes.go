package neat

import (
	"fmt"
)

// NeuronID identifies a neuron inside a genome.
// 0 is the bias, 1..inputs are inputs, inputs+1..inputs+outputs are outputs,
// and everything above is a hidden neuron handed out by the InnovationPool.
type NeuronID int

// InnovationID is the historical marking of a structural discovery.
type InnovationID int

// BiasID is the reserved neuron id of the bias sentinel.
const BiasID NeuronID = 0

// ConnectionKey identifies a connection by its (from, to) endpoint pair.
type ConnectionKey struct {
	From NeuronID
	To   NeuronID
}

// --------------------------- Gene ---------------------------

// Gene is one heritable directed, weighted connection.
// Genes are plain values: copying a Gene copies everything it holds.
type Gene struct {
	Innovation InnovationID // Historical marking, used to align genomes.
	From       NeuronID
	To         NeuronID
	Weight     float64
	Enabled    bool
}

// NewGene creates an enabled gene.
func NewGene(innovation InnovationID, from, to NeuronID, weight float64) Gene {
	return Gene{
		Innovation: innovation,
		From:       from,
		To:         to,
		Weight:     weight,
		Enabled:    true,
	}
}

// Key returns the endpoint pair of the gene.
func (g Gene) Key() ConnectionKey {
	return ConnectionKey{From: g.From, To: g.To}
}

// String returns a string representation of the Gene.
func (g Gene) String() string {
	return fmt.Sprintf("Gene(Innov: %d, %d->%d, Weight: %.3f, Enabled: %t)",
		g.Innovation, g.From, g.To, g.Weight, g.Enabled)
}
