package neat

import (
	"fmt"
)

// FitnessFunc is the type for the function provided by the user to evaluate genome fitness.
// It should set the Fitness field of every genome it is given.
type FitnessFunc func(genomes []*Genome) error

// Population is the ordered, indexable storage of the live genomes of a run.
// Species refer to genomes by their index here.
type Population struct {
	genomes []Genome
}

// NewPopulation creates an empty population with room for capacity genomes.
func NewPopulation(capacity int) *Population {
	return &Population{genomes: make([]Genome, 0, capacity)}
}

// Add appends a genome and returns its index.
func (p *Population) Add(g Genome) int {
	p.genomes = append(p.genomes, g)
	return len(p.genomes) - 1
}

// At returns the genome stored at idx.
func (p *Population) At(idx int) *Genome {
	return &p.genomes[idx]
}

// Set replaces the genome stored at idx.
func (p *Population) Set(idx int, g Genome) {
	p.genomes[idx] = g
}

// Len returns the number of genomes.
func (p *Population) Len() int {
	return len(p.genomes)
}

// Genomes returns pointers to every genome, in index order.
func (p *Population) Genomes() []*Genome {
	all := make([]*Genome, len(p.genomes))
	for i := range p.genomes {
		all[i] = &p.genomes[i]
	}
	return all
}

// Fitnesses returns the fitness of every genome, in index order.
func (p *Population) Fitnesses() []float64 {
	fitnesses := make([]float64, len(p.genomes))
	for i := range p.genomes {
		fitnesses[i] = p.genomes[i].Fitness
	}
	return fitnesses
}

// Replace swaps the whole content for genomes.
func (p *Population) Replace(genomes []Genome) {
	p.genomes = genomes
}

// Serialize writes the population.
func (p *Population) Serialize(ser Serializer) {
	ser.AppendInt(int64(len(p.genomes)))
	ser.NewLine()
	for i := range p.genomes {
		p.genomes[i].Serialize(ser)
	}
}

// Deserialize replaces the population content with what des yields.
func (p *Population) Deserialize(des Deserializer) error {
	r := fieldReader{des: des}
	p.readFrom(&r)
	if r.err != nil {
		return fmt.Errorf("failed to read population: %w", r.err)
	}
	return nil
}

func (p *Population) readFrom(r *fieldReader) {
	n := r.count()
	genomes := make([]Genome, 0, max(n, 0))
	for i := 0; i < n && r.err == nil; i++ {
		var g Genome
		g.readFrom(r)
		genomes = append(genomes, g)
	}
	p.genomes = genomes
}
