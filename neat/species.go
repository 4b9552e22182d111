package neat

import (
	"fmt"
	"slices"
)

// Species represents a group of genetically similar genomes.
// Members are indices into the engine's Population; a species never owns the
// genomes it groups, only a snapshot of its representative.
type Species struct {
	ID              int       // Unique identifier for this species.
	Created         int       // Generation number when the species was created.
	LastImproved    int       // Last generation where fitness improved.
	Representative  Genome    // Snapshot used for compatibility checks.
	Members         []int     // Population indices of the members.
	Fitness         float64   // Calculated fitness for the species (e.g., mean fitness of members).
	AdjustedFitness float64   // Fitness adjusted by sharing.
	FitnessHistory  []float64 // History of fitness values for stagnation detection.
}

// NewSpecies creates a new species anchored on a copy of representative.
func NewSpecies(id, generation int, representative *Genome) *Species {
	return &Species{
		ID:             id,
		Created:        generation,
		LastImproved:   generation,
		Representative: representative.Clone(),
		Members:        []int{},
		FitnessHistory: []float64{},
	}
}

// AddMember records the population index of a new member.
func (s *Species) AddMember(idx int) {
	s.Members = append(s.Members, idx)
}

// RemoveMember forgets a member. It reports whether idx was a member.
func (s *Species) RemoveMember(idx int) bool {
	i := slices.Index(s.Members, idx)
	if i < 0 {
		return false
	}
	s.Members = slices.Delete(s.Members, i, i+1)
	return true
}

// HasMember reports whether idx belongs to the species.
func (s *Species) HasMember(idx int) bool {
	return slices.Contains(s.Members, idx)
}

// GetFitnesses returns the fitness values of all members.
func (s *Species) GetFitnesses(pop *Population) []float64 {
	fitnesses := make([]float64, 0, len(s.Members))
	for _, idx := range s.Members {
		fitnesses = append(fitnesses, pop.At(idx).Fitness)
	}
	return fitnesses
}

// Serialize writes the species.
func (s *Species) Serialize(ser Serializer) {
	ser.AppendInt(int64(s.ID))
	ser.AppendInt(int64(s.Created))
	ser.AppendInt(int64(s.LastImproved))
	ser.NewLine()

	s.Representative.Serialize(ser)

	ser.AppendInt(int64(len(s.Members)))
	for _, idx := range s.Members {
		ser.AppendInt(int64(idx))
	}
	ser.NewLine()

	ser.AppendInt(int64(len(s.FitnessHistory)))
	for _, f := range s.FitnessHistory {
		ser.AppendFloat(f)
	}
	ser.NewLine()
}

// Deserialize replaces the species content with what des yields.
func (s *Species) Deserialize(des Deserializer) error {
	r := fieldReader{des: des}
	s.readFrom(&r)
	if r.err != nil {
		return fmt.Errorf("failed to read species: %w", r.err)
	}
	return nil
}

func (s *Species) readFrom(r *fieldReader) {
	s.ID = int(r.readInt())
	s.Created = int(r.readInt())
	s.LastImproved = int(r.readInt())
	s.Representative.readFrom(r)

	numMembers := r.count()
	s.Members = make([]int, 0, max(numMembers, 0))
	for i := 0; i < numMembers && r.err == nil; i++ {
		s.Members = append(s.Members, int(r.readInt()))
	}

	numHistory := r.count()
	s.FitnessHistory = make([]float64, 0, max(numHistory, 0))
	for i := 0; i < numHistory && r.err == nil; i++ {
		s.FitnessHistory = append(s.FitnessHistory, r.readFloat())
	}
}
