package neat

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Stagnation manages the detection of stagnant species.
type Stagnation struct {
	Config             *StagnationConfig
	SpeciesFitnessFunc func([]float64) float64
}

// NewStagnation creates a new stagnation manager.
func NewStagnation(config *StagnationConfig) (*Stagnation, error) {
	fn, ok := StatFunctions[strings.ToLower(config.SpeciesFitnessFunc)]
	if !ok {
		return nil, fmt.Errorf("invalid species_fitness_func in config: %s", config.SpeciesFitnessFunc)
	}

	return &Stagnation{
		Config:             config,
		SpeciesFitnessFunc: fn,
	}, nil
}

// StagnationInfo holds the results of the stagnation update for a single species.
type StagnationInfo struct {
	Species    *Species
	IsStagnant bool
}

// Update scores every species, appends the score to its fitness history and
// marks the species that have not improved for too long. The SpeciesElitism
// best-scoring species are never marked stagnant. The result is ordered from the
// least to the most fit species.
func (s *Stagnation) Update(species []*Species, pop *Population, generation int) []StagnationInfo {
	if len(species) == 0 {
		return []StagnationInfo{}
	}

	scored := make([]*Species, 0, len(species))
	for _, sp := range species {
		previousMaxFitness := MaxFloat(sp.FitnessHistory)

		memberFitnesses := sp.GetFitnesses(pop)
		if len(memberFitnesses) == 0 {
			sp.Fitness = math.Inf(-1)
		} else {
			sp.Fitness = s.SpeciesFitnessFunc(memberFitnesses)
		}

		sp.FitnessHistory = append(sp.FitnessHistory, sp.Fitness)
		sp.AdjustedFitness = 0

		if sp.Fitness > previousMaxFitness {
			sp.LastImproved = generation
		}
		scored = append(scored, sp)
	}

	// Least fit first, ties broken by id to stay deterministic.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Fitness != scored[j].Fitness {
			return scored[i].Fitness < scored[j].Fitness
		}
		return scored[i].ID < scored[j].ID
	})

	result := make([]StagnationInfo, len(scored))
	numSpecies := len(scored)
	for i, sp := range scored {
		stagnantTime := generation - sp.LastImproved
		isElite := (numSpecies - i) <= s.Config.SpeciesElitism
		result[i] = StagnationInfo{
			Species:    sp,
			IsStagnant: !isElite && stagnantTime >= s.Config.MaxStagnation,
		}
	}
	return result
}
