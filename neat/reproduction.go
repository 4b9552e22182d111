package neat

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrUnknownStrategy is returned when a configuration names a strategy that does not exist.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy decides how a population is built and how it moves from one
// generation to the next. Both strategies share the engine's speciation and
// best-genome bookkeeping.
type Strategy interface {
	// InitPopulation fills the empty population of e starting from seed.
	InitPopulation(e *Engine, seed *Genome) error
	// Epoch produces the next generation in place.
	Epoch(e *Engine) error
}

// NewStrategy returns the strategy named in config.
func NewStrategy(config *Config) (Strategy, error) {
	switch strings.ToLower(config.Neat.Strategy) {
	case "", StrategyGenerational:
		stagnation, err := NewStagnation(&config.Stagnation)
		if err != nil {
			return nil, err
		}
		return &GenerationalStrategy{Config: &config.Reproduction, Stagnation: stagnation}, nil
	case StrategySteadyState:
		return &SteadyStateStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, config.Neat.Strategy)
	}
}

// breedOffspring makes one child from the parents pool: a crossover of two
// random parents with probability Crossover.Rate, followed by a random mutation.
func breedOffspring(e *Engine, parents []*Genome) Genome {
	parent1 := parents[e.rng.Intn(len(parents))]
	if len(parents) > 1 && e.rng.Float64() < e.config.Crossover.Rate {
		parent2 := parents[e.rng.Intn(len(parents))]
		child := parent1.RandomCrossover(parent2, e.rc)
		child.Fitness = 0
		return child.RandomMutation(e.rc)
	}
	child := parent1.RandomMutation(e.rc)
	child.Fitness = 0
	return child
}

// --------------------------- Generational ---------------------------

// GenerationalStrategy replaces the whole population every epoch. Stagnant
// species are dropped, the others spawn offspring in proportion to their
// adjusted fitness, their best members survive unchanged.
type GenerationalStrategy struct {
	Config     *ReproductionConfig
	Stagnation *Stagnation
}

// InitPopulation fills the population with random mutations of seed.
func (s *GenerationalStrategy) InitPopulation(e *Engine, seed *Genome) error {
	e.PopulateFrom(seed)
	return nil
}

// Epoch builds the next generation and speciates it.
func (s *GenerationalStrategy) Epoch(e *Engine) error {
	pop := e.population
	popSize := e.config.Neat.InitialPopulationSize

	// --- Step 1: Evaluate Stagnation ---
	stagnationInfo := s.Stagnation.Update(e.species, pop, e.generation)

	// --- Step 2: Filter Species & Calculate Adjusted Fitness ---
	allFitnesses := []float64{}
	remainingSpecies := []*Species{}
	for _, info := range stagnationInfo {
		sp := info.Species
		if info.IsStagnant {
			e.logger.Info("species removed due to stagnation", "species", sp.ID, "last_improved", sp.LastImproved)
			continue
		}
		memberFitnesses := sp.GetFitnesses(pop)
		if len(memberFitnesses) == 0 {
			continue
		}
		allFitnesses = append(allFitnesses, memberFitnesses...)
		remainingSpecies = append(remainingSpecies, sp)
	}

	if len(remainingSpecies) == 0 {
		return s.restartFromBest(e)
	}

	minFitness := MinFloat(allFitnesses)
	maxFitness := MaxFloat(allFitnesses)
	fitnessRange := math.Max(1.0, maxFitness-minFitness)

	adjustedFitnessSum := 0.0
	for _, sp := range remainingSpecies {
		sp.AdjustedFitness = (sp.Fitness - minFitness) / fitnessRange
		adjustedFitnessSum += sp.AdjustedFitness
	}

	// --- Step 3: Calculate Spawn Amounts ---
	previousSizes := make([]int, len(remainingSpecies))
	adjustedFitnesses := make([]float64, len(remainingSpecies))
	for i, sp := range remainingSpecies {
		previousSizes[i] = len(sp.Members)
		adjustedFitnesses[i] = sp.AdjustedFitness
	}
	spawnMinSize := max(s.Config.MinSpeciesSize, s.Config.Elitism)
	spawnAmounts := s.computeSpawnAmounts(e, adjustedFitnesses, adjustedFitnessSum, previousSizes, popSize, spawnMinSize)

	// --- Step 4: Create New Population ---
	next := make([]Genome, 0, popSize)
	for i, sp := range remainingSpecies {
		spawn := max(spawnAmounts[i], s.Config.Elitism)

		members := make([]*Genome, 0, len(sp.Members))
		for _, idx := range sp.Members {
			members = append(members, pop.At(idx))
		}
		sort.SliceStable(members, func(a, b int) bool {
			return members[a].Fitness > members[b].Fitness
		})

		for j := 0; j < s.Config.Elitism && j < len(members) && spawn > 0; j++ {
			next = append(next, members[j].Clone())
			spawn--
		}
		if spawn <= 0 {
			continue
		}

		survivalCutoff := int(math.Ceil(s.Config.SurvivalThreshold * float64(len(members))))
		survivalCutoff = min(max(survivalCutoff, 2), len(members))
		parents := members[:survivalCutoff]

		for j := 0; j < spawn; j++ {
			next = append(next, breedOffspring(e, parents))
		}
	}

	if len(next) != popSize {
		e.logger.Warn("new population size differs from target", "size", len(next), "target", popSize)
	}

	// --- Step 5: Speciate the new generation ---
	e.species = remainingSpecies
	sort.Slice(e.species, func(a, b int) bool { return e.species[a].ID < e.species[b].ID })
	s.respeciate(e, next)
	return nil
}

// respeciate installs genomes as the population and rebuilds the species
// membership. Each surviving species then takes as representative the member
// closest to its previous representative.
func (s *GenerationalStrategy) respeciate(e *Engine, genomes []Genome) {
	for _, sp := range e.species {
		sp.Members = sp.Members[:0]
	}
	e.population.Replace(genomes)
	e.SpeciateAllPopulation()
	e.RemoveEmptySpecies()

	for _, sp := range e.species {
		closest := sp.Members[0]
		closestDistance := math.Inf(1)
		for _, idx := range sp.Members {
			d := e.population.At(idx).DistanceTo(&sp.Representative, e.rc)
			if d < closestDistance {
				closest, closestDistance = idx, d
			}
		}
		sp.Representative = e.population.At(closest).Clone()
	}
	e.AdjustCompatibilityThreshold()
}

// restartFromBest handles extinction: the population is rebuilt from mutations
// of the best genomes library, or of the best genome ever when the library is empty.
func (s *GenerationalStrategy) restartFromBest(e *Engine) error {
	seed, ok := e.RandomGenomeFromBestGenomesLibrary()
	if !ok {
		seed, ok = e.BestGenomeEver()
	}
	if !ok {
		return errors.New("all species became extinct and there is no genome to restart from")
	}
	e.logger.Warn("all species became extinct, restarting from the best genomes", "seed_fitness", seed.Fitness)

	genomes := make([]Genome, 0, e.config.Neat.InitialPopulationSize)
	for i := 0; i < e.config.Neat.InitialPopulationSize; i++ {
		parent, ok := e.RandomGenomeFromBestGenomesLibrary()
		if !ok {
			parent = seed
		}
		child := parent.RandomMutation(e.rc)
		child.Fitness = 0
		genomes = append(genomes, child)
	}
	e.species = e.species[:0]
	s.respeciate(e, genomes)
	return nil
}

// computeSpawnAmounts calculates the number of offspring each species should produce.
func (s *GenerationalStrategy) computeSpawnAmounts(e *Engine, adjustedFitnesses []float64, adjustedFitnessSum float64, previousSizes []int, popSize int, minSpeciesSize int) []int {
	spawnAmounts := make([]int, len(adjustedFitnesses))

	for i, af := range adjustedFitnesses {
		ps := previousSizes[i]
		var target float64
		if adjustedFitnessSum > 0 {
			target = af / adjustedFitnessSum * float64(popSize)
		} else {
			target = float64(minSpeciesSize)
		}
		target = math.Max(float64(minSpeciesSize), target)

		// Move halfway from the previous size toward the target.
		d := (target - float64(ps)) * 0.5
		c := int(math.Round(d))
		spawn := ps
		if c != 0 {
			spawn += c
		} else if d > 0 {
			spawn++
		} else if d < 0 {
			spawn--
		}
		spawnAmounts[i] = max(minSpeciesSize, spawn)
	}

	totalSpawn := 0
	for _, sa := range spawnAmounts {
		totalSpawn += sa
	}
	if totalSpawn == 0 {
		return spawnAmounts
	}

	norm := float64(popSize) / float64(totalSpawn)
	finalSpawnAmounts := make([]int, len(spawnAmounts))
	currentTotal := 0
	for i, sa := range spawnAmounts {
		finalSpawnAmounts[i] = max(minSpeciesSize, int(math.Round(float64(sa)*norm)))
		currentTotal += finalSpawnAmounts[i]
	}

	// Rounding and minimums can leave a gap; spread it over the species in random order.
	diff := popSize - currentTotal
	for diff != 0 {
		adjusted := false
		for _, idx := range e.rng.Perm(len(finalSpawnAmounts)) {
			if diff == 0 {
				break
			}
			if diff > 0 {
				finalSpawnAmounts[idx]++
				diff--
				adjusted = true
			} else if finalSpawnAmounts[idx] > minSpeciesSize {
				finalSpawnAmounts[idx]--
				diff++
				adjusted = true
			}
		}
		if !adjusted {
			e.logger.Debug("could not match population size after spawn normalization", "diff", diff)
			break
		}
	}
	return finalSpawnAmounts
}

// --------------------------- Steady state ---------------------------

// SteadyStateStrategy replaces a single genome per epoch: the least fit genome
// is overwritten by an offspring of a species picked by fitness-proportional
// selection, and the offspring is speciated on its own. A dynamic compatibility
// threshold is adjusted once every population-size epochs.
type SteadyStateStrategy struct{}

// InitPopulation fills the population with random mutations of seed.
func (s *SteadyStateStrategy) InitPopulation(e *Engine, seed *Genome) error {
	e.PopulateFrom(seed)
	return nil
}

// Epoch replaces the worst genome of the population.
func (s *SteadyStateStrategy) Epoch(e *Engine) error {
	pop := e.population
	if pop.Len() == 0 {
		return errors.New("population is empty")
	}

	worst := 0
	for idx := 1; idx < pop.Len(); idx++ {
		if pop.At(idx).Fitness < pop.At(worst).Fitness {
			worst = idx
		}
	}

	parentSpecies := s.pickSpecies(e)
	parents := make([]*Genome, 0, len(parentSpecies.Members))
	for _, idx := range parentSpecies.Members {
		if idx != worst || len(parentSpecies.Members) == 1 {
			parents = append(parents, pop.At(idx))
		}
	}
	child := breedOffspring(e, parents)

	if sp := e.SpeciesOf(worst); sp != nil {
		sp.RemoveMember(worst)
	}
	pop.Set(worst, child)
	e.SpeciateOneGenome(worst)
	e.RemoveEmptySpecies()

	// Adjust once per window of pop.Len() replacements.
	if (e.generation+1)%pop.Len() == 0 {
		e.AdjustCompatibilityThreshold()
	}
	return nil
}

// pickSpecies draws a species with probability proportional to the mean fitness
// of its members, shifted so the least fit species still has a chance.
func (s *SteadyStateStrategy) pickSpecies(e *Engine) *Species {
	means := make([]float64, len(e.species))
	for i, sp := range e.species {
		means[i] = Mean(sp.GetFitnesses(e.population))
	}
	lowest := MinFloat(means)

	weights := make([]float64, len(means))
	for i, m := range means {
		weights[i] = m - lowest + 1e-6
	}
	total := Sum(weights)

	roll := e.rng.Float64() * total
	for i, w := range weights {
		if roll < w {
			return e.species[i]
		}
		roll -= w
	}
	return e.species[len(e.species)-1]
}
