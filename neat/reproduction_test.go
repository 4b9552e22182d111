package neat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSpeciesPartitionPopulation(t *testing.T, e *Engine) {
	t.Helper()
	counts := make([]int, e.Population().Len())
	for _, sp := range e.Species() {
		assert.NotEmpty(t, sp.Members, "species %d is empty", sp.ID)
		for _, idx := range sp.Members {
			require.Less(t, idx, len(counts))
			counts[idx]++
		}
	}
	for idx, c := range counts {
		assert.Equal(t, 1, c, "genome %d", idx)
	}
}

func TestNewStrategy(t *testing.T) {
	config := DefaultConfig(2, 1)

	s, err := NewStrategy(config)
	require.NoError(t, err)
	assert.IsType(t, &GenerationalStrategy{}, s)

	config.Neat.Strategy = StrategySteadyState
	s, err = NewStrategy(config)
	require.NoError(t, err)
	assert.IsType(t, &SteadyStateStrategy{}, s)

	config.Neat.Strategy = "island"
	_, err = NewStrategy(config)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestGenerationalStrategy_KeepsPopulationSizeAndSpecies(t *testing.T) {
	config := DefaultConfig(3, 1)
	config.Neat.InitialPopulationSize = 50
	config.Speciation.CompatibilityThreshold = 1.0
	e := newTestEngine(t, config)
	require.NoError(t, e.Init())

	for i := 0; i < 10; i++ {
		_, err := e.RunGeneration(sumOfWeightsFitness)
		require.NoError(t, err)
		assert.Equal(t, 50, e.Population().Len())
		assertSpeciesPartitionPopulation(t, e)
	}
}

func TestGenerationalStrategy_ElitesSurviveUnchanged(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.InitialPopulationSize = 20
	config.Speciation.CompatibilityThreshold = 1e9
	e := newTestEngine(t, config)
	require.NoError(t, e.Init())

	require.NoError(t, sumOfWeightsFitness(e.Population().Genomes()))
	best := e.CurrentBestGenome().Clone()
	require.NoError(t, e.Epoch())

	found := false
	for _, g := range e.Population().Genomes() {
		if g.Equal(&best) {
			found = true
		}
	}
	assert.True(t, found, "the best genome of the only species is carried over")
}

func TestGenerationalStrategy_RepresentativeIsAMember(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.InitialPopulationSize = 30
	e := newTestEngine(t, config)
	require.NoError(t, e.Init())
	_, err := e.RunGeneration(sumOfWeightsFitness)
	require.NoError(t, err)

	for _, sp := range e.Species() {
		found := false
		for _, idx := range sp.Members {
			if e.Population().At(idx).Equal(&sp.Representative) {
				found = true
				break
			}
		}
		assert.True(t, found, "species %d", sp.ID)
	}
}

func TestGenerationalStrategy_DropsStagnantSpecies(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.InitialPopulationSize = 10
	config.Stagnation.MaxStagnation = 1
	config.Stagnation.SpeciesElitism = 0
	config.Neat.BestGenomesLibraryMaxSize = 2
	e := newTestEngine(t, config)
	require.NoError(t, e.Init())

	// Constant fitness never improves, so every species stagnates and the run
	// restarts from the library.
	constant := func(genomes []*Genome) error {
		for _, g := range genomes {
			g.Fitness = 1
		}
		return nil
	}
	for i := 0; i < 4; i++ {
		_, err := e.RunGeneration(constant)
		require.NoError(t, err)
		assert.Equal(t, 10, e.Population().Len())
		assertSpeciesPartitionPopulation(t, e)
	}
}

func TestComputeSpawnAmounts_MatchesPopulationSize(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(2, 1))
	s := &GenerationalStrategy{Config: &e.Config().Reproduction}

	tests := []struct {
		name     string
		adjusted []float64
		previous []int
		popSize  int
	}{
		{"proportional", []float64{0.1, 0.5, 0.4}, []int{10, 10, 10}, 30},
		{"all zero", []float64{0, 0}, []int{20, 30}, 50},
		{"one species", []float64{1}, []int{5}, 40},
		{"many small species", []float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2}, []int{1, 1, 1, 1, 1, 1, 1}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := Sum(tt.adjusted)
			amounts := s.computeSpawnAmounts(e, tt.adjusted, sum, tt.previous, tt.popSize, 1)
			total := 0
			for _, a := range amounts {
				assert.GreaterOrEqual(t, a, 1)
				total += a
			}
			assert.Equal(t, tt.popSize, total)
		})
	}
}

func TestSteadyStateStrategy_ReplacesWorstGenome(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.Strategy = StrategySteadyState
	config.Neat.InitialPopulationSize = 12
	e := newTestEngine(t, config)
	require.NoError(t, e.Init())

	for i, g := range e.Population().Genomes() {
		g.Fitness = float64(i + 1)
	}
	e.Population().At(7).Fitness = -5
	before := e.Population().At(7).Clone()
	require.NoError(t, e.Epoch())

	assert.Equal(t, 12, e.Population().Len())
	assert.False(t, e.Population().At(7).Equal(&before), "worst genome is replaced")
	assert.Equal(t, 0.0, e.Population().At(7).Fitness)
	for idx, g := range e.Population().Genomes() {
		if idx != 7 {
			assert.Equal(t, float64(idx+1), g.Fitness, "genome %d is left alone", idx)
		}
	}
	assertSpeciesPartitionPopulation(t, e)
}

func TestSteadyStateStrategy_RunsManyEpochs(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.Strategy = StrategySteadyState
	config.Neat.InitialPopulationSize = 15
	config.Speciation.DynamicCompatibilityThreshold = true
	config.Speciation.TargetSpeciesCount = 3
	e := newTestEngine(t, config)
	require.NoError(t, e.Init())

	for i := 0; i < 40; i++ {
		_, err := e.RunGeneration(sumOfWeightsFitness)
		require.NoError(t, err)
		assert.Equal(t, 15, e.Population().Len())
		assertSpeciesPartitionPopulation(t, e)
	}
	assert.Equal(t, 40, e.Generation())
}

func TestSteadyStateStrategy_AdjustsThresholdOncePerWindow(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.Strategy = StrategySteadyState
	config.Neat.InitialPopulationSize = 10
	config.Speciation.DynamicCompatibilityThreshold = true
	config.Speciation.CompatibilityThreshold = 3.0
	config.Speciation.CompatibilityThresholdStep = 0.3
	config.Speciation.TargetSpeciesCount = 1000
	e := newTestEngine(t, config)
	require.NoError(t, e.Init())

	for i := 0; i < 9; i++ {
		require.NoError(t, e.Epoch())
		assert.Equal(t, 3.0, e.Config().Speciation.CompatibilityThreshold, "epoch %d", i+1)
	}
	require.NoError(t, e.Epoch())
	assert.InDelta(t, 2.7, e.Config().Speciation.CompatibilityThreshold, 1e-12)

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Epoch())
	}
	assert.InDelta(t, 2.4, e.Config().Speciation.CompatibilityThreshold, 1e-12)
}
