package neat

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(numInputs, numOutputs int, seed int64) *RunContext {
	return &RunContext{
		Config:      DefaultConfig(numInputs, numOutputs),
		Innovations: NewInnovationPool(numInputs, numOutputs),
		Rand:        rand.New(rand.NewSource(seed)),
	}
}

// seedGenome builds the minimal fully connected genome the way the engine does.
func seedGenome(rc *RunContext) Genome {
	cfg := rc.Config.Genome
	g := NewGenome(cfg.NumberOfInputs, cfg.NumberOfOutputs)
	firstOutput := NeuronID(1 + cfg.NumberOfInputs)
	mint := func(from, to NeuronID) {
		gene := NewGene(rc.Innovations.NextInnovation(), from, to, 0)
		rc.Innovations.RegisterGene(gene)
		rc.Innovations.RegisterInnovation(NewLinkInnovationOf(gene.Innovation, from, to))
		g.AddGene(gene)
	}
	for i := 0; i < cfg.NumberOfOutputs; i++ {
		mint(BiasID, firstOutput+NeuronID(i))
	}
	for j := 1; j <= cfg.NumberOfInputs; j++ {
		for i := 0; i < cfg.NumberOfOutputs; i++ {
			mint(NeuronID(j), firstOutput+NeuronID(i))
		}
	}
	return g
}

func genomeWithInnovations(innovs ...InnovationID) Genome {
	g := NewGenome(2, 1)
	for _, innov := range innovs {
		g.AddGene(NewGene(innov, NeuronID(100+innov), 3, 0.5))
	}
	return g
}

func assertGenomeInvariants(t *testing.T, g *Genome) {
	t.Helper()
	seen := map[ConnectionKey]bool{}
	for i, gene := range g.Genes {
		if i > 0 {
			assert.Less(t, g.Genes[i-1].Innovation, gene.Innovation, "genes must be strictly ascending")
		}
		assert.False(t, seen[gene.Key()], "duplicate link %v", gene.Key())
		seen[gene.Key()] = true
		assert.Contains(t, g.KnownNeuronIDs, gene.From)
		assert.Contains(t, g.KnownNeuronIDs, gene.To)
	}
	require.GreaterOrEqual(t, len(g.KnownNeuronIDs), 1+g.NumInputs+g.NumOutputs)
	for i := 0; i <= g.NumInputs+g.NumOutputs; i++ {
		assert.Equal(t, NeuronID(i), g.KnownNeuronIDs[i])
	}
}

func TestNewGenome_KnowsBiasInputsOutputs(t *testing.T) {
	g := NewGenome(2, 1)
	assert.Equal(t, []NeuronID{0, 1, 2, 3}, g.KnownNeuronIDs)
	assert.Empty(t, g.Genes)
	assert.True(t, g.IsInput(1))
	assert.True(t, g.IsInput(2))
	assert.False(t, g.IsInput(3))
	assert.True(t, g.IsOutput(3))
	assert.False(t, g.IsOutput(BiasID))
}

func TestSeedGenome_Markings(t *testing.T) {
	rc := newTestContext(2, 1, 1)
	g := seedGenome(rc)

	require.Len(t, g.Genes, 3)
	assert.Equal(t, NewGene(0, 0, 3, 0), g.Genes[0])
	assert.Equal(t, NewGene(1, 1, 3, 0), g.Genes[1])
	assert.Equal(t, NewGene(2, 2, 3, 0), g.Genes[2])
	assertGenomeInvariants(t, &g)
}

func TestAddGene_InsertsOlderMarkingInOrder(t *testing.T) {
	g := NewGenome(2, 1)
	g.AddGene(NewGene(0, 0, 3, 1))
	g.AddGene(NewGene(5, 1, 3, 1))
	g.AddGene(NewGene(2, 2, 3, 1))

	require.Len(t, g.Genes, 3)
	assert.Equal(t, InnovationID(0), g.Genes[0].Innovation)
	assert.Equal(t, InnovationID(2), g.Genes[1].Innovation)
	assert.Equal(t, InnovationID(5), g.Genes[2].Innovation)
}

func TestAddGene_RecordsUnknownNeurons(t *testing.T) {
	g := NewGenome(2, 1)
	g.AddGene(NewGene(7, 1, 10, 1))
	g.AddGene(NewGene(8, 10, 3, 1))
	assert.Equal(t, []NeuronID{0, 1, 2, 3, 10}, g.KnownNeuronIDs)
}

func TestDistanceTo_SmallGenomesAreIdentical(t *testing.T) {
	rc := newTestContext(2, 1, 1)
	a := genomeWithInnovations(0, 1, 2, 3)
	b := genomeWithInnovations(5, 6)
	assert.Zero(t, a.DistanceTo(&b, rc))
	assert.Zero(t, b.DistanceTo(&a, rc))
}

func TestDistanceTo_CountsExcessDisjointAndWeights(t *testing.T) {
	rc := newTestContext(2, 1, 1)
	rc.Config.Genome.DistanceCoefC1 = 1
	rc.Config.Genome.DistanceCoefC2 = 2
	rc.Config.Genome.DistanceCoefC3 = 0.5

	a := genomeWithInnovations(0, 1, 2, 4, 5)
	b := genomeWithInnovations(0, 1, 3, 4, 6, 7, 8)
	b.Genes[0].Weight = 1.5 // |0.5 - 1.5| = 1 on marking 0

	// matching 0,1,4 (W = 1/3), disjoint 2,3,5 (D = 3), excess 6,7,8 (E = 3), L = 7
	want := 1*3.0/7 + 2*3.0/7 + 0.5*(1.0/3)
	assert.InDelta(t, want, a.DistanceTo(&b, rc), 1e-12)
	assert.InDelta(t, want, b.DistanceTo(&a, rc), 1e-12)
}

func TestDistanceTo_NoMatchingGenes(t *testing.T) {
	rc := newTestContext(2, 1, 1)
	a := genomeWithInnovations(0, 1, 2, 3, 4)
	b := genomeWithInnovations(10, 11, 12, 13, 14)
	// Every gene of a is disjoint, every gene of b is excess.
	assert.InDelta(t, 2.0, a.DistanceTo(&b, rc), 1e-12)
}

func TestIsCompatibleWith_StrictlyBelowThreshold(t *testing.T) {
	rc := newTestContext(2, 1, 1)
	rc.Config.Genome.DistanceCoefC1 = 1
	rc.Config.Genome.DistanceCoefC2 = 1
	a := genomeWithInnovations(0, 1, 2, 3, 4)
	b := genomeWithInnovations(10, 11, 12, 13, 14)

	rc.Config.Speciation.CompatibilityThreshold = 2.0
	assert.False(t, a.IsCompatibleWith(&b, rc))
	rc.Config.Speciation.CompatibilityThreshold = 2.0001
	assert.True(t, a.IsCompatibleWith(&b, rc))
}

func TestMutateAddLink_NeverDuplicatesAndSharesMarkings(t *testing.T) {
	rc := newTestContext(2, 1, 3)
	a := seedGenome(rc)
	b := a.Clone()

	for i := 0; i < 30; i++ {
		a.MutateAddNeuron(rc)
		a.MutateAddLink(rc)
		b.MutateAddLink(rc)
	}
	assertGenomeInvariants(t, &a)
	assertGenomeInvariants(t, &b)

	// The same link always carries the same marking across genomes of a run.
	markings := map[ConnectionKey]InnovationID{}
	for _, g := range []*Genome{&a, &b} {
		for _, gene := range g.Genes {
			if m, ok := markings[gene.Key()]; ok {
				assert.Equal(t, m, gene.Innovation, "link %v", gene.Key())
			}
			markings[gene.Key()] = gene.Innovation
		}
	}
}

func TestMutateAddLink_NeverTargetsBiasOrInputs(t *testing.T) {
	rc := newTestContext(3, 2, 5)
	g := seedGenome(rc)
	for i := 0; i < 50; i++ {
		g.MutateAddLink(rc)
	}
	for _, gene := range g.Genes {
		assert.NotEqual(t, BiasID, gene.To)
		assert.False(t, g.IsInput(gene.To), "gene %v targets an input", gene)
	}
}

func TestMutateAddNeuron_SplitsEnabledGene(t *testing.T) {
	rc := newTestContext(2, 1, 7)
	g := seedGenome(rc)
	g.Genes[0].Weight, g.Genes[1].Weight, g.Genes[2].Weight = 0.1, 0.2, 0.3

	require.True(t, g.MutateAddNeuron(rc))
	require.Len(t, g.Genes, 5)

	var disabled []Gene
	for _, gene := range g.Genes[:3] {
		if !gene.Enabled {
			disabled = append(disabled, gene)
		}
	}
	require.Len(t, disabled, 1)
	split := disabled[0]

	in, out := g.Genes[3], g.Genes[4]
	assert.Equal(t, InnovationID(3), in.Innovation)
	assert.Equal(t, InnovationID(4), out.Innovation)
	assert.Equal(t, split.From, in.From)
	assert.Equal(t, in.To, out.From)
	assert.Equal(t, split.To, out.To)
	assert.Equal(t, NeuronID(4), in.To, "first hidden id follows the outputs")
	assert.Equal(t, split.Weight, in.Weight)
	assert.Equal(t, split.Weight, out.Weight)
	assert.True(t, in.Enabled)
	assert.True(t, out.Enabled)
	assert.Contains(t, g.KnownNeuronIDs, NeuronID(4))
}

func TestMutateAddNeuron_SameSplitReusesInnovation(t *testing.T) {
	rc := newTestContext(1, 1, 11)
	a := seedGenome(rc)
	b := a.Clone()
	// Leave only the bias gene enabled so both genomes split the same link.
	a.Genes[1].Enabled = false
	b.Genes[1].Enabled = false

	require.True(t, a.MutateAddNeuron(rc))
	require.True(t, b.MutateAddNeuron(rc))
	assert.Equal(t, a.Genes, b.Genes)
	assert.Equal(t, a.KnownNeuronIDs, b.KnownNeuronIDs)
}

func TestMutateAddNeuron_RefusesRepeatedSplit(t *testing.T) {
	rc := newTestContext(1, 1, 11)
	g := seedGenome(rc)
	g.Genes[1].Enabled = false
	require.True(t, g.MutateAddNeuron(rc))

	// Re-enable the split gene and keep it as the only candidate.
	g.Genes[0].Enabled = true
	g.Genes[2].Enabled = false
	g.Genes[3].Enabled = false
	before := g.Clone()
	assert.False(t, g.MutateAddNeuron(rc))
	assert.Equal(t, before, g)
}

func TestMutateAddNeuron_NoEnabledGene(t *testing.T) {
	rc := newTestContext(2, 1, 1)
	g := seedGenome(rc)
	for i := range g.Genes {
		g.Genes[i].Enabled = false
	}
	assert.False(t, g.MutateAddNeuron(rc))
}

func TestRandomMutation_LeavesParentUntouched(t *testing.T) {
	rc := newTestContext(2, 1, 13)
	parent := seedGenome(rc)
	snapshot := parent.Clone()

	for i := 0; i < 100; i++ {
		child := parent.RandomMutation(rc)
		assertGenomeInvariants(t, &child)
	}
	assert.Equal(t, snapshot, parent)
}

func TestMutateRemoveGene_KeepsNeuronsKnown(t *testing.T) {
	rc := newTestContext(2, 1, 17)
	g := seedGenome(rc)
	require.True(t, g.MutateAddNeuron(rc))
	known := append([]NeuronID(nil), g.KnownNeuronIDs...)

	for len(g.Genes) > 0 {
		require.True(t, g.MutateRemoveGene(rc))
	}
	assert.Equal(t, known, g.KnownNeuronIDs)
	assert.False(t, g.MutateRemoveGene(rc))
	assert.False(t, g.MutateOneWeight(rc))
	assert.False(t, g.MutateToggleEnable(rc))
}

func TestMutateReenableGene(t *testing.T) {
	rc := newTestContext(2, 1, 19)
	g := seedGenome(rc)
	assert.False(t, g.MutateReenableGene(rc))

	g.Genes[1].Enabled = false
	require.True(t, g.MutateReenableGene(rc))
	assert.True(t, g.Genes[1].Enabled)
}

func TestCrossover_MatchingAndDisjointGenes(t *testing.T) {
	a := NewGenome(2, 1)
	a.AddGene(NewGene(0, 0, 3, 1.0))
	a.AddGene(NewGene(1, 1, 3, 2.0))
	a.AddGene(NewGene(4, 2, 3, 3.0))
	b := NewGenome(2, 1)
	b.AddGene(NewGene(0, 0, 3, 3.0))
	b.AddGene(NewGene(2, 1, 5, 4.0))
	b.AddGene(NewGene(3, 5, 3, 5.0))

	t.Run("avg", func(t *testing.T) {
		child := a.CrossoverMultipointAvg(&b)
		require.Len(t, child.Genes, 5)
		assert.Equal(t, 2.0, child.Genes[0].Weight)
		assertGenomeInvariants(t, &child)
		assert.Contains(t, child.KnownNeuronIDs, NeuronID(5))
	})

	t.Run("best takes the fitter parent", func(t *testing.T) {
		a.Fitness, b.Fitness = 2, 1
		child := a.CrossoverMultipointBest(&b)
		assert.Equal(t, 1.0, child.Genes[0].Weight)

		a.Fitness, b.Fitness = 1, 1
		child = a.CrossoverMultipointBest(&b)
		assert.Equal(t, 3.0, child.Genes[0].Weight, "tie goes to the other parent")
	})

	t.Run("rnd", func(t *testing.T) {
		rc := newTestContext(2, 1, 23)
		child := a.CrossoverMultipointRnd(&b, rc)
		require.Len(t, child.Genes, 5)
		assert.Contains(t, []float64{1.0, 3.0}, child.Genes[0].Weight)
	})
}

func TestCrossover_SkipsDuplicateLinks(t *testing.T) {
	a := NewGenome(2, 1)
	a.AddGene(NewGene(0, 1, 3, 1.0))
	b := NewGenome(2, 1)
	b.AddGene(NewGene(6, 1, 3, 2.0))

	child := a.CrossoverMultipointAvg(&b)
	require.Len(t, child.Genes, 1)
	assert.Equal(t, InnovationID(0), child.Genes[0].Innovation)
}

func TestRandomCrossover_KeepsInvariants(t *testing.T) {
	rc := newTestContext(2, 2, 29)
	seed := seedGenome(rc)
	a := seed.RandomMutation(rc)
	b := seed.RandomMutation(rc)
	for i := 0; i < 20; i++ {
		a.MutateAddLink(rc)
		b.MutateAddNeuron(rc)
	}
	for i := 0; i < 20; i++ {
		child := a.RandomCrossover(&b, rc)
		assertGenomeInvariants(t, &child)
	}
}

type recordedNeuron struct {
	role NeuronRole
}

type recordingBuilder struct {
	neurons []recordedNeuron
	links   [][3]float64
}

func (b *recordingBuilder) AddNeuron(role NeuronRole, _ ActivationFunc) int {
	b.neurons = append(b.neurons, recordedNeuron{role: role})
	return len(b.neurons) - 1
}

func (b *recordingBuilder) AddLink(from, to int, weight float64) {
	b.links = append(b.links, [3]float64{float64(from), float64(to), weight})
}

func TestGenerateNetwork_NeuronOrderAndEnabledLinks(t *testing.T) {
	g := NewGenome(2, 1)
	g.AddGene(NewGene(0, 0, 3, 0.5))
	g.AddGene(NewGene(1, 1, 9, 1.5))
	g.AddGene(NewGene(2, 9, 3, 2.5))
	g.Genes[0].Enabled = false

	b := &recordingBuilder{}
	g.GenerateNetwork(b, Identity)

	roles := make([]NeuronRole, len(b.neurons))
	for i, n := range b.neurons {
		roles[i] = n.role
	}
	assert.Equal(t, []NeuronRole{RoleBias, RoleInput, RoleInput, RoleOutput, RoleHidden}, roles)
	assert.Equal(t, [][3]float64{{1, 4, 1.5}, {4, 3, 2.5}}, b.links)
}

func TestGenome_SerializeRoundTrip(t *testing.T) {
	rc := newTestContext(2, 1, 31)
	g := seedGenome(rc)
	for i := 0; i < 10; i++ {
		g.RandomMutate(rc)
	}
	g.Fitness = 3.25

	var buf bytes.Buffer
	ser := NewTextSerializer(&buf)
	g.Serialize(ser)
	require.NoError(t, ser.Flush())

	var restored Genome
	require.NoError(t, restored.Deserialize(NewTextDeserializer(&buf)))
	assert.True(t, g.Equal(&restored))
}
