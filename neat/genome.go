package neat

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sort"
	"strings"
)

// RunContext carries what genome operators need from the run they belong to.
// Genomes never keep a reference to it: every operator that needs parameters,
// the innovation pool or randomness receives it explicitly.
type RunContext struct {
	Config      *Config
	Innovations *InnovationPool
	Rand        *rand.Rand
}

// uniform draws a value uniformly from [-magnitude, magnitude).
func (rc *RunContext) uniform(magnitude float64) float64 {
	return (rc.Rand.Float64()*2 - 1) * magnitude
}

// Genome represents an individual: an ordered list of genes plus the ids of the
// neurons it knows about.
//
// Genes are kept strictly ascending by innovation number and no two genes share
// the same (from, to) pair. KnownNeuronIDs always starts with the bias, then the
// inputs, then the outputs, in id order; hidden ids follow in the order they were
// first seen.
type Genome struct {
	NumInputs      int
	NumOutputs     int
	Genes          []Gene
	KnownNeuronIDs []NeuronID
	Fitness        float64 // Written by the fitness evaluator.
}

// NewGenome creates a genome without genes that knows the bias, input and output neurons.
func NewGenome(numInputs, numOutputs int) Genome {
	known := make([]NeuronID, 0, 1+numInputs+numOutputs)
	known = append(known, BiasID)
	for i := 1; i <= numInputs+numOutputs; i++ {
		known = append(known, NeuronID(i))
	}
	return Genome{
		NumInputs:      numInputs,
		NumOutputs:     numOutputs,
		Genes:          []Gene{},
		KnownNeuronIDs: known,
	}
}

// Clone returns a deep copy of the genome.
func (g *Genome) Clone() Genome {
	return Genome{
		NumInputs:      g.NumInputs,
		NumOutputs:     g.NumOutputs,
		Genes:          slices.Clone(g.Genes),
		KnownNeuronIDs: slices.Clone(g.KnownNeuronIDs),
		Fitness:        g.Fitness,
	}
}

// Equal reports whether both genomes hold the same values.
func (g *Genome) Equal(other *Genome) bool {
	return g.NumInputs == other.NumInputs &&
		g.NumOutputs == other.NumOutputs &&
		g.Fitness == other.Fitness &&
		slices.Equal(g.Genes, other.Genes) &&
		slices.Equal(g.KnownNeuronIDs, other.KnownNeuronIDs)
}

// IsInput reports whether id is one of the input neurons.
func (g *Genome) IsInput(id NeuronID) bool {
	return id >= 1 && int(id) <= g.NumInputs
}

// IsOutput reports whether id is one of the output neurons.
func (g *Genome) IsOutput(id NeuronID) bool {
	return int(id) > g.NumInputs && int(id) <= g.NumInputs+g.NumOutputs
}

func (g *Genome) knows(id NeuronID) bool {
	return slices.Contains(g.KnownNeuronIDs, id)
}

// AddGene adds gene and records any neuron id it references that was unknown.
// Genes arriving in ascending innovation order are appended; a gene carrying an
// older marking is inserted at its ordered position.
func (g *Genome) AddGene(gene Gene) {
	if !g.knows(gene.From) {
		g.KnownNeuronIDs = append(g.KnownNeuronIDs, gene.From)
	}
	if !g.knows(gene.To) {
		g.KnownNeuronIDs = append(g.KnownNeuronIDs, gene.To)
	}

	n := len(g.Genes)
	if n == 0 || g.Genes[n-1].Innovation < gene.Innovation {
		g.Genes = append(g.Genes, gene)
		return
	}
	idx := sort.Search(n, func(i int) bool { return g.Genes[i].Innovation >= gene.Innovation })
	g.Genes = slices.Insert(g.Genes, idx, gene)
}

// LinkExists reports whether a gene, enabled or not, already connects from to to.
func (g *Genome) LinkExists(from, to NeuronID) bool {
	for _, gene := range g.Genes {
		if gene.From == from && gene.To == to {
			return true
		}
	}
	return false
}

// DistanceTo calculates the compatibility distance between two genomes:
// c1*E/L + c2*D/L + c3*W, where E is the number of excess genes, D the number of
// disjoint genes, W the average weight difference of matching genes and L the
// size of the larger genome. Genomes whose larger gene list holds 4 genes or
// fewer are at distance 0. Without any matching gene W is 0.
func (g *Genome) DistanceTo(other *Genome, rc *RunContext) float64 {
	largerSize := max(len(g.Genes), len(other.Genes))
	if largerSize <= 4 {
		return 0
	}

	disjoint, excess, matching := 0, 0, 0
	weightDiffSum := 0.0

	i, j := 0, 0
	for i < len(g.Genes) && j < len(other.Genes) {
		a, b := g.Genes[i], other.Genes[j]
		switch {
		case a.Innovation == b.Innovation:
			matching++
			weightDiffSum += math.Abs(a.Weight - b.Weight)
			i++
			j++
		case a.Innovation < b.Innovation:
			disjoint++
			i++
		default:
			disjoint++
			j++
		}
	}
	excess = (len(g.Genes) - i) + (len(other.Genes) - j)

	averageWeightDiff := 0.0
	if matching > 0 {
		averageWeightDiff = weightDiffSum / float64(matching)
	}

	cfg := rc.Config.Genome
	l := float64(largerSize)
	return cfg.DistanceCoefC1*float64(excess)/l +
		cfg.DistanceCoefC2*float64(disjoint)/l +
		cfg.DistanceCoefC3*averageWeightDiff
}

// IsCompatibleWith reports whether the distance to other is strictly below the
// current compatibility threshold.
func (g *Genome) IsCompatibleWith(other *Genome, rc *RunContext) bool {
	return g.DistanceTo(other, rc) < rc.Config.Speciation.CompatibilityThreshold
}

// --------------------------- Mutation ---------------------------

const mutationAttempts = 3

// RandomMutation returns a mutated copy of the genome. A mutation can fail, so
// up to three attempts are made; the copy is returned even if all failed.
func (g *Genome) RandomMutation(rc *RunContext) Genome {
	offspring := g.Clone()
	for attempt := 0; attempt < mutationAttempts; attempt++ {
		if offspring.RandomMutate(rc) {
			break
		}
	}
	return offspring
}

// RandomMutate applies one mutation operator picked by weighted roulette.
// It reports whether the operator succeeded.
func (g *Genome) RandomMutate(rc *RunContext) bool {
	mc := rc.Config.Mutation
	rnd := rc.Rand.Intn(mc.Sum())

	if rnd < mc.AddLinkWeight {
		return g.MutateAddLink(rc)
	}
	rnd -= mc.AddLinkWeight

	if rnd < mc.AddNeuronWeight {
		return g.MutateAddNeuron(rc)
	}
	rnd -= mc.AddNeuronWeight

	if rnd < mc.AllWeightsWeight {
		return g.MutateAllWeights(rc)
	}
	rnd -= mc.AllWeightsWeight

	if rnd < mc.OneWeightWeight {
		return g.MutateOneWeight(rc)
	}
	rnd -= mc.OneWeightWeight

	if rnd < mc.ResetWeightsWeight {
		return g.MutateResetWeights(rc)
	}
	rnd -= mc.ResetWeightsWeight

	if rnd < mc.RemoveGeneWeight {
		return g.MutateRemoveGene(rc)
	}
	rnd -= mc.RemoveGeneWeight

	if rnd < mc.ReenableGeneWeight {
		return g.MutateReenableGene(rc)
	}

	return g.MutateToggleEnable(rc)
}

// MutateAddLink connects a random known neuron to a random neuron that is
// neither the bias nor an input.
func (g *Genome) MutateAddLink(rc *RunContext) bool {
	// KnownNeuronIDs starts with the bias and the inputs, destinations are picked after them.
	firstDestination := 1 + g.NumInputs
	if len(g.KnownNeuronIDs) <= firstDestination {
		return false
	}
	from := g.KnownNeuronIDs[rc.Rand.Intn(len(g.KnownNeuronIDs))]
	to := g.KnownNeuronIDs[firstDestination+rc.Rand.Intn(len(g.KnownNeuronIDs)-firstDestination)]

	if g.LinkExists(from, to) {
		return false
	}

	pool := rc.Innovations
	perturbation := rc.Config.Mutation.InitialWeightPerturbation
	if existing, ok := pool.FindGene(from, to); ok {
		existing.Weight = rc.uniform(perturbation)
		existing.Enabled = true
		g.AddGene(existing)
		return true
	}

	gene := NewGene(pool.NextInnovation(), from, to, rc.uniform(perturbation))
	pool.RegisterGene(gene)
	pool.RegisterInnovation(NewLinkInnovationOf(gene.Innovation, gene.From, gene.To))
	g.AddGene(gene)
	return true
}

// MutateAddNeuron splits a random enabled gene in two, inserting a neuron in the middle.
// Both new genes inherit the weight of the split gene, which is disabled.
func (g *Genome) MutateAddNeuron(rc *RunContext) bool {
	selected := -1
	for _, idx := range rc.Rand.Perm(len(g.Genes)) {
		if g.Genes[idx].Enabled {
			selected = idx
			break
		}
	}
	if selected == -1 {
		return false
	}

	split := g.Genes[selected]
	pool := rc.Innovations

	if existing, ok := pool.FindInnovation(NewNeuronInnovation, split.From, split.To); ok {
		// This genome already went through the same split once.
		if g.LinkExists(split.From, existing.NewNeuron) || g.LinkExists(existing.NewNeuron, split.To) {
			return false
		}
		g.Genes[selected].Enabled = false
		g.AddGene(NewGene(existing.Innovation, split.From, existing.NewNeuron, split.Weight))
		g.AddGene(NewGene(existing.Innovation2, existing.NewNeuron, split.To, split.Weight))
		return true
	}

	g.Genes[selected].Enabled = false

	newNeuron := pool.NextHiddenNeuronID()
	gene1 := NewGene(pool.NextInnovation(), split.From, newNeuron, split.Weight)
	gene2 := NewGene(pool.NextInnovation(), newNeuron, split.To, split.Weight)

	pool.RegisterGene(gene1)
	pool.RegisterGene(gene2)
	pool.RegisterInnovation(NewNeuronInnovationOf(gene1.Innovation, gene2.Innovation, split.From, split.To, newNeuron))

	g.AddGene(gene1)
	g.AddGene(gene2)
	return true
}

// MutateOneWeight perturbs the weight of one random gene.
func (g *Genome) MutateOneWeight(rc *RunContext) bool {
	if len(g.Genes) == 0 {
		return false
	}
	idx := rc.Rand.Intn(len(g.Genes))
	g.Genes[idx].Weight += rc.uniform(rc.Config.Mutation.WeightMutationPower)
	return true
}

// MutateAllWeights perturbs the weight of every gene.
func (g *Genome) MutateAllWeights(rc *RunContext) bool {
	power := rc.Config.Mutation.WeightMutationPower
	for i := range g.Genes {
		g.Genes[i].Weight += rc.uniform(power)
	}
	return true
}

// MutateResetWeights draws a brand new weight for every gene.
func (g *Genome) MutateResetWeights(rc *RunContext) bool {
	perturbation := rc.Config.Mutation.InitialWeightPerturbation
	for i := range g.Genes {
		g.Genes[i].Weight = rc.uniform(perturbation)
	}
	return true
}

// MutateRemoveGene deletes one random gene. Neuron ids it referenced stay known.
func (g *Genome) MutateRemoveGene(rc *RunContext) bool {
	if len(g.Genes) == 0 {
		return false
	}
	idx := rc.Rand.Intn(len(g.Genes))
	g.Genes = slices.Delete(g.Genes, idx, idx+1)
	return true
}

// MutateReenableGene enables one random disabled gene.
func (g *Genome) MutateReenableGene(rc *RunContext) bool {
	var candidates []int
	for i, gene := range g.Genes {
		if !gene.Enabled {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return false
	}
	g.Genes[candidates[rc.Rand.Intn(len(candidates))]].Enabled = true
	return true
}

// MutateToggleEnable flips the enabled flag of one random gene.
func (g *Genome) MutateToggleEnable(rc *RunContext) bool {
	if len(g.Genes) == 0 {
		return false
	}
	idx := rc.Rand.Intn(len(g.Genes))
	g.Genes[idx].Enabled = !g.Genes[idx].Enabled
	return true
}

// --------------------------- Crossover ---------------------------

// RandomCrossover breeds an offspring with other using a crossover strategy
// picked by weighted roulette.
func (g *Genome) RandomCrossover(other *Genome, rc *RunContext) Genome {
	cc := rc.Config.Crossover
	rnd := rc.Rand.Intn(cc.Sum())

	if rnd < cc.MultipointAvgWeight {
		return g.CrossoverMultipointAvg(other)
	}
	rnd -= cc.MultipointAvgWeight

	if rnd < cc.MultipointBestWeight {
		return g.CrossoverMultipointBest(other)
	}

	return g.CrossoverMultipointRnd(other, rc)
}

// CrossoverMultipointBest takes matching genes from the fitter parent.
// On a tie the gene of other is taken.
func (g *Genome) CrossoverMultipointBest(other *Genome) Genome {
	return g.crossoverMultipoint(other, func(g1, g2 Gene) Gene {
		if g.Fitness > other.Fitness {
			return g1
		}
		return g2
	})
}

// CrossoverMultipointRnd takes each matching gene from either parent with equal probability.
func (g *Genome) CrossoverMultipointRnd(other *Genome, rc *RunContext) Genome {
	return g.crossoverMultipoint(other, func(g1, g2 Gene) Gene {
		if rc.Rand.Intn(2) == 0 {
			return g1
		}
		return g2
	})
}

// CrossoverMultipointAvg keeps the matching genes of g with the mean weight of both parents.
func (g *Genome) CrossoverMultipointAvg(other *Genome) Genome {
	return g.crossoverMultipoint(other, func(g1, g2 Gene) Gene {
		child := g1
		child.Weight = (g1.Weight + g2.Weight) / 2
		return child
	})
}

// crossoverMultipoint walks both gene lists in innovation order. Matching genes
// are resolved by pick, disjoint and excess genes are inherited from whichever
// parent has them.
func (g *Genome) crossoverMultipoint(other *Genome, pick func(g1, g2 Gene) Gene) Genome {
	child := NewGenome(g.NumInputs, g.NumOutputs)
	child.Genes = make([]Gene, 0, max(len(g.Genes), len(other.Genes)))

	inherit := func(gene Gene) {
		// Both parents may carry the same link under different markings if it
		// was seeded outside the innovation pool; keep the first one.
		if child.LinkExists(gene.From, gene.To) {
			return
		}
		child.AddGene(gene)
	}

	i, j := 0, 0
	for i < len(g.Genes) || j < len(other.Genes) {
		switch {
		case j >= len(other.Genes):
			inherit(g.Genes[i])
			i++
		case i >= len(g.Genes):
			inherit(other.Genes[j])
			j++
		case g.Genes[i].Innovation == other.Genes[j].Innovation:
			inherit(pick(g.Genes[i], other.Genes[j]))
			i++
			j++
		case g.Genes[i].Innovation < other.Genes[j].Innovation:
			inherit(g.Genes[i])
			i++
		default:
			inherit(other.Genes[j])
			j++
		}
	}
	return child
}

// --------------------------- Phenotype ---------------------------

// NeuronRole is the role a neuron plays in a generated network.
type NeuronRole int

const (
	RoleBias NeuronRole = iota
	RoleInput
	RoleOutput
	RoleHidden
)

func (r NeuronRole) String() string {
	switch r {
	case RoleBias:
		return "bias"
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleHidden:
		return "hidden"
	default:
		return fmt.Sprintf("NeuronRole(%d)", int(r))
	}
}

// NetworkBuilder receives the neurons and links of a genome's phenotype.
// AddNeuron returns the id the network assigned to the new neuron.
type NetworkBuilder interface {
	AddNeuron(role NeuronRole, activation ActivationFunc) int
	AddLink(from, to int, weight float64)
}

// GenerateNetwork translates the genome into a network. Neurons are created in a
// fixed order: bias, inputs, outputs, then every other known neuron as hidden in
// first-seen order. Only enabled genes become links.
func (g *Genome) GenerateNetwork(net NetworkBuilder, activation ActivationFunc) {
	ids := make(map[NeuronID]int, len(g.KnownNeuronIDs))

	ids[BiasID] = net.AddNeuron(RoleBias, activation)
	for i := 1; i <= g.NumInputs; i++ {
		ids[NeuronID(i)] = net.AddNeuron(RoleInput, activation)
	}
	for i := 1; i <= g.NumOutputs; i++ {
		ids[NeuronID(g.NumInputs+i)] = net.AddNeuron(RoleOutput, activation)
	}
	for _, id := range g.KnownNeuronIDs {
		if _, mapped := ids[id]; !mapped {
			ids[id] = net.AddNeuron(RoleHidden, activation)
		}
	}

	for _, gene := range g.Genes {
		if gene.Enabled {
			net.AddLink(ids[gene.From], ids[gene.To], gene.Weight)
		}
	}
}

// --------------------------- Misc ---------------------------

// String returns a multi-line dump of the genome.
func (g *Genome) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<genome: (fitness = %g) %d input(s) %d output(s)\n", g.Fitness, g.NumInputs, g.NumOutputs)
	sb.WriteString("\tgenes are:\n")
	for _, gene := range g.Genes {
		fmt.Fprintf(&sb, "\t%s\n", gene)
	}
	fmt.Fprintf(&sb, "\ttotal: %d genes and %d neurons>", len(g.Genes), len(g.KnownNeuronIDs))
	return sb.String()
}

// Serialize writes the genome.
func (g *Genome) Serialize(ser Serializer) {
	ser.AppendInt(int64(g.NumInputs))
	ser.AppendInt(int64(g.NumOutputs))
	ser.AppendFloat(g.Fitness)
	ser.NewLine()

	ser.AppendInt(int64(len(g.Genes)))
	ser.NewLine()
	for _, gene := range g.Genes {
		serializeGene(ser, gene)
	}

	ser.AppendInt(int64(len(g.KnownNeuronIDs)))
	for _, id := range g.KnownNeuronIDs {
		ser.AppendInt(int64(id))
	}
	ser.NewLine()
}

// Deserialize replaces the genome content with what des yields.
func (g *Genome) Deserialize(des Deserializer) error {
	r := fieldReader{des: des}
	g.readFrom(&r)
	if r.err != nil {
		return fmt.Errorf("failed to read genome: %w", r.err)
	}
	return nil
}

func (g *Genome) readFrom(r *fieldReader) {
	g.NumInputs = int(r.readInt())
	g.NumOutputs = int(r.readInt())
	g.Fitness = r.readFloat()

	numGenes := r.count()
	g.Genes = make([]Gene, 0, max(numGenes, 0))
	for i := 0; i < numGenes && r.err == nil; i++ {
		g.Genes = append(g.Genes, r.gene())
	}

	numKnown := r.count()
	g.KnownNeuronIDs = make([]NeuronID, 0, max(numKnown, 0))
	for i := 0; i < numKnown && r.err == nil; i++ {
		g.KnownNeuronIDs = append(g.KnownNeuronIDs, NeuronID(r.readInt()))
	}
}
