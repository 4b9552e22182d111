package neat

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotInitialized = errors.New("engine is not initialized")
	ErrShapeMismatch  = errors.New("genome shape does not match the configuration")
)

// Engine drives an evolutionary run. It owns the run parameters, the innovation
// pool, the species table and the memory kept across generations: the best
// genome ever seen and a bounded library of the best distinct genomes.
// Generational mechanics are delegated to a Strategy.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	RunID uuid.UUID

	config      Config
	innovations *InnovationPool
	rng         *rand.Rand
	rc          *RunContext
	strategy    Strategy
	logger      *slog.Logger
	activation  ActivationFunc

	population    *Population
	species       []*Species
	nextSpeciesID int
	generation    int
	initialized   bool

	bestGenomeEver      *Genome
	ageOfBestGenomeEver int
	bestGenomesLibrary  []Genome

	history []GenerationStats
}

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithStrategy overrides the strategy named in the configuration.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithLogger sets the logger used by the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRand sets the random generator used by the engine and its genome operators.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithSeed seeds the engine's random generator, overriding the configured seed.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewSource(seed)) }
}

// NewEngine creates an engine for config. The configuration is copied.
// It fails if genomes would have no input or no output, or if any other
// parameter is invalid.
func NewEngine(config *Config, opts ...Option) (*Engine, error) {
	if config.Genome.NumberOfInputs <= 0 {
		return nil, ErrNoInputs
	}
	if config.Genome.NumberOfOutputs <= 0 {
		return nil, ErrNoOutputs
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		RunID:       uuid.New(),
		config:      *config,
		innovations: NewInnovationPool(config.Genome.NumberOfInputs, config.Genome.NumberOfOutputs),
		population:  NewPopulation(config.Neat.InitialPopulationSize),
		species:     make([]*Species, 0, 15),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.rng == nil {
		seed := config.Neat.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		e.rng = rand.New(rand.NewSource(seed))
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("run", e.RunID.String())

	if e.strategy == nil {
		strategy, err := NewStrategy(&e.config)
		if err != nil {
			return nil, err
		}
		e.strategy = strategy
	}

	activation, err := GetActivation(e.config.Genome.Activation)
	if err != nil {
		return nil, err
	}
	e.activation = activation

	e.rc = &RunContext{Config: &e.config, Innovations: e.innovations, Rand: e.rng}
	return e, nil
}

// Config returns the run configuration. Only the compatibility threshold
// changes during a run, and only when it is dynamic.
func (e *Engine) Config() *Config { return &e.config }

// Context returns the run context to hand to genome operators.
func (e *Engine) Context() *RunContext { return e.rc }

// Innovations returns the innovation pool of the run.
func (e *Engine) Innovations() *InnovationPool { return e.innovations }

// Rand returns the engine's random generator.
func (e *Engine) Rand() *rand.Rand { return e.rng }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Activation returns the activation function of the networks of this run.
func (e *Engine) Activation() ActivationFunc { return e.activation }

// Population returns the live population.
func (e *Engine) Population() *Population { return e.population }

// Species returns the species table in creation order.
func (e *Engine) Species() []*Species { return e.species }

// Generation returns the number of epochs run so far.
func (e *Engine) Generation() int { return e.generation }

// Initialized reports whether Init has been called.
func (e *Engine) Initialized() bool { return e.initialized }

// --------------------------- Lifecycle ---------------------------

// DefaultSeedGenome builds the minimal fully connected genome: one gene from the
// bias to every output, then one gene from every input to every output, grouped
// by input. Each gene gets a fresh innovation number in that order.
func (e *Engine) DefaultSeedGenome() Genome {
	numInputs := e.config.Genome.NumberOfInputs
	numOutputs := e.config.Genome.NumberOfOutputs
	seed := NewGenome(numInputs, numOutputs)
	firstOutput := NeuronID(1 + numInputs)

	for i := 0; i < numOutputs; i++ {
		seed.AddGene(e.mintSeedGene(BiasID, firstOutput+NeuronID(i)))
	}
	for j := 0; j < numInputs; j++ {
		for i := 0; i < numOutputs; i++ {
			seed.AddGene(e.mintSeedGene(NeuronID(j+1), firstOutput+NeuronID(i)))
		}
	}
	return seed
}

func (e *Engine) mintSeedGene(from, to NeuronID) Gene {
	gene := NewGene(e.innovations.NextInnovation(), from, to, 0)
	e.innovations.RegisterGene(gene)
	e.innovations.RegisterInnovation(NewLinkInnovationOf(gene.Innovation, from, to))
	return gene
}

// Init starts a run from the default seed genome.
func (e *Engine) Init() error {
	seed := e.DefaultSeedGenome()
	return e.InitWith(seed)
}

// InitWith starts a run from seed: best-ever memory is reset, the strategy
// builds the initial population and the whole population is speciated.
func (e *Engine) InitWith(seed Genome) error {
	if seed.NumInputs != e.config.Genome.NumberOfInputs || seed.NumOutputs != e.config.Genome.NumberOfOutputs {
		return fmt.Errorf("%w: seed has %d inputs and %d outputs, config wants %d and %d", ErrShapeMismatch,
			seed.NumInputs, seed.NumOutputs, e.config.Genome.NumberOfInputs, e.config.Genome.NumberOfOutputs)
	}

	// Seeds built outside DefaultSeedGenome still have to share their markings with the pool.
	for _, gene := range seed.Genes {
		e.innovations.Observe(gene)
	}
	for _, id := range seed.KnownNeuronIDs {
		e.innovations.ObserveNeuron(id)
	}

	e.bestGenomeEver = nil
	e.ageOfBestGenomeEver = 0
	e.generation = 0
	e.population = NewPopulation(e.config.Neat.InitialPopulationSize)
	e.species = e.species[:0]
	e.history = nil

	if err := e.strategy.InitPopulation(e, &seed); err != nil {
		return fmt.Errorf("failed to build initial population: %w", err)
	}
	e.SpeciateAllPopulation()
	e.initialized = true

	e.logger.Info("run initialized",
		"population", e.population.Len(),
		"species", len(e.species),
		"seed_genes", len(seed.Genes))
	return nil
}

// PopulateFrom fills the population with InitialPopulationSize random mutations of seed.
func (e *Engine) PopulateFrom(seed *Genome) {
	for i := 0; i < e.config.Neat.InitialPopulationSize; i++ {
		e.population.Add(seed.RandomMutation(e.rc))
	}
}

// Epoch advances the run by one generation through the strategy, then ages the
// best genome ever.
func (e *Engine) Epoch() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if err := e.strategy.Epoch(e); err != nil {
		return fmt.Errorf("epoch %d failed: %w", e.generation+1, err)
	}
	e.ageOfBestGenomeEver++
	e.generation++
	return nil
}

// RunGeneration evaluates the population, updates the best-ever genome and the
// best genomes library, records statistics and runs one Epoch. It returns the
// best genome ever if it reached the configured fitness threshold, in which case
// no epoch is run.
func (e *Engine) RunGeneration(fitnessFunc FitnessFunc) (*Genome, error) {
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	genStartTime := time.Now()

	if err := fitnessFunc(e.population.Genomes()); err != nil {
		return nil, fmt.Errorf("fitness evaluation failed in generation %d: %w", e.generation, err)
	}

	if e.UpdateBestGenomeEver() {
		e.logger.Info("new best genome",
			"generation", e.generation,
			"fitness", e.bestGenomeEver.Fitness,
			"genes", len(e.bestGenomeEver.Genes))
	}
	e.UpdateBestGenomesLibraryWith(e.CurrentBestGenome())
	stats := e.recordStats()

	threshold := e.config.Neat.FitnessThreshold
	if threshold > 0 && e.bestGenomeEver.Fitness >= threshold {
		best := e.bestGenomeEver.Clone()
		return &best, nil
	}

	if err := e.Epoch(); err != nil {
		return nil, err
	}

	e.logger.Info("generation finished",
		"generation", stats.Generation,
		"best", stats.BestFitness,
		"mean", stats.MeanFitness,
		"species", len(e.species),
		"elapsed", time.Since(genStartTime))
	return nil, nil
}

// --------------------------- Speciation ---------------------------

// FindAppropriateSpeciesFor returns the first species, in creation order, whose
// representative is compatible with g, or nil.
func (e *Engine) FindAppropriateSpeciesFor(g *Genome) *Species {
	for _, sp := range e.species {
		if g.IsCompatibleWith(&sp.Representative, e.rc) {
			return sp
		}
	}
	return nil
}

// SpeciateOneGenome adds the genome at idx to a compatible species, founding a
// new species anchored on it when none fits.
func (e *Engine) SpeciateOneGenome(idx int) *Species {
	g := e.population.At(idx)
	if sp := e.FindAppropriateSpeciesFor(g); sp != nil {
		sp.AddMember(idx)
		return sp
	}

	sp := NewSpecies(e.nextSpeciesID, e.generation, g)
	e.nextSpeciesID++
	sp.AddMember(idx)
	e.species = append(e.species, sp)
	e.logger.Debug("created new species", "species", sp.ID, "genome", idx)
	return sp
}

// SpeciateAllPopulation speciates every genome of the population in index order.
func (e *Engine) SpeciateAllPopulation() {
	for idx := 0; idx < e.population.Len(); idx++ {
		e.SpeciateOneGenome(idx)
	}
}

// SpeciesOf returns the species the genome at idx belongs to, or nil.
func (e *Engine) SpeciesOf(idx int) *Species {
	for _, sp := range e.species {
		if sp.HasMember(idx) {
			return sp
		}
	}
	return nil
}

// RemoveEmptySpecies drops every species without members.
func (e *Engine) RemoveEmptySpecies() {
	kept := e.species[:0]
	for _, sp := range e.species {
		if len(sp.Members) == 0 {
			e.logger.Debug("species died out", "species", sp.ID)
			continue
		}
		kept = append(kept, sp)
	}
	clear(e.species[len(kept):])
	e.species = kept
}

// AdjustCompatibilityThreshold moves a dynamic threshold one step toward the
// configured target species count. It does nothing for a static threshold.
func (e *Engine) AdjustCompatibilityThreshold() {
	sc := &e.config.Speciation
	if !sc.DynamicCompatibilityThreshold || sc.TargetSpeciesCount <= 0 {
		return
	}
	before := sc.CompatibilityThreshold
	switch {
	case len(e.species) < sc.TargetSpeciesCount:
		sc.CompatibilityThreshold = max(sc.CompatibilityThreshold-sc.CompatibilityThresholdStep, sc.CompatibilityThresholdStep)
	case len(e.species) > sc.TargetSpeciesCount:
		sc.CompatibilityThreshold += sc.CompatibilityThresholdStep
	}
	if before != sc.CompatibilityThreshold {
		e.logger.Debug("compatibility threshold adjusted",
			"from", before, "to", sc.CompatibilityThreshold, "species", len(e.species))
	}
}

// --------------------------- Best genomes ---------------------------

// CurrentBestGenome returns the fittest genome of the live population; the first
// one wins a tie. It panics on an empty population.
func (e *Engine) CurrentBestGenome() *Genome {
	if e.population.Len() == 0 {
		panic("neat: CurrentBestGenome called on an empty population")
	}
	best := e.population.At(0)
	for idx := 1; idx < e.population.Len(); idx++ {
		if g := e.population.At(idx); g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}

// UpdateBestGenomeEver snapshots the current best genome when there is no
// best-ever genome yet or when it is strictly fitter than the snapshot; the age
// is reset to 0 in both cases. It reports whether the snapshot changed.
func (e *Engine) UpdateBestGenomeEver() bool {
	current := e.CurrentBestGenome()
	if e.bestGenomeEver != nil && current.Fitness <= e.bestGenomeEver.Fitness {
		return false
	}
	snapshot := current.Clone()
	e.bestGenomeEver = &snapshot
	e.ageOfBestGenomeEver = 0
	return true
}

// BestGenomeEver returns a copy of the best genome seen so far.
func (e *Engine) BestGenomeEver() (Genome, bool) {
	if e.bestGenomeEver == nil {
		return Genome{}, false
	}
	return e.bestGenomeEver.Clone(), true
}

// AgeOfBestGenomeEver returns the number of epochs since the best genome ever last changed.
func (e *Engine) AgeOfBestGenomeEver() int { return e.ageOfBestGenomeEver }

// UpdateBestGenomesLibraryWith offers a copy of g to the library. Duplicates are
// ignored; when the library is full g replaces the least fit member only if it
// is strictly fitter.
func (e *Engine) UpdateBestGenomesLibraryWith(g *Genome) {
	for i := range e.bestGenomesLibrary {
		if e.bestGenomesLibrary[i].Equal(g) {
			return
		}
	}

	if len(e.bestGenomesLibrary) < e.config.Neat.BestGenomesLibraryMaxSize {
		e.bestGenomesLibrary = append(e.bestGenomesLibrary, g.Clone())
		return
	}

	worst := 0
	for i := 1; i < len(e.bestGenomesLibrary); i++ {
		if e.bestGenomesLibrary[i].Fitness < e.bestGenomesLibrary[worst].Fitness {
			worst = i
		}
	}
	if g.Fitness > e.bestGenomesLibrary[worst].Fitness {
		e.bestGenomesLibrary[worst] = g.Clone()
	}
}

// RandomGenomeFromBestGenomesLibrary returns a copy of a uniformly drawn library member.
func (e *Engine) RandomGenomeFromBestGenomesLibrary() (Genome, bool) {
	if len(e.bestGenomesLibrary) == 0 {
		return Genome{}, false
	}
	return e.bestGenomesLibrary[e.rng.Intn(len(e.bestGenomesLibrary))].Clone(), true
}

// BestGenomesLibrary returns copies of the library members.
func (e *Engine) BestGenomesLibrary() []Genome {
	library := make([]Genome, len(e.bestGenomesLibrary))
	for i := range e.bestGenomesLibrary {
		library[i] = e.bestGenomesLibrary[i].Clone()
	}
	return library
}

// --------------------------- Persistence ---------------------------

// Serialize writes the engine state in this order: next species id, generation,
// age of the best genome ever, whether there is one, the best genome ever,
// compatibility threshold, best genomes library, population, species,
// innovation pool, statistics history.
func (e *Engine) Serialize(ser Serializer) {
	ser.AppendInt(int64(e.nextSpeciesID))
	ser.AppendInt(int64(e.generation))
	ser.AppendInt(int64(e.ageOfBestGenomeEver))
	ser.NewLine()

	if e.bestGenomeEver == nil {
		ser.AppendBool(false)
		ser.NewLine()
	} else {
		ser.AppendBool(true)
		ser.NewLine()
		e.bestGenomeEver.Serialize(ser)
	}

	ser.AppendFloat(e.config.Speciation.CompatibilityThreshold)
	ser.NewLine()

	ser.AppendInt(int64(len(e.bestGenomesLibrary)))
	ser.NewLine()
	for i := range e.bestGenomesLibrary {
		e.bestGenomesLibrary[i].Serialize(ser)
	}

	e.population.Serialize(ser)

	ser.AppendInt(int64(len(e.species)))
	ser.NewLine()
	for _, sp := range e.species {
		sp.Serialize(ser)
	}

	e.innovations.Serialize(ser)
	e.serializeHistory(ser)
}

// Deserialize restores state written by Serialize. The stream is trusted: no
// structural validation is performed. The compatibility threshold is only
// restored when it is dynamic.
func (e *Engine) Deserialize(des Deserializer) error {
	r := fieldReader{des: des}

	nextSpeciesID := int(r.readInt())
	generation := int(r.readInt())
	age := int(r.readInt())

	var best *Genome
	if r.readBool() {
		best = &Genome{}
		best.readFrom(&r)
	}

	threshold := r.readFloat()

	numLibrary := r.count()
	library := make([]Genome, 0, max(numLibrary, 0))
	for i := 0; i < numLibrary && r.err == nil; i++ {
		var g Genome
		g.readFrom(&r)
		library = append(library, g)
	}

	population := NewPopulation(0)
	population.readFrom(&r)

	numSpecies := r.count()
	species := make([]*Species, 0, max(numSpecies, 0))
	for i := 0; i < numSpecies && r.err == nil; i++ {
		sp := &Species{}
		sp.readFrom(&r)
		species = append(species, sp)
	}

	if r.err != nil {
		return fmt.Errorf("failed to read engine state: %w", r.err)
	}
	if err := e.innovations.Deserialize(des); err != nil {
		return err
	}
	history, err := readHistory(des)
	if err != nil {
		return err
	}

	e.nextSpeciesID = nextSpeciesID
	e.generation = generation
	e.ageOfBestGenomeEver = age
	e.bestGenomeEver = best
	if e.config.Speciation.DynamicCompatibilityThreshold {
		e.config.Speciation.CompatibilityThreshold = threshold
	}
	e.bestGenomesLibrary = library
	e.population = population
	e.species = species
	e.history = history
	e.initialized = population.Len() > 0
	return nil
}
