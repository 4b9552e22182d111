package neat

import (
	"fmt"
	"sort"
)

// InnovationKind distinguishes the structural mutations tracked by the pool.
type InnovationKind int

const (
	NewLinkInnovation InnovationKind = iota
	NewNeuronInnovation
)

func (k InnovationKind) String() string {
	switch k {
	case NewLinkInnovation:
		return "new_link"
	case NewNeuronInnovation:
		return "new_neuron"
	default:
		return fmt.Sprintf("InnovationKind(%d)", int(k))
	}
}

// Innovation records one structural discovery.
// For a new link only Innovation, From and To are meaningful. For a new neuron
// the split link From->To produced From->NewNeuron (Innovation) and
// NewNeuron->To (Innovation2).
type Innovation struct {
	Kind        InnovationKind
	Innovation  InnovationID
	Innovation2 InnovationID
	From        NeuronID
	To          NeuronID
	NewNeuron   NeuronID
}

// NewLinkInnovationOf builds a new-link innovation event.
func NewLinkInnovationOf(innov InnovationID, from, to NeuronID) Innovation {
	return Innovation{Kind: NewLinkInnovation, Innovation: innov, From: from, To: to}
}

// NewNeuronInnovationOf builds a new-neuron innovation event.
func NewNeuronInnovationOf(innov1, innov2 InnovationID, from, to, newNeuron NeuronID) Innovation {
	return Innovation{
		Kind:        NewNeuronInnovation,
		Innovation:  innov1,
		Innovation2: innov2,
		From:        from,
		To:          to,
		NewNeuron:   newNeuron,
	}
}

type innovationKey struct {
	Kind InnovationKind
	From NeuronID
	To   NeuronID
}

// InnovationPool mints historical markings and hidden neuron ids and remembers
// every structural discovery of a run, so that identical mutations made by
// different genomes get identical markings.
// It is not safe for concurrent use.
type InnovationPool struct {
	nextInnovation   InnovationID
	nextHiddenNeuron NeuronID
	genes            map[ConnectionKey]Gene
	innovations      map[innovationKey]Innovation
}

// NewInnovationPool creates a pool for genomes with the given shape.
// Hidden neuron ids start right after the last output id.
func NewInnovationPool(numInputs, numOutputs int) *InnovationPool {
	return &InnovationPool{
		nextInnovation:   0,
		nextHiddenNeuron: NeuronID(numInputs + numOutputs + 1),
		genes:            make(map[ConnectionKey]Gene),
		innovations:      make(map[innovationKey]Innovation),
	}
}

// NextInnovation returns a fresh historical marking.
func (p *InnovationPool) NextInnovation() InnovationID {
	innov := p.nextInnovation
	p.nextInnovation++
	return innov
}

// NextHiddenNeuronID returns a fresh hidden neuron id.
func (p *InnovationPool) NextHiddenNeuronID() NeuronID {
	id := p.nextHiddenNeuron
	p.nextHiddenNeuron++
	return id
}

// RegisterGene remembers g under its endpoint pair. The first registration wins.
func (p *InnovationPool) RegisterGene(g Gene) {
	if _, exists := p.genes[g.Key()]; exists {
		return
	}
	p.genes[g.Key()] = g
}

// Observe records a gene minted outside the pool, such as one from a hand-built
// seed. The gene and its new-link innovation are registered, and the counters
// move past its marking and any hidden id it references, so later mints never
// collide with it.
func (p *InnovationPool) Observe(g Gene) {
	p.RegisterGene(g)
	p.RegisterInnovation(NewLinkInnovationOf(g.Innovation, g.From, g.To))
	if g.Innovation >= p.nextInnovation {
		p.nextInnovation = g.Innovation + 1
	}
	p.ObserveNeuron(g.From)
	p.ObserveNeuron(g.To)
}

// ObserveNeuron moves the hidden id counter past id. Bias, input and output ids
// sit below the counter and are left alone.
func (p *InnovationPool) ObserveNeuron(id NeuronID) {
	if id >= p.nextHiddenNeuron {
		p.nextHiddenNeuron = id + 1
	}
}

// FindGene looks up the gene registered for from->to.
func (p *InnovationPool) FindGene(from, to NeuronID) (Gene, bool) {
	g, ok := p.genes[ConnectionKey{From: from, To: to}]
	return g, ok
}

// RegisterInnovation remembers an innovation event. The first registration wins.
func (p *InnovationPool) RegisterInnovation(inn Innovation) {
	key := innovationKey{Kind: inn.Kind, From: inn.From, To: inn.To}
	if _, exists := p.innovations[key]; exists {
		return
	}
	p.innovations[key] = inn
}

// FindInnovation looks up the innovation of the given kind on from->to.
func (p *InnovationPool) FindInnovation(kind InnovationKind, from, to NeuronID) (Innovation, bool) {
	inn, ok := p.innovations[innovationKey{Kind: kind, From: from, To: to}]
	return inn, ok
}

// Len returns the number of markings minted so far.
func (p *InnovationPool) Len() int {
	return int(p.nextInnovation)
}

// Serialize writes the pool. Genes and innovations are written ordered by
// marking so the output is deterministic.
func (p *InnovationPool) Serialize(ser Serializer) {
	ser.AppendInt(int64(p.nextInnovation))
	ser.AppendInt(int64(p.nextHiddenNeuron))
	ser.NewLine()

	genes := make([]Gene, 0, len(p.genes))
	for _, g := range p.genes {
		genes = append(genes, g)
	}
	sort.Slice(genes, func(i, j int) bool {
		if genes[i].Innovation != genes[j].Innovation {
			return genes[i].Innovation < genes[j].Innovation
		}
		if genes[i].From != genes[j].From {
			return genes[i].From < genes[j].From
		}
		return genes[i].To < genes[j].To
	})
	ser.AppendInt(int64(len(genes)))
	ser.NewLine()
	for _, g := range genes {
		serializeGene(ser, g)
	}

	innovations := make([]Innovation, 0, len(p.innovations))
	for _, inn := range p.innovations {
		innovations = append(innovations, inn)
	}
	sort.Slice(innovations, func(i, j int) bool {
		if innovations[i].Innovation != innovations[j].Innovation {
			return innovations[i].Innovation < innovations[j].Innovation
		}
		return innovations[i].Kind < innovations[j].Kind
	})
	ser.AppendInt(int64(len(innovations)))
	ser.NewLine()
	for _, inn := range innovations {
		ser.AppendInt(int64(inn.Kind))
		ser.AppendInt(int64(inn.Innovation))
		ser.AppendInt(int64(inn.Innovation2))
		ser.AppendInt(int64(inn.From))
		ser.AppendInt(int64(inn.To))
		ser.AppendInt(int64(inn.NewNeuron))
		ser.NewLine()
	}
}

// Deserialize replaces the pool content with what des yields.
func (p *InnovationPool) Deserialize(des Deserializer) error {
	r := fieldReader{des: des}

	nextInnovation := InnovationID(r.readInt())
	nextHidden := NeuronID(r.readInt())

	numGenes := r.count()
	genes := make(map[ConnectionKey]Gene, max(numGenes, 0))
	for i := 0; i < numGenes && r.err == nil; i++ {
		g := r.gene()
		genes[g.Key()] = g
	}

	numInnovations := r.count()
	innovations := make(map[innovationKey]Innovation, max(numInnovations, 0))
	for i := 0; i < numInnovations && r.err == nil; i++ {
		inn := Innovation{
			Kind:        InnovationKind(r.readInt()),
			Innovation:  InnovationID(r.readInt()),
			Innovation2: InnovationID(r.readInt()),
			From:        NeuronID(r.readInt()),
			To:          NeuronID(r.readInt()),
			NewNeuron:   NeuronID(r.readInt()),
		}
		innovations[innovationKey{Kind: inn.Kind, From: inn.From, To: inn.To}] = inn
	}

	if r.err != nil {
		return fmt.Errorf("failed to read innovation pool: %w", r.err)
	}

	p.nextInnovation = nextInnovation
	p.nextHiddenNeuron = nextHidden
	p.genes = genes
	p.innovations = innovations
	return nil
}
