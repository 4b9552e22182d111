package neat

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// GenerationStats summarizes one evaluated generation.
type GenerationStats struct {
	Generation             int     `csv:"generation"`
	BestFitness            float64 `csv:"best_fitness"`
	MeanFitness            float64 `csv:"mean_fitness"`
	StdevFitness           float64 `csv:"stdev_fitness"`
	NumSpecies             int     `csv:"species"`
	BestFitnessEver        float64 `csv:"best_fitness_ever"`
	AgeOfBestGenomeEver    int     `csv:"age_of_best_ever"`
	CompatibilityThreshold float64 `csv:"compatibility_threshold"`
}

func (e *Engine) recordStats() GenerationStats {
	fitnesses := e.population.Fitnesses()
	stats := GenerationStats{
		Generation:             e.generation,
		BestFitness:            MaxFloat(fitnesses),
		MeanFitness:            Mean(fitnesses),
		StdevFitness:           Stdev(fitnesses),
		NumSpecies:             len(e.species),
		AgeOfBestGenomeEver:    e.ageOfBestGenomeEver,
		CompatibilityThreshold: e.config.Speciation.CompatibilityThreshold,
	}
	if e.bestGenomeEver != nil {
		stats.BestFitnessEver = e.bestGenomeEver.Fitness
	}
	e.history = append(e.history, stats)
	return stats
}

func (e *Engine) serializeHistory(ser Serializer) {
	ser.AppendInt(int64(len(e.history)))
	ser.NewLine()
	for _, st := range e.history {
		ser.AppendInt(int64(st.Generation))
		ser.AppendFloat(st.BestFitness)
		ser.AppendFloat(st.MeanFitness)
		ser.AppendFloat(st.StdevFitness)
		ser.AppendInt(int64(st.NumSpecies))
		ser.AppendFloat(st.BestFitnessEver)
		ser.AppendInt(int64(st.AgeOfBestGenomeEver))
		ser.AppendFloat(st.CompatibilityThreshold)
		ser.NewLine()
	}
}

func readHistory(des Deserializer) ([]GenerationStats, error) {
	r := fieldReader{des: des}
	n := r.count()
	var history []GenerationStats
	for i := 0; i < n && r.err == nil; i++ {
		history = append(history, GenerationStats{
			Generation:             int(r.readInt()),
			BestFitness:            r.readFloat(),
			MeanFitness:            r.readFloat(),
			StdevFitness:           r.readFloat(),
			NumSpecies:             int(r.readInt()),
			BestFitnessEver:        r.readFloat(),
			AgeOfBestGenomeEver:    int(r.readInt()),
			CompatibilityThreshold: r.readFloat(),
		})
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to read statistics history: %w", r.err)
	}
	return history, nil
}

// History returns the statistics recorded by RunGeneration since Init,
// including generations restored from a checkpoint.
func (e *Engine) History() []GenerationStats {
	return append([]GenerationStats(nil), e.history...)
}

// WriteStatsCSV writes the recorded statistics as CSV with a header row.
func (e *Engine) WriteStatsCSV(w io.Writer) error {
	history := e.history
	if history == nil {
		history = []GenerationStats{}
	}
	if err := gocsv.Marshal(&history, w); err != nil {
		return fmt.Errorf("failed to write statistics: %w", err)
	}
	return nil
}
