package neat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Strategy names accepted by the "strategy" key.
const (
	StrategyGenerational = "generational"
	StrategySteadyState  = "steady_state"
)

var (
	ErrNoInputs  = errors.New("genomes need at least one input")
	ErrNoOutputs = errors.New("genomes need at least one output")
)

// Config stores the configuration parameters of an evolutionary run.
type Config struct {
	Neat         NeatConfig         `yaml:"neat"`
	Genome       GenomeConfig       `yaml:"genome"`
	Mutation     MutationConfig     `yaml:"mutation"`
	Crossover    CrossoverConfig    `yaml:"crossover"`
	Speciation   SpeciationConfig   `yaml:"speciation"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	Stagnation   StagnationConfig   `yaml:"stagnation"`
}

// NeatConfig holds run-level parameters.
type NeatConfig struct {
	InitialPopulationSize     int     `ini:"initial_population_size" yaml:"initial_population_size" validate:"gt=0"`
	BestGenomesLibraryMaxSize int     `ini:"best_genomes_library_max_size" yaml:"best_genomes_library_max_size" validate:"gt=0"`
	FitnessThreshold          float64 `ini:"fitness_threshold" yaml:"fitness_threshold"` // 0 disables the check in RunGeneration
	Strategy                  string  `ini:"strategy" yaml:"strategy" validate:"oneof=generational steady_state"`
	Seed                      int64   `ini:"seed" yaml:"seed"` // 0 seeds from the clock
}

// GenomeConfig holds the topology shape and the compatibility distance coefficients.
type GenomeConfig struct {
	NumberOfInputs  int     `ini:"number_of_inputs" yaml:"number_of_inputs"`
	NumberOfOutputs int     `ini:"number_of_outputs" yaml:"number_of_outputs"`
	DistanceCoefC1  float64 `ini:"distance_coef_c1" yaml:"distance_coef_c1" validate:"gte=0"` // excess genes
	DistanceCoefC2  float64 `ini:"distance_coef_c2" yaml:"distance_coef_c2" validate:"gte=0"` // disjoint genes
	DistanceCoefC3  float64 `ini:"distance_coef_c3" yaml:"distance_coef_c3" validate:"gte=0"` // average weight difference
	Activation      string  `ini:"activation" yaml:"activation" validate:"activation"`
}

// MutationConfig holds the roulette weights of the mutation operators and the
// perturbation magnitudes.
type MutationConfig struct {
	AddLinkWeight      int `ini:"mutation_add_link_weight" yaml:"mutation_add_link_weight" validate:"gte=0"`
	AddNeuronWeight    int `ini:"mutation_add_neuron_weight" yaml:"mutation_add_neuron_weight" validate:"gte=0"`
	AllWeightsWeight   int `ini:"mutation_all_weights_weight" yaml:"mutation_all_weights_weight" validate:"gte=0"`
	OneWeightWeight    int `ini:"mutation_one_weight_weight" yaml:"mutation_one_weight_weight" validate:"gte=0"`
	ResetWeightsWeight int `ini:"mutation_reset_weights_weight" yaml:"mutation_reset_weights_weight" validate:"gte=0"`
	RemoveGeneWeight   int `ini:"mutation_remove_gene_weight" yaml:"mutation_remove_gene_weight" validate:"gte=0"`
	ReenableGeneWeight int `ini:"mutation_reenable_gene_weight" yaml:"mutation_reenable_gene_weight" validate:"gte=0"`
	ToggleEnableWeight int `ini:"mutation_toggle_enable_weight" yaml:"mutation_toggle_enable_weight" validate:"gte=0"`

	InitialWeightPerturbation float64 `ini:"initial_weight_perturbation" yaml:"initial_weight_perturbation" validate:"gte=0"`
	WeightMutationPower       float64 `ini:"weight_mutation_power" yaml:"weight_mutation_power" validate:"gte=0"`
}

// Sum returns the total of all mutation weights.
func (mc MutationConfig) Sum() int {
	return mc.AddLinkWeight + mc.AddNeuronWeight + mc.AllWeightsWeight + mc.OneWeightWeight +
		mc.ResetWeightsWeight + mc.RemoveGeneWeight + mc.ReenableGeneWeight + mc.ToggleEnableWeight
}

// CrossoverConfig holds the roulette weights of the crossover strategies.
type CrossoverConfig struct {
	MultipointAvgWeight  int     `ini:"crossover_multipoint_avg_weight" yaml:"crossover_multipoint_avg_weight" validate:"gte=0"`
	MultipointBestWeight int     `ini:"crossover_multipoint_best_weight" yaml:"crossover_multipoint_best_weight" validate:"gte=0"`
	MultipointRndWeight  int     `ini:"crossover_multipoint_rnd_weight" yaml:"crossover_multipoint_rnd_weight" validate:"gte=0"`
	Rate                 float64 `ini:"crossover_rate" yaml:"crossover_rate" validate:"gte=0,lte=1"` // Chance an offspring is bred by crossover
}

// Sum returns the total of all crossover weights.
func (cc CrossoverConfig) Sum() int {
	return cc.MultipointAvgWeight + cc.MultipointBestWeight + cc.MultipointRndWeight
}

// SpeciationConfig holds parameters related to speciation.
type SpeciationConfig struct {
	CompatibilityThreshold        float64 `ini:"compatibility_threshold" yaml:"compatibility_threshold" validate:"gte=0"`
	DynamicCompatibilityThreshold bool    `ini:"dynamic_compatibility_threshold" yaml:"dynamic_compatibility_threshold"`
	TargetSpeciesCount            int     `ini:"target_species_count" yaml:"target_species_count" validate:"gte=0"`
	CompatibilityThresholdStep    float64 `ini:"compatibility_threshold_step" yaml:"compatibility_threshold_step" validate:"gte=0"`
}

// ReproductionConfig holds parameters related to reproduction.
type ReproductionConfig struct {
	Elitism           int     `ini:"elitism" yaml:"elitism" validate:"gte=0"`
	SurvivalThreshold float64 `ini:"survival_threshold" yaml:"survival_threshold" validate:"gte=0,lte=1"`
	MinSpeciesSize    int     `ini:"min_species_size" yaml:"min_species_size" validate:"gt=0"`
}

// StagnationConfig holds parameters related to species stagnation.
type StagnationConfig struct {
	SpeciesFitnessFunc string `ini:"species_fitness_func" yaml:"species_fitness_func" validate:"statfunc"`
	MaxStagnation      int    `ini:"max_stagnation" yaml:"max_stagnation" validate:"gt=0"`
	SpeciesElitism     int    `ini:"species_elitism" yaml:"species_elitism" validate:"gte=0"`
}

// DefaultConfig returns a configuration that works for small problems such as XOR.
func DefaultConfig(numInputs, numOutputs int) *Config {
	return &Config{
		Neat: NeatConfig{
			InitialPopulationSize:     150,
			BestGenomesLibraryMaxSize: 10,
			Strategy:                  StrategyGenerational,
		},
		Genome: GenomeConfig{
			NumberOfInputs:  numInputs,
			NumberOfOutputs: numOutputs,
			DistanceCoefC1:  1.0,
			DistanceCoefC2:  1.0,
			DistanceCoefC3:  0.4,
			Activation:      "sigmoid",
		},
		Mutation: MutationConfig{
			AddLinkWeight:             8,
			AddNeuronWeight:           3,
			AllWeightsWeight:          10,
			OneWeightWeight:           25,
			ResetWeightsWeight:        1,
			RemoveGeneWeight:          1,
			ReenableGeneWeight:        2,
			ToggleEnableWeight:        1,
			InitialWeightPerturbation: 1.0,
			WeightMutationPower:       0.5,
		},
		Crossover: CrossoverConfig{
			MultipointAvgWeight:  1,
			MultipointBestWeight: 1,
			MultipointRndWeight:  1,
			Rate:                 0.75,
		},
		Speciation: SpeciationConfig{
			CompatibilityThreshold:     3.0,
			TargetSpeciesCount:         10,
			CompatibilityThresholdStep: 0.3,
		},
		Reproduction: ReproductionConfig{
			Elitism:           1,
			SurvivalThreshold: 0.2,
			MinSpeciesSize:    1,
		},
		Stagnation: StagnationConfig{
			SpeciesFitnessFunc: "max",
			MaxStagnation:      15,
			SpeciesElitism:     1,
		},
	}
}

// LoadConfig loads configuration parameters from an INI file, or from a YAML
// file when the path ends in .yaml or .yml.
func LoadConfig(filePath string) (*Config, error) {
	var config *Config
	var err error
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		config, err = loadYAMLConfig(filePath)
	default:
		config, err = loadINIConfig(filePath)
	}
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadINIConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := &Config{}
	sections := []struct {
		name   string
		target any
	}{
		{"NEAT", &config.Neat},
		{"Genome", &config.Genome},
		{"Mutation", &config.Mutation},
		{"Crossover", &config.Crossover},
		{"Speciation", &config.Speciation},
		{"Reproduction", &config.Reproduction},
		{"Stagnation", &config.Stagnation},
	}
	for _, s := range sections {
		if err := cfg.Section(s.name).MapTo(s.target); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}

	config.Neat.Strategy = cleanIniString(config.Neat.Strategy)
	config.Genome.Activation = cleanIniString(config.Genome.Activation)
	config.Stagnation.SpeciesFitnessFunc = cleanIniString(config.Stagnation.SpeciesFitnessFunc)
	return config, nil
}

func loadYAMLConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filePath, err)
	}
	return config, nil
}

// WriteYAML saves the configuration as YAML, e.g. next to a checkpoint.
func (c *Config) WriteYAML(filePath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file '%s': %w", filePath, err)
	}
	return nil
}

// applyDefaults fills in values that were left empty.
func (c *Config) applyDefaults() {
	if c.Neat.Strategy == "" {
		c.Neat.Strategy = StrategyGenerational
	}
	if c.Genome.Activation == "" {
		c.Genome.Activation = "sigmoid"
	}
	if c.Reproduction.MinSpeciesSize == 0 {
		c.Reproduction.MinSpeciesSize = 1
	}
	if c.Reproduction.SurvivalThreshold == 0 {
		c.Reproduction.SurvivalThreshold = 0.2
	}
	if c.Stagnation.SpeciesFitnessFunc == "" {
		c.Stagnation.SpeciesFitnessFunc = "mean"
	}
	if c.Stagnation.MaxStagnation == 0 {
		c.Stagnation.MaxStagnation = 15
	}
	if c.Speciation.CompatibilityThresholdStep == 0 {
		c.Speciation.CompatibilityThresholdStep = 0.3
	}
}

// configValidate checks the struct tags of Config.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("activation", func(fl validator.FieldLevel) bool {
		_, err := GetActivation(fl.Field().String())
		return err == nil
	})
	_ = configValidate.RegisterValidation("statfunc", func(fl validator.FieldLevel) bool {
		_, ok := StatFunctions[strings.ToLower(fl.Field().String())]
		return ok
	})
}

// Validate checks the configuration for values a run cannot start with.
// A missing input or output is reported with ErrNoInputs or ErrNoOutputs.
func (c *Config) Validate() error {
	if c.Genome.NumberOfInputs <= 0 {
		return ErrNoInputs
	}
	if c.Genome.NumberOfOutputs <= 0 {
		return ErrNoOutputs
	}
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.Mutation.Sum() == 0 {
		return fmt.Errorf("config error: at least one mutation weight must be positive")
	}
	if c.Crossover.Sum() == 0 {
		return fmt.Errorf("config error: at least one crossover weight must be positive")
	}
	if c.Speciation.DynamicCompatibilityThreshold && c.Speciation.CompatibilityThresholdStep <= 0 {
		return fmt.Errorf("config error: compatibility_threshold_step must be positive")
	}
	return nil
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
