// Package neat provides a Go implementation of the NeuroEvolution of Augmenting Topologies (NEAT) algorithm.
//
// NEAT is a genetic algorithm for the generation of evolving artificial neural networks.
// It alters both the weighting parameters and structures of networks, attempting to find
// a balance between the fitness of evolved solutions and their diversity.
//
// Genes carry historical markings (innovation numbers) handed out by a
// run-wide innovation pool, so that genomes of the same run can be aligned for
// crossover and compared for speciation.
//
// Basic usage:
//
//	config, err := neat.LoadConfig("path/to/config.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	engine, err := neat.NewEngine(config, neat.WithSeed(42))
//	if err != nil {
//		log.Fatalf("Error creating engine: %v", err)
//	}
//	if err := engine.Init(); err != nil {
//		log.Fatalf("Error initializing engine: %v", err)
//	}
//
//	for i := 0; i < 100; i++ {
//		winner, err := engine.RunGeneration(evalGenomes)
//		if err != nil {
//			log.Fatalf("Error running generation: %v", err)
//		}
//		if winner != nil {
//			fmt.Println("Solution found!")
//			break
//		}
//	}
//
// Networks are built from genomes with the nn subpackage:
//
//	net := nn.FromGenome(genome, engine.Activation())
//	outputs, err := net.Activate(inputs)
package neat
