package neat

import (
	"fmt"
	"math"
)

// ActivationFunc maps a neuron's weighted input sum to its output.
type ActivationFunc func(x float64) float64

// ActivationFunctions maps function names to the actual activation functions.
// A run uses one of them for every neuron of every network it builds.
var ActivationFunctions = map[string]ActivationFunc{
	"sigmoid":  SteepenedSigmoid,
	"logistic": Logistic,
	"tanh":     Tanh,
	"relu":     ReLU,
	"identity": Identity,
	"clamped":  Clamped,
	"gaussian": Gaussian,
	"sine":     Sine,
}

// GetActivation retrieves an activation function by name.
func GetActivation(name string) (ActivationFunc, error) {
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s", name)
}

// SteepenedSigmoid is the logistic sigmoid with a 4.9 slope, as in the NEAT paper.
func SteepenedSigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-4.9*x))
}

// Logistic is the plain logistic sigmoid.
func Logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func Tanh(x float64) float64 {
	return math.Tanh(x)
}

func ReLU(x float64) float64 {
	return math.Max(0, x)
}

func Identity(x float64) float64 {
	return x
}

// Clamped clamps output between -1 and 1.
func Clamped(x float64) float64 {
	return clamp(x, -1.0, 1.0)
}

func Gaussian(x float64) float64 {
	return math.Exp(-x * x / 2.0)
}

func Sine(x float64) float64 {
	return math.Sin(x)
}
