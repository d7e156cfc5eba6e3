package core

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// maxSamples bounds the number of mining runs kept for statistics.
const maxSamples = 1000

// MiningSummary describes the proof searches performed by a node.
type MiningSummary struct {
	Blocks           int           `json:"blocks"`
	MeanIterations   float64       `json:"meanIterations"`
	StdDevIterations float64       `json:"stdDevIterations"`
	MaxIterations    float64       `json:"maxIterations"`
	MeanDuration     time.Duration `json:"meanDuration"`
}

// MiningStats records proof search samples.
type MiningStats struct {
	mutex      sync.Mutex
	iterations []float64
	durations  []float64
}

func NewMiningStats() *MiningStats {
	return &MiningStats{}
}

// Record adds one completed search. proof is the winning proof, so proof+1
// candidates were hashed.
func (s *MiningStats) Record(proof int, d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.iterations = append(s.iterations, float64(proof+1))
	s.durations = append(s.durations, float64(d))
	if len(s.iterations) > maxSamples {
		s.iterations = s.iterations[1:]
		s.durations = s.durations[1:]
	}
}

func (s *MiningStats) Summary() MiningSummary {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	sum := MiningSummary{Blocks: len(s.iterations)}
	if sum.Blocks == 0 {
		return sum
	}
	sum.MeanIterations, sum.StdDevIterations = stat.MeanStdDev(s.iterations, nil)
	if sum.Blocks == 1 {
		sum.StdDevIterations = 0
	}
	sum.MaxIterations = floats.Max(s.iterations)
	sum.MeanDuration = time.Duration(stat.Mean(s.durations, nil))
	return sum
}
