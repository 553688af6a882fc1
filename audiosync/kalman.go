package audiosync

// scalarKalman is a one-dimensional Kalman filter tracking a slave zone's
// delay estimate (spec.md §4.8 "kalman": process variance 1e-5, measurement
// variance 1e-1).
type scalarKalman struct {
	estimate    float64
	errorCovar  float64
	processVar  float64
	measureVar  float64
	initialized bool
}

func newScalarKalman() *scalarKalman {
	return &scalarKalman{
		errorCovar: 1,
		processVar: 1e-5,
		measureVar: 1e-1,
	}
}

// Update folds in a new delay measurement and returns the updated estimate.
func (k *scalarKalman) Update(measurement float64) float64 {
	if !k.initialized {
		k.estimate = measurement
		k.initialized = true
		return k.estimate
	}

	// Predict: state transition is identity, so only covariance grows.
	predictedCovar := k.errorCovar + k.processVar

	// Update.
	gain := predictedCovar / (predictedCovar + k.measureVar)
	k.estimate += gain * (measurement - k.estimate)
	k.errorCovar = (1 - gain) * predictedCovar
	return k.estimate
}
