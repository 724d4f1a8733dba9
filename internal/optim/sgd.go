package optim

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	lr       float64
	momentum float64
	velocity []float64
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{lr: config.LR, momentum: config.Momentum}
}

// Step performs a single optimization step.
func (s *SGD) Step(params, grads []float64) {
	checkStep("SGD", params, grads, len(s.velocity))
	if s.momentum == 0 {
		for i, g := range grads {
			params[i] -= s.lr * g
		}
		return
	}

	if s.velocity == nil {
		s.velocity = make([]float64, len(params))
	}
	for i, g := range grads {
		s.velocity[i] = s.momentum*s.velocity[i] + g
		params[i] -= s.lr * s.velocity[i]
	}
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 { return s.lr }

// SetLR changes the learning rate.
func (s *SGD) SetLR(lr float64) { s.lr = lr }
