package solver

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(f Func, x []float64, t, dt float64) []float64 {
	dx := f(t, x)
	result := make([]float64, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
