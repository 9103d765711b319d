package robust

import "math"

// Norm is a robust criterion function used by iteratively reweighted least
// squares.
type Norm interface {
	// Rho is the objective contribution of a standardized residual.
	Rho(z float64) float64
	// Weight is the IRLS weight of a standardized residual.
	Weight(z float64) float64
}

// DefaultTukeyC is the tuning constant giving 95% efficiency at the normal.
const DefaultTukeyC = 4.685

// TukeyBiweight is a redescending norm: residuals beyond C standardized
// units get zero weight.
type TukeyBiweight struct {
	C float64
}

// NewTukeyBiweight returns the biweight norm with the default tuning constant.
func NewTukeyBiweight() TukeyBiweight {
	return TukeyBiweight{C: DefaultTukeyC}
}

func (t TukeyBiweight) Rho(z float64) float64 {
	c2 := t.C * t.C
	if math.Abs(z) > t.C {
		return c2 / 6
	}
	u := 1 - (z*z)/c2
	return c2 / 6 * (1 - u*u*u)
}

func (t TukeyBiweight) Weight(z float64) float64 {
	if math.Abs(z) > t.C {
		return 0
	}
	u := 1 - (z/t.C)*(z/t.C)
	return u * u
}
