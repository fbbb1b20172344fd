package domain

// DerivedSignals holds the analytical values computed from one snapshot.
// They are recomputed from scratch every cycle; persistence of history is
// a storage concern, not part of this type.
type DerivedSignals struct {
	XGHome       float64
	XGAway       float64
	MomentumHome float64
	MomentumAway float64
	// Pressure values are in [0, 1].
	PressureHome float64
	PressureAway float64
	// Probabilities sum to 1.
	WinProbHome float64
	WinProbAway float64
	DrawProb    float64
}

// XG returns the expected-goals value for a side.
func (d DerivedSignals) XG(side Side) float64 {
	if side == SideHome {
		return d.XGHome
	}
	return d.XGAway
}

// Momentum returns the momentum score for a side.
func (d DerivedSignals) Momentum(side Side) float64 {
	if side == SideHome {
		return d.MomentumHome
	}
	return d.MomentumAway
}

// Pressure returns the pressure index for a side.
func (d DerivedSignals) Pressure(side Side) float64 {
	if side == SideHome {
		return d.PressureHome
	}
	return d.PressureAway
}

// WinProb returns the win probability for a side.
func (d DerivedSignals) WinProb(side Side) float64 {
	if side == SideHome {
		return d.WinProbHome
	}
	return d.WinProbAway
}
