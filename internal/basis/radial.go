package basis

// Cutoff returns fc(r) = (1 - (r/rc)^2)^4 and its radial derivative.
//
// Both vanish for r >= rc, so a neighbor crossing the cutoff sphere enters
// and leaves the descriptor continuously with a continuous force.
func Cutoff(r, rc float64) (fc, dfc float64) {
	if r >= rc {
		return 0, 0
	}
	x := r / rc
	w := 1 - x*x
	w3 := w * w * w
	return w3 * w, -8 * x / rc * w3
}

// Chebyshev fills t with T_0(s)..T_{len(t)-1}(s) using the three-term recursion.
func Chebyshev(s float64, t []float64) {
	if len(t) == 0 {
		return
	}
	t[0] = 1
	if len(t) == 1 {
		return
	}
	t[1] = s
	for n := 2; n < len(t); n++ {
		t[n] = 2*s*t[n-1] - t[n-2]
	}
}

// ChebyshevDeriv fills t with T_n(s) and dt with dT_n/ds.
//
// The derivative comes from the second-kind companion recursion:
// dT_n/ds = n U_{n-1}(s).
func ChebyshevDeriv(s float64, t, dt []float64) {
	if len(dt) != len(t) {
		panic("basis.ChebyshevDeriv: length mismatch")
	}
	Chebyshev(s, t)
	if len(t) == 0 {
		return
	}
	dt[0] = 0
	// uPrev = U_{n-2}, uCur = U_{n-1}; U_{-1} = 0.
	uPrev, uCur := 0.0, 1.0
	for n := 1; n < len(t); n++ {
		dt[n] = float64(n) * uCur
		uPrev, uCur = uCur, 2*s*uCur-uPrev
	}
}
