// Package geodetic implements the ECEF -> geodetic conversion specified in
// section 4.6 ("ECEF -> geodetic (Olson 1996)") of the design specification.
// It is a direct port of ground-control/src/algo/util.rs, itself derived from
// https://github.com/planet36/ecef-geodetic (olson_1996.c), based on the
// closed-form inversion in https://ieeexplore.ieee.org/document/481290.
package geodetic

import "math"

// WGS-84 ellipsoid parameters and Olson's precomputed helpers, as given in
// section 4.6 and ground-control/src/algo/util.rs.
const (
	a  = 6378137.0             // semi-major axis, meters
	e2 = 6.6943799901377997e-3 // first eccentricity squared
	a1 = 4.2697672707157535e+4 // a*e2
	a2 = 1.8230912546075455e+9 // a1*a1
	a3 = 1.4291722289812413e+2 // a1*e2/2
	a4 = 4.5577281365188637e+9 // (5/2)*a2
	a5 = 4.2840589930055659e+4 // a1 + a3
	a6 = 9.9330562000986220e-1 // 1 - e2
)

// ECEFToLatLonAlt converts ECEF coordinates in meters to geodetic latitude
// (radians), longitude (radians), and height (meters), per section 4.6.
// Points within 100km of Earth's center return the sentinel (0, 0, -1e7).
func ECEFToLatLonAlt(x, y, z float64) (lat, lon, height float64) {
	zp := math.Abs(z)
	w2 := x*x + y*y
	w := math.Sqrt(w2)
	z2 := z * z
	r2 := w2 + z2
	r := math.Sqrt(r2)

	if r < 100000.0 {
		return 0.0, 0.0, -1.0e7
	}

	lon = math.Atan2(y, x)
	s2 := z2 / r2
	c2 := w2 / r2

	u := a2 / r
	v := a3 - a4/r

	var s, c, ss float64
	if c2 > 0.3 {
		s = (zp / r) * (1.0 + c2*(a1+u+s2*v)/r)
		ss = s * s
		c = math.Sqrt(1.0 - ss)
	} else {
		c = (w / r) * (1.0 - s2*(a5-u-c2*v)/r)
		ss = 1.0 - c*c
		s = math.Sqrt(ss)
	}

	if c2 > 0.3 {
		lat = math.Asin(s)
	} else {
		lat = math.Acos(c)
	}

	g := 1.0 - e2*ss
	rg := a / math.Sqrt(g)
	rf := a6 * rg
	u = w - rg*c
	v = zp - rf*s
	f := c*u + s*v
	m := c*v - s*u
	p := m / (rf/g + f)

	lat += p
	height = f + m*p/2.0

	if z < 0.0 {
		lat = -lat
	}

	return lat, lon, height
}
