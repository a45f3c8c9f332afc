// Package crs classifies raw coordinate pairs by numeric range and converts
// the projected local system (SVY21, EPSG:3414) to WGS84 longitude/latitude.
// All functions are pure and stateless.
package crs

import "math"

// System is the detected coordinate reference system of a raw point.
type System string

const (
	WGS84   System = "wgs84"
	SVY21   System = "svy21"
	Unknown System = "unknown"
)

// Detection ranges. WGS84 points in this deployment's territory fall in a
// narrow lon/lat window; SVY21 eastings/northings are five to six digit
// meter offsets from the false origin.
const (
	wgs84LonMin, wgs84LonMax = 103.0, 105.0
	wgs84LatMin, wgs84LatMax = 1.0, 2.0
	svy21Min, svy21Max       = 5000.0, 200000.0
)

// Detect classifies a raw (x, y) pair purely by numeric range. Anything
// outside both windows is Unknown and must be passed through unchanged by
// the caller, flagged in diagnostics rather than dropped.
func Detect(x, y float64) System {
	if x >= wgs84LonMin && x <= wgs84LonMax && y >= wgs84LatMin && y <= wgs84LatMax {
		return WGS84
	}
	if x >= svy21Min && x <= svy21Max && y >= svy21Min && y <= svy21Max {
		return SVY21
	}
	return Unknown
}

// ToWGS84 converts a raw (x, y) pair to (lon, lat). WGS84 and Unknown pass
// through unchanged; SVY21 eastings/northings go through the inverse
// Transverse Mercator projection.
func ToWGS84(x, y float64) (lon, lat float64, system System) {
	system = Detect(x, y)
	if system != SVY21 {
		return x, y, system
	}
	lon, lat = svy21ToWGS84(x, y)
	return lon, lat, system
}

// SVY21 projection constants: WGS84 ellipsoid, origin 1°22'N 103°50'E,
// scale factor 1, false easting/northing per EPSG:3414.
const (
	ellA = 6378137.0
	ellF = 1.0 / 298.257223563

	originLatDeg = 1.366666
	originLonDeg = 103.833333
	falseNorth   = 38744.572
	falseEast    = 28001.642
	scaleK       = 1.0
)

var (
	ellB = ellA * (1 - ellF)
	e2   = 2*ellF - ellF*ellF
	e4   = e2 * e2
	e6   = e4 * e2

	mA0 = 1 - e2/4 - 3*e4/64 - 5*e6/256
	mA2 = 3.0 / 8.0 * (e2 + e4/4 + 15*e6/128)
	mA4 = 15.0 / 256.0 * (e4 + 3*e6/4)
	mA6 = 35.0 * e6 / 3072.0

	n  = (ellA - ellB) / (ellA + ellB)
	n2 = n * n
	n3 = n2 * n
	n4 = n2 * n2
	// G is the mean length of an arc of one degree of the meridian.
	meridianG = ellA * (1 - n) * (1 - n2) * (1 + 9*n2/4 + 225*n4/64) * (math.Pi / 180)
)

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// meridianArc returns the meridian distance from the equator to latRad.
func meridianArc(latRad float64) float64 {
	return ellA * (mA0*latRad -
		mA2*math.Sin(2*latRad) +
		mA4*math.Sin(4*latRad) -
		mA6*math.Sin(6*latRad))
}

// radii returns the radius of curvature in the prime vertical (nu), the
// meridian radius of curvature (rho), and their ratio psi at sin^2(lat).
func radii(sin2Lat float64) (nu, rho, psi float64) {
	nu = ellA / math.Sqrt(1-e2*sin2Lat)
	rho = ellA * (1 - e2) / math.Pow(1-e2*sin2Lat, 1.5)
	return nu, rho, nu / rho
}

// svy21ToWGS84 applies the inverse Transverse Mercator projection
// (Redfearn series) from SVY21 easting/northing to lon/lat degrees.
func svy21ToWGS84(east, north float64) (lon, lat float64) {
	nPrime := north - falseNorth
	mOrigin := meridianArc(deg2rad(originLatDeg))
	mPrime := mOrigin + nPrime/scaleK
	sigma := mPrime * math.Pi / (180 * meridianG)

	// Footpoint latitude.
	latP := sigma +
		(3*n/2-27*n3/32)*math.Sin(2*sigma) +
		(21*n2/16-55*n4/32)*math.Sin(4*sigma) +
		(151*n3/96)*math.Sin(6*sigma) +
		(1097*n4/512)*math.Sin(8*sigma)

	sinLatP := math.Sin(latP)
	sin2LatP := sinLatP * sinLatP
	nuP, rhoP, psiP := radii(sin2LatP)
	tP := math.Tan(latP)

	t2 := tP * tP
	t4 := t2 * t2
	t6 := t4 * t2
	psi2 := psiP * psiP
	psi3 := psi2 * psiP
	psi4 := psi2 * psi2

	ePrime := east - falseEast
	x := ePrime / (scaleK * nuP)
	x2 := x * x
	x3 := x2 * x
	x5 := x3 * x2
	x7 := x5 * x2

	latFactor := tP / (scaleK * rhoP)
	latTerm1 := latFactor * ePrime * x / 2
	latTerm2 := latFactor * ePrime * x3 / 24 *
		(-4*psi2 + 9*psiP*(1-t2) + 12*t2)
	latTerm3 := latFactor * ePrime * x5 / 720 *
		(8*psi4*(11-24*t2) - 12*psi3*(21-71*t2) +
			15*psi2*(15-98*t2+15*t4) + 180*psiP*(5*t2-3*t4) + 360*t4)
	latTerm4 := latFactor * ePrime * x7 / 40320 *
		(1385 - 3633*t2 + 4095*t4 + 1575*t6)

	latRad := latP - latTerm1 + latTerm2 - latTerm3 + latTerm4

	secLatP := 1 / math.Cos(latP)
	lonTerm1 := x * secLatP
	lonTerm2 := x3 * secLatP / 6 * (psiP + 2*t2)
	lonTerm3 := x5 * secLatP / 120 *
		(-4*psi3*(1-6*t2) + psi2*(9-68*t2) + 72*psiP*t2 + 24*t4)
	lonTerm4 := x7 * secLatP / 5040 *
		(61 + 662*t2 + 1320*t4 + 720*t6)

	lonRad := deg2rad(originLonDeg) + lonTerm1 - lonTerm2 + lonTerm3 - lonTerm4

	return rad2deg(lonRad), rad2deg(latRad)
}

// FromWGS84 applies the forward SVY21 projection. The pipeline never needs
// it, but it anchors round-trip verification of the inverse series.
func FromWGS84(lon, lat float64) (east, north float64) {
	latRad := deg2rad(lat)
	sinLat := math.Sin(latRad)
	cosLat := math.Cos(latRad)
	nu, _, psi := radii(sinLat * sinLat)
	t := math.Tan(latRad)

	t2 := t * t
	t4 := t2 * t2
	t6 := t4 * t2
	psi2 := psi * psi
	psi3 := psi2 * psi
	psi4 := psi2 * psi2

	w := deg2rad(lon - originLonDeg)
	w2 := w * w
	w4 := w2 * w2
	w6 := w4 * w2
	w8 := w4 * w4

	cos2 := cosLat * cosLat
	cos3 := cos2 * cosLat
	cos4 := cos2 * cos2
	cos5 := cos4 * cosLat
	cos6 := cos4 * cos2
	cos7 := cos6 * cosLat

	m := meridianArc(latRad)
	mOrigin := meridianArc(deg2rad(originLatDeg))

	nTerm1 := w2 / 2 * nu * sinLat * cosLat
	nTerm2 := w4 / 24 * nu * sinLat * cos3 * (4*psi2 + psi - t2)
	nTerm3 := w6 / 720 * nu * sinLat * cos5 *
		(8*psi4*(11-24*t2) - 28*psi3*(1-6*t2) +
			psi2*(1-32*t2) - psi*2*t2 + t4)
	nTerm4 := w8 / 40320 * nu * sinLat * cos7 *
		(1385 - 3111*t2 + 543*t4 - t6)
	north = falseNorth + scaleK*(m-mOrigin+nTerm1+nTerm2+nTerm3+nTerm4)

	eTerm1 := w2 / 6 * cos2 * (psi - t2)
	eTerm2 := w4 / 120 * cos4 *
		(4*psi3*(1-6*t2) + psi2*(1+8*t2) - psi*2*t2 + t4)
	eTerm3 := w6 / 5040 * cos6 * (61 - 479*t2 + 179*t4 - t6)
	east = falseEast + scaleK*nu*w*cosLat*(1+eTerm1+eTerm2+eTerm3)

	return east, north
}
