// Package geo provides great-circle distance and bearing math on WGS84
// coordinates, plus the coordinate validation rules used at every ingress
// point of the library.
//
// Distances are returned in meters rounded to 2 decimal places so repeated
// computations over jittering float input produce stable display values.
package geo
