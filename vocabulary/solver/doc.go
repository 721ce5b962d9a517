// Package solver provides vocabulary predicates for solver descriptor entities.
//
// A descriptor entity names a solver, carries its problem description, and
// holds the three code regions (input parameters, cost function, algorithm
// logic) together with the provenance of the source they came from.
//
// Import this package to auto-register predicates:
//
//	import _ "github.com/c360studio/semsolver/vocabulary/solver"
package solver
