// Package healthcheck runs the active health checking loop: one
// periodic prober per backend, flipping health flags on consecutive
// success or failure streaks.
package healthcheck
