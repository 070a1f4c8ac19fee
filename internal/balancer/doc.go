// Package balancer implements the backend selection policies: round
// robin, least connections, weighted random, random, and IP hash. A
// picker operates on the registry's healthy snapshot and never mutates
// backend state.
package balancer
