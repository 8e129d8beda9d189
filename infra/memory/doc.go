// Package memory recycles hot-path objects. The engine allocates every
// order from a Pool and hands it back once the order leaves all indices.
package memory
