// README: Common identifier and sector types shared across modules.
package types

// ID is an opaque entity identifier (UUID on ingestion, but callers never parse it).
type ID string

// Sector names a physical production station (e.g. "dough", "toppings", "fry", "bar").
// The oven is a shared stage, not a sector: items from any sector may pass through it.
type Sector string
