package aegis

import "github.com/xraph/aegis/id"

// ID is the identifier type for all Aegis entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
