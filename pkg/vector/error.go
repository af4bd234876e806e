package vector

import "errors"

// ErrEmbedding is returned when embedding generation fails.
var ErrEmbedding = errors.New("embedding failed")
