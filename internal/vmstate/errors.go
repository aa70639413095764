package vmstate

import "errors"

// ErrNoParser is returned by DoCString/DoFile when no Parser has been
// installed via SetParser. Lexing/parsing is an external-collaborator
// concern; this package only defines the narrow interface it consumes.
var ErrNoParser = errors.New("vmstate: no parser installed")
