package lang

import "errors"

// ErrInvalid indicates a language code the synthesis service does not accept.
var ErrInvalid = errors.New("invalid language code")
