package script

import "errors"

// ErrNoDialogue is returned when a script has no spoken Host/Expert line.
var ErrNoDialogue = errors.New("script contains no Host/Expert dialogue")
