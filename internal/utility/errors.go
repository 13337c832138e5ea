package utility

import "errors"

var errTrailingData = errors.New("unexpected data after JSON object")
