package frontend

import "errors"

var errUnsupportedOutbound = errors.New("frontend: outbound message has no frame encoding")
