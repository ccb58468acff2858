package pushapi

import "errors"

var (
	ErrNoDispatcher         = errors.New("pushapi: dispatcher is required")
	ErrNoStorage            = errors.New("pushapi: storage is required")
	ErrMissingContentType   = errors.New("pushapi: missing content type")
	ErrUnsupportedMediaType = errors.New("pushapi: unsupported media type")
	ErrInvalidJSON          = errors.New("pushapi: invalid JSON")
	ErrInvalidQuery         = errors.New("pushapi: invalid query parameter")
)
