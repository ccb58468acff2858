package mongo

var (
	BuildFilter = buildFilter
	Normalize   = normalize
)
