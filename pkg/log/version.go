package log

// Version of the log module. 2.0.0 replaced Any/Int64/Float64 with Stringer.
const (
	Version              = "2.0.0"
	MinCompatibleVersion = "2.0.0"
)
