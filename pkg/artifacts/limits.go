package artifacts

// Limits defines size limits for Hawk header parsing to prevent DoS attacks.
// Zero value means no limit.
type Limits struct {
	// MaxHeaderLength is the maximum length of the parameter string,
	// scheme token included.
	// Default: 4096
	MaxHeaderLength int

	// MaxValueLength is the maximum length of a single quoted value.
	// Default: 1024
	MaxValueLength int
}

// DefaultLimits returns limits suitable for production. They comfortably fit
// a SHA-512 mac and hash plus a generous ext.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderLength: 4096,
		MaxValueLength:  1024,
	}
}

// NoLimits returns a Limits struct with all limits disabled.
// Use with caution - only for trusted input.
func NoLimits() Limits {
	return Limits{}
}
