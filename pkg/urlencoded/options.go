package urlencoded

// config holds decoder configuration.
type config struct {
	lowercaseHex bool
	maxLength    int
}

// Option configures Decode and DecodeString.
type Option func(*config)

// LowercaseHex accepts lowercase hex digits ('a' through 'f') in '%' escapes.
//
// Default: false (only '0'-'9' and 'A'-'F' are accepted; "%2f" fails with
// ErrInvalidHex)
func LowercaseHex() Option {
	return func(c *config) {
		c.lowercaseHex = true
	}
}

// MaxLength sets the maximum input length in bytes. Longer inputs fail with
// ErrTooLarge before decoding starts.
//
// Default: 0 (no limit)
func MaxLength(n int) Option {
	return func(c *config) {
		c.maxLength = n
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
