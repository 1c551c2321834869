package api

import "time"

// Config controls auth API behavior.
type Config struct {
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool
	MaxBodyBytes int64

	// LoginIPMax failed logins from one IP within LoginIPWindow block
	// further attempts. Only enforced when a FailureCounter is wired.
	LoginIPMax    int
	LoginIPWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:  1 << 20, // 1 MiB
		LoginIPMax:    20,
		LoginIPWindow: 5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.LoginIPWindow <= 0 {
		c.LoginIPWindow = d.LoginIPWindow
	}
	return c
}
