package poolapi

import "time"

// Config holds the admin HTTP surface's configuration settings.
type Config struct {
	Host string // Listen host address
	Port int    // Listen port

	ReadTimeout    time.Duration // HTTP read timeout
	WriteTimeout   time.Duration // HTTP write timeout
	IdleTimeout    time.Duration // HTTP idle timeout
	MaxRequestSize int64         // Maximum request body size in bytes

	EnableCORS     bool     // Enable CORS middleware
	AllowedOrigins []string // CORS allowed origins

	EnableLogging bool // Enable request logging

	EnableGraphQL   bool // Enable the /graphql read-only query endpoint
	EnableWebSocket bool // Enable the /_ws/events live event stream
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            9090,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		MaxRequestSize:  1 * 1024 * 1024, // 1MB
		EnableCORS:      true,
		AllowedOrigins:  []string{"*"},
		EnableLogging:   true,
		EnableGraphQL:   true,
		EnableWebSocket: true,
	}
}
