package api

import (
	"time"
)

// Listener represents the local endpoint which is receiving the external traffic to forward it to the backend
type Listener struct {
	Protocol Protocol `yaml:"protocol,omitempty"`
	Host     string   `yaml:"host,omitempty"`
	Port     int      `yaml:"port"`
}

// Backend represents the remote server the traffic is forwarded to
type Backend struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Dump represents the configuration of the formatted hex/ASCII data dump
type Dump struct {
	Enabled bool `yaml:"enabled,omitempty"`
	Width   int  `yaml:"width,omitempty"`

	// Output is the path of a file to write the dump blocks into. Standard output when empty
	Output string `yaml:"output,omitempty"`
}

// Forwarder represents a group composed by all the pieces needed to forward the traffic from the listener
// to the backend
type Forwarder struct {
	Listener Listener `yaml:"listener"`
	Backend  Backend  `yaml:"backend"`
	Dump     Dump     `yaml:"dump,omitempty"`

	// PollInterval bounds every accept/receive wait, so the shutdown request is observed promptly
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`

	// DialTimeout bounds the connection establishment towards the backend
	DialTimeout time.Duration `yaml:"dialTimeout,omitempty"`

	// MaxSessions caps the number of concurrent sessions. Zero means unbounded
	MaxSessions int `yaml:"maxSessions,omitempty"`
}

// Config represents the configuration manifest to set parameters for the forwarder
type Config struct {
	ApiVersion string `yaml:"apiVersion,omitempty"`
	Kind       string `yaml:"kind,omitempty"`
	Metadata   struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec Forwarder `yaml:"spec"`
}
