package api

import (
	"strings"
)

// Protocol represents the kind of IP traffic the forwarder relays
type Protocol string

const (
	ProtocolTCP Protocol = "TCP"
	ProtocolUDP Protocol = "UDP"
)

// ParseProtocol returns UDP when the value matches it ignoring case, TCP otherwise
func ParseProtocol(value string) Protocol {
	if strings.EqualFold(strings.TrimSpace(value), string(ProtocolUDP)) {
		return ProtocolUDP
	}
	return ProtocolTCP
}

// UnmarshalYAML makes the protocol field of the manifests case-insensitive
func (p *Protocol) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*p = ParseProtocol(raw)
	return nil
}

func (p Protocol) String() string {
	if p == "" {
		return string(ProtocolTCP)
	}
	return string(p)
}
