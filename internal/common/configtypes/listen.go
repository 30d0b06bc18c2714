package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SplitListen returns host and port of a listen address.
// ":10080", "10080" and "127.0.0.1:10080" are accepted; an empty host means all interfaces.
func SplitListen(listen string) (string, int, error) {
	if listen == "" {
		return "", 0, fmt.Errorf("listen address is empty")
	}

	if !strings.Contains(listen, ":") {
		port, err := strconv.Atoi(listen)
		if err != nil {
			return "", 0, fmt.Errorf("invalid listen address: %s", listen)
		}
		return "", port, nil
	}

	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %s: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in listen address: %s", portStr)
	}
	return host, port, nil
}

// ValidateListen checks format and port range
func ValidateListen(listen string) error {
	_, port, err := SplitListen(listen)
	if err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// NormalizeListen returns listen in host:port form, as fasthttp expects
func NormalizeListen(listen string) (string, error) {
	host, port, err := SplitListen(listen)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
