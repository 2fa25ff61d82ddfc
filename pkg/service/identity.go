package service

import (
	"net"
	"os"
)

// usernameEnvVars are probed in order for the local user's name.
var usernameEnvVars = []string{"USERNAME", "USER", "USERDOMAIN", "HOSTNAME", "DOMAINNAME"}

// LocalUsername determines the name the local user is announced under.
// The first non-empty environment variable from usernameEnvVars wins.
func LocalUsername() string {
	for _, key := range usernameEnvVars {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}

// ListenAddresses enumerates the addresses of all local network interfaces
// that are up. Link-local IPv6 addresses get their interface name appended
// as zone identifier so they are bindable.
func ListenAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return []string{"0.0.0.0"}
	}

	var addresses []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			s := ip.String()
			if ip.To4() == nil && ip.IsLinkLocalUnicast() {
				s += "%" + iface.Name
			}
			addresses = append(addresses, s)
		}
	}
	if len(addresses) == 0 {
		addresses = []string{"0.0.0.0"}
	}
	return addresses
}
