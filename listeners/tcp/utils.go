package tcp

import (
	"net"
	"strconv"

	"github.com/achetronic/forwarder/api"
)

// getTCPAddress return a pointer to an object TCPAddr built from strings
func getTCPAddress(host string, port int) (address *net.TCPAddr, err error) {
	address, err = net.ResolveTCPAddr(ProtocolTcp, net.JoinHostPort(host, strconv.Itoa(port)))
	return address, err
}

// getBackendAddress return the host:port form of the backend, resolved on every dial
func getBackendAddress(backend *api.Backend) string {
	return net.JoinHostPort(backend.Host, strconv.Itoa(backend.Port))
}
