package utils

import (
	"errors"
	"math/rand"
	"net"

	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/util"
)

var (
	ErrPort = errors.New("no free port in range")
)

// ListenUDPInPortRange binds laddr.IP on a port between portMin and portMax,
// starting at a random port and wrapping around. A non-zero laddr.Port or an
// empty range binds directly. laddr is updated with the bound address.
func ListenUDPInPortRange(portMin, portMax uint16, laddr *net.UDPAddr) (*net.UDPConn, error) {
	if (laddr.Port != 0) || ((portMin == 0) && (portMax == 0)) {
		conn, err := net.ListenUDP("udp", laddr)
		if err == nil {
			*laddr = *conn.LocalAddr().(*net.UDPAddr)
		}
		return conn, err
	}
	i, j := int(portMin), int(portMax)
	if i == 0 {
		i = 1
	}
	if j == 0 {
		j = 0xFFFF
	}
	if i > j {
		return nil, ErrPort
	}
	portStart := rand.Intn(j-i+1) + i
	portCurrent := portStart
	for {
		*laddr = net.UDPAddr{IP: laddr.IP, Port: portCurrent}
		c, e := net.ListenUDP("udp", laddr)
		if e == nil {
			return c, nil
		}
		portCurrent++
		if portCurrent > j {
			portCurrent = i
		}
		if portCurrent == portStart {
			break
		}
	}
	return nil, ErrPort
}

// ResolveHost returns host, or the first non-loopback address of this machine
// when host is empty or unspecified.
func ResolveHost(host string, logger log.Logger) string {
	if host != "" && host != "0.0.0.0" && host != "::" {
		return host
	}
	ip, err := util.ResolveSelfIP()
	if err != nil {
		logger.Warnf("resolve self ip: %v, using loopback", err)
		return "127.0.0.1"
	}
	return ip.String()
}
