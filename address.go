package proccom

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Address is an IPv4 TCP endpoint.
type Address struct {
	IP   [4]byte
	Port uint16
}

// Wire returns the address as laid out in sockaddr_in: sin_port followed by
// sin_addr, both in network byte order.
func (a Address) Wire() [6]byte {
	var b [6]byte
	binary.BigEndian.PutUint16(b[:2], a.Port)
	copy(b[2:], a.IP[:])
	return b
}

// AddrPort converts a to a netip.AddrPort.
func (a Address) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(a.IP), a.Port)
}

func (a Address) String() string {
	return a.AddrPort().String()
}

// ParseAddress builds an Address from a dotted-decimal IPv4 literal and a
// port. Anything else is rejected with ErrInvalidAddress.
func ParseAddress(ip string, port int) (Address, error) {
	if port < 0 || port > 0xffff {
		return Address{}, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	v4, err := parseIPv4(ip)
	if err != nil {
		return Address{}, err
	}
	return Address{IP: v4, Port: uint16(port)}, nil
}

const addrCacheSize = 256

// addrCache memoizes parsed literals; callers tend to create many sockets to
// the same few peers.
var addrCache = mustLRU[string, [4]byte](addrCacheSize)

func mustLRU[K comparable, V any](size int) *lru.Cache[K, V] {
	c, err := lru.New[K, V](size)
	if err != nil {
		panic(err)
	}
	return c
}

func parseIPv4(s string) ([4]byte, error) {
	if ip, ok := addrCache.Get(s); ok {
		return ip, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return [4]byte{}, fmt.Errorf("%w: %s", ErrInvalidAddress, strconv.Quote(s))
	}
	ip := addr.As4()
	addrCache.Add(s, ip)
	return ip, nil
}
