package link

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// dhcpDirection tells which side of a DHCP exchange a frame belongs to.
type dhcpDirection int

const (
	dhcpNone   dhcpDirection = iota
	dhcpClient               // 68 -> 67
	dhcpServer               // 67 -> 68
)

const (
	dhcpServerPort layers.UDPPort = 67
	dhcpClientPort layers.UDPPort = 68
)

// frameInfo is what the diagnostic classifier learned about a frame.
type frameInfo struct {
	dir dhcpDirection
	// msg is zero when the DHCP payload could not be decoded; the port
	// pair alone still sets dir.
	msg layers.DHCPMsgType
}

// classifier peeks at Ethernet/IPv4/UDP/DHCPv4 headers. It is not safe for
// concurrent use; Controller only calls it with the session lock held.
type classifier struct {
	eth     layers.Ethernet
	ip4     layers.IPv4
	udp     layers.UDP
	dhcp    layers.DHCPv4
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

func newClassifier() *classifier {
	c := &classifier{decoded: make([]gopacket.LayerType, 0, 4)}
	c.parser = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&c.eth, &c.ip4, &c.udp, &c.dhcp,
	)
	c.parser.IgnoreUnsupported = true
	return c
}

// classify never fails: short or malformed frames yield dhcpNone.
func (c *classifier) classify(frame []byte) frameInfo {
	// Decoding stops at the first layer it cannot parse; the layers before
	// it are still valid, so the error is deliberately dropped.
	_ = c.parser.DecodeLayers(frame, &c.decoded)

	var sawUDP, sawDHCP bool
	for _, lt := range c.decoded {
		switch lt {
		case layers.LayerTypeUDP:
			sawUDP = true
		case layers.LayerTypeDHCPv4:
			sawDHCP = true
		}
	}
	if !sawUDP {
		return frameInfo{}
	}

	var info frameInfo
	switch {
	case c.udp.SrcPort == dhcpClientPort && c.udp.DstPort == dhcpServerPort:
		info.dir = dhcpClient
	case c.udp.SrcPort == dhcpServerPort && c.udp.DstPort == dhcpClientPort:
		info.dir = dhcpServer
	default:
		return frameInfo{}
	}

	if sawDHCP {
		for _, opt := range c.dhcp.Options {
			if opt.Type == layers.DHCPOptMessageType && len(opt.Data) == 1 {
				info.msg = layers.DHCPMsgType(opt.Data[0])
				break
			}
		}
	}
	return info
}

// etherTypeName labels a frame for debug logs.
func etherTypeName(frame []byte) string {
	if len(frame) < 14 {
		return "short"
	}
	switch layers.EthernetType(uint16(frame[12])<<8 | uint16(frame[13])) {
	case layers.EthernetTypeIPv4:
		return "IPv4"
	case layers.EthernetTypeARP:
		return "ARP"
	case layers.EthernetTypeIPv6:
		return "IPv6"
	default:
		return "other"
	}
}
