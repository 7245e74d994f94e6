package videosource

import (
	"encoding/binary"
	"fmt"
	"image"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/banshee-data/lgt-tracker/imageview"
)

// frameHeaderSize is the fixed-width header EncodeFrame prefixes onto
// each frame's grey pixel payload: sequence number, width, height, all
// uint16.
const frameHeaderSize = 6

// EncodeFrame serialises one grey-scale frame as an Ethernet/IPv4/UDP
// packet carrying a small header plus the raw pixel bytes — the wire
// shape a recorded capture of this tracker's input would have. This is a
// test-only encoder: it exists purely so videosource has a deterministic,
// replayable "recorded capture" fixture to drive, with gopacket doing the
// layer decode.
func EncodeFrame(seq uint16, img *image.Gray) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("videosource: EncodeFrame: nil image")
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || w > 0xffff || h > 0xffff {
		return nil, fmt.Errorf("videosource: EncodeFrame: invalid frame size %dx%d", w, h)
	}

	payload := make([]byte, frameHeaderSize+w*h)
	binary.BigEndian.PutUint16(payload[0:2], seq)
	binary.BigEndian.PutUint16(payload[2:4], uint16(w))
	binary.BigEndian.PutUint16(payload[4:6], uint16(h))
	for y := 0; y < h; y++ {
		row := payload[frameHeaderSize+y*w : frameHeaderSize+(y+1)*w]
		for x := 0; x < w; x++ {
			row[x] = img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y
		}
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(127, 0, 0, 1),
		DstIP:    net.IPv4(127, 0, 0, 1),
	}
	udp := &layers.UDP{SrcPort: 51000, DstPort: 51001}
	if err := udp.SetNetworkLayerForChecksum(ip4); err != nil {
		return nil, fmt.Errorf("videosource: EncodeFrame: checksum: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip4, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("videosource: EncodeFrame: serialize: %w", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// PacketReplaySource replays a recorded capture — a sequence of raw
// Ethernet/IPv4/UDP frames produced by EncodeFrame — as a Source,
// decoding each packet's UDP payload back into a grey image. It is the
// "reference packet-replay collaborator used only by tests" the domain
// stack wires gopacket in for: a thin adapter over already-captured
// packets, never a live decoder.
type PacketReplaySource struct {
	packets       [][]byte
	pos           int
	width, height int
}

// NewPacketReplaySource wraps a recorded sequence of EncodeFrame packets.
func NewPacketReplaySource(packets [][]byte) *PacketReplaySource {
	return &PacketReplaySource{packets: packets}
}

// Capture implements Source.
func (s *PacketReplaySource) Capture() (*imageview.View, bool, error) {
	if s.pos >= len(s.packets) {
		return nil, false, nil
	}
	raw := s.packets[s.pos]
	s.pos++

	pkt := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.NoCopy)
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false, fmt.Errorf("videosource: packet %d carries no UDP layer", s.pos-1)
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil, false, fmt.Errorf("videosource: packet %d: unexpected UDP layer type", s.pos-1)
	}
	payload := udp.Payload
	if len(payload) < frameHeaderSize {
		return nil, false, fmt.Errorf("videosource: packet %d: payload too short for frame header", s.pos-1)
	}

	w := int(binary.BigEndian.Uint16(payload[2:4]))
	h := int(binary.BigEndian.Uint16(payload[4:6]))
	if len(payload) < frameHeaderSize+w*h {
		return nil, false, fmt.Errorf("videosource: packet %d: payload truncated for %dx%d frame", s.pos-1, w, h)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, payload[frameHeaderSize:frameHeaderSize+w*h])

	s.width, s.height = w, h
	return imageview.New(img), true, nil
}

func (s *PacketReplaySource) Width() int  { return s.width }
func (s *PacketReplaySource) Height() int { return s.height }
func (s *PacketReplaySource) Close() error {
	s.packets = nil
	return nil
}
