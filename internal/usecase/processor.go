package usecase

import (
	"github.com/chewxy/math32"
	"github.com/sirupsen/logrus"

	"pointview/internal/delivery/udp"
)

const (
	// VLP16PacketSize is the UDP payload of one VLP-16 data packet.
	VLP16PacketSize = 1206

	vlp16Blocks       = 12
	vlp16BlockSize    = 100
	vlp16Lasers       = 32
	vlp16DistanceUnit = 0.002
	frameCapacity     = 40000
)

var vlp16VerticalAngles = [16]float32{
	-15, 1, -13, 3, -11, 5, -9, 7,
	-7, 9, -5, 11, -3, 13, -1, 15,
}

// EncodedFrame is a frame after the compressor chain, tagged with its sender.
type EncodedFrame struct {
	Source string
	Data   []byte
}

// Frame is one full sensor revolution.
type Frame struct {
	Source string
	Points PointCloud
}

// PointCloudProcessor turns sensor packets into frames and runs them through
// the compressor chain in both directions.
type PointCloudProcessor struct {
	FilterRadius float32
	compressors  []PointCloudCompressor
	log          logrus.FieldLogger
}

func NewPointCloudProcessor(filterRadius float32, log logrus.FieldLogger) *PointCloudProcessor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PointCloudProcessor{FilterRadius: filterRadius, log: log}
}

// SetCompressors sets the chain in Tx order. Rx applies it in reverse.
func (p *PointCloudProcessor) SetCompressors(compressors ...PointCloudCompressor) {
	p.compressors = compressors
}

// Encode serializes a frame and applies the chain in order.
func (p *PointCloudProcessor) Encode(points PointCloud) ([]byte, error) {
	data := EncodePoints(points)
	var err error
	for _, compressor := range p.compressors {
		if data, err = compressor.Compress(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Decode applies the chain in reverse and deserializes the points.
func (p *PointCloudProcessor) Decode(data []byte) (PointCloud, error) {
	var err error
	for i := len(p.compressors) - 1; i >= 0; i-- {
		if data, err = p.compressors[i].Decompress(data); err != nil {
			return nil, err
		}
	}
	return DecodePoints(data)
}

// Tx groups packets into frames on azimuth wrap-around and emits each encoded
// frame. A full out channel drops the frame.
func (p *PointCloudProcessor) Tx(in <-chan udp.Packet, out chan<- []byte) {
	frameBuf := make(PointCloud, 0, frameCapacity)
	prevAzimuth := float32(-1.0)
	for packet := range in {
		buf := packet.RawData
		if len(buf) != VLP16PacketSize {
			continue
		}
		azimuth := float32(uint16(buf[2])|uint16(buf[3])<<8) / 100.0
		if prevAzimuth >= 0 && azimuth < prevAzimuth && len(frameBuf) > 0 {
			data, err := p.Encode(frameBuf)
			if err != nil {
				p.log.WithError(err).Warn("frame encode failed, dropping frame")
			} else {
				select {
				case out <- data:
				default:
					p.log.WithField("points", len(frameBuf)).Warn("frame channel full, dropping frame")
				}
			}
			frameBuf = make(PointCloud, 0, frameCapacity)
		}
		prevAzimuth = azimuth
		frameBuf = DecodeVLP16(buf, p.FilterRadius, frameBuf)
	}
}

// Rx decodes frames and forwards them. Undecodable frames are logged and dropped.
func (p *PointCloudProcessor) Rx(in <-chan EncodedFrame, out chan<- Frame) {
	for encoded := range in {
		pts, err := p.Decode(encoded.Data)
		if err != nil {
			p.log.WithError(err).WithField("source", encoded.Source).Warn("frame decode failed")
			continue
		}
		select {
		case out <- Frame{Source: encoded.Source, Points: pts}:
		default:
			p.log.WithField("source", encoded.Source).Warn("decoded frame channel full, dropping frame")
		}
	}
}

// DecodeVLP16 appends the points of one VLP-16 packet to dst. Points inside
// the filter cube around the sensor are skipped; a zero radius keeps all.
func DecodeVLP16(buf []byte, filterRadius float32, dst PointCloud) PointCloud {
	if len(buf) < VLP16PacketSize {
		return dst
	}
	for block := 0; block < vlp16Blocks; block++ {
		start := block * vlp16BlockSize
		azimuthBlock := float32(uint16(buf[start+2])|uint16(buf[start+3])<<8) / 100.0
		azimuthRad := azimuthBlock * math32.Pi / 180.0
		for laser := 0; laser < vlp16Lasers; laser++ {
			offset := start + 4 + laser*3
			dist := float32(uint16(buf[offset])|uint16(buf[offset+1])<<8) * vlp16DistanceUnit
			vertRad := vlp16VerticalAngles[laser%16] * math32.Pi / 180.0
			x := dist * math32.Cos(vertRad) * math32.Sin(azimuthRad)
			y := dist * math32.Cos(vertRad) * math32.Cos(azimuthRad)
			z := dist * math32.Sin(vertRad)
			if filterRadius == 0 ||
				math32.Abs(x) > filterRadius ||
				math32.Abs(y) > filterRadius ||
				math32.Abs(z) > filterRadius {
				dst = append(dst, Point{x, y, z})
			}
		}
	}
	return dst
}
