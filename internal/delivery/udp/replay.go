package udp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// DefaultReplayInterval is the gap between VLP-16 packets at 600 rpm.
const DefaultReplayInterval = 1330 * time.Microsecond

// Replay writes the sensor payloads of a pcap capture to w, one write per
// packet, pausing interval between writes. It returns the number of packets
// sent when the capture ends or ctx is done.
func Replay(ctx context.Context, capture io.Reader, w io.Writer, interval time.Duration, log logrus.FieldLogger) (int, error) {
	r, err := pcapgo.NewReader(capture)
	if err != nil {
		return 0, fmt.Errorf("open pcap: %w", err)
	}
	source := gopacket.NewPacketSource(r, r.LinkType())
	source.NoCopy = true

	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	count := 0
	for {
		packet, err := source.NextPacket()
		switch {
		case errors.Is(err, io.EOF):
			return count, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			log.WithField("packets", count).Warn("capture is truncated")
			return count, nil
		case err != nil:
			return count, fmt.Errorf("read pcap: %w", err)
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, _ := udpLayer.(*layers.UDP)
		if len(udp.Payload) != packetSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return count, ctx.Err()
			case <-ticker.C:
			}
		}
		if _, err := w.Write(udp.Payload); err != nil {
			log.WithError(err).Warn("packet send failed")
			continue
		}
		count++
		if count%10000 == 0 {
			log.WithField("packets", count).Debug("replay progress")
		}
	}
}
