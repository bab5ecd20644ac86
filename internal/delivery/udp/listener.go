package udp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	packetSize = 1206 // VLP-16 payload, UDP header excluded
)

type Packet struct {
	RawData []byte
}

// StartUDPListener reads sensor packets until ctx is done, reopening the
// socket after read errors. Packets of the wrong size are ignored and a full
// out channel drops packets.
func StartUDPListener(ctx context.Context, ip string, port int, out chan<- Packet, log logrus.FieldLogger) error {
	addr := net.UDPAddr{
		IP:   net.ParseIP(ip),
		Port: port,
	}
	conn, err := net.ListenUDP("udp", &addr)
	if err != nil {
		return err
	}
	go func() {
		for {
			log.Infof("UDP listener on %s", conn.LocalAddr())
			serve(ctx, conn, out, log)
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			for {
				conn, err = net.ListenUDP("udp", &addr)
				if err == nil {
					break
				}
				log.WithError(err).Warn("reopening UDP socket failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}()
	return nil
}

func serve(ctx context.Context, conn *net.UDPConn, out chan<- Packet, log logrus.FieldLogger) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, packetSize+1)
	dropped := 0
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.WithError(err).Warn("UDP read failed")
			}
			return
		}
		if n != packetSize {
			continue
		}
		packet := make([]byte, packetSize)
		copy(packet, buf[:packetSize])
		select {
		case out <- Packet{RawData: packet}:
		default:
			dropped++
			if dropped%1000 == 1 {
				log.WithField("dropped", dropped).Warn("UDP channel full, dropping packets")
			}
		}
	}
}
