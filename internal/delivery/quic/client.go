package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

// Sender pushes frames to a server, one stream per frame.
type Sender struct {
	addr  string
	send  func(ctx context.Context, data []byte) error
	close func() error
	log   logrus.FieldLogger
}

// Dial connects to the frame server. The server certificate is not verified.
func Dial(ctx context.Context, addr string, log logrus.FieldLogger) (*Sender, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{NextProto},
	}
	conn, err := quic.DialAddr(dialCtx, addr, tlsConf, &quic.Config{
		KeepAlivePeriod: time.Second,
		MaxIdleTimeout:  600 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("quic dial %s: %w", addr, err)
	}
	log.Infof("QUIC connected to %s", addr)

	return &Sender{
		addr: addr,
		log:  log,
		send: func(ctx context.Context, data []byte) error {
			stream, err := conn.OpenStreamSync(ctx)
			if err != nil {
				return fmt.Errorf("open stream: %w", err)
			}
			if err := writeFrame(stream, data); err != nil {
				stream.CancelWrite(0)
				return err
			}
			return stream.Close()
		},
		close: func() error {
			return conn.CloseWithError(0, "bye")
		},
	}, nil
}

// Send writes data as one frame on a new stream.
func (s *Sender) Send(ctx context.Context, data []byte) error {
	if err := s.send(ctx, data); err != nil {
		return fmt.Errorf("send frame to %s: %w", s.addr, err)
	}
	s.log.Debugf("sent %d bytes to %s", len(data), s.addr)
	return nil
}

// Run sends every frame from in until in is closed or ctx is done. Failed
// frames are logged and skipped.
func (s *Sender) Run(ctx context.Context, in <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.Send(ctx, data); err != nil {
				s.log.WithError(err).Warn("frame dropped")
			}
		}
	}
}

// Close tears the connection down.
func (s *Sender) Close() error {
	return s.close()
}
