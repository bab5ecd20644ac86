package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

// NextProto is the ALPN protocol of the frame stream.
const NextProto = "pointview-frames"

// MaxFrameSize bounds the length prefix so a bad client cannot make the
// server allocate arbitrarily.
const MaxFrameSize = 64 << 20

// ServerTLSConfig loads the certificate pair when both files exist and
// otherwise generates a short-lived self-signed certificate.
func ServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if fileExists(certFile) && fileExists(keyFile) {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load certificate: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{NextProto}}, nil
	}
	return generateTLSConfig()
}

func fileExists(name string) bool {
	if name == "" {
		return false
	}
	_, err := os.Stat(name)
	return err == nil
}

func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	certTemplate := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &certTemplate, &certTemplate, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{NextProto},
	}, nil
}

// StartQUICServer accepts connections until ctx is done. Every stream
// carries one frame: a 4-byte big-endian length, then the payload, which is
// passed to handler with the client address.
func StartQUICServer(ctx context.Context, addr string, tlsConfig *tls.Config, handler func(source string, data []byte), log logrus.FieldLogger) error {
	listener, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		KeepAlivePeriod: time.Second,
		MaxIdleTimeout:  600 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("quic listen on %s: %w", addr, err)
	}
	defer listener.Close()
	log.Infof("QUIC server listening on %s", addr)

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("QUIC accept failed")
			continue
		}

		clientAddr := conn.RemoteAddr().String()
		log.WithField("client", clientAddr).Info("QUIC client connected")

		go func() {
			for {
				stream, err := conn.AcceptStream(ctx)
				if err != nil {
					log.WithField("client", clientAddr).WithError(err).Info("QUIC client gone")
					return
				}
				data, err := readFrame(stream)
				stream.CancelRead(0)
				_ = stream.Close()
				if err != nil {
					log.WithField("client", clientAddr).WithError(err).Warn("QUIC frame read failed")
					continue
				}
				log.WithField("client", clientAddr).Debugf("QUIC frame of %d bytes", len(data))
				handler(clientAddr, data)
			}
		}()
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	sizeBuffer := make([]byte, 4)
	if _, err := io.ReadFull(r, sizeBuffer); err != nil {
		return nil, fmt.Errorf("frame size: %w", err)
	}
	dataSize := binary.BigEndian.Uint32(sizeBuffer)
	if dataSize > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d", dataSize, MaxFrameSize)
	}
	buffer := make([]byte, dataSize)
	if n, err := io.ReadFull(r, buffer); err != nil {
		return nil, fmt.Errorf("frame payload (read %d of %d bytes): %w", n, dataSize, err)
	}
	return buffer, nil
}

func writeFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return errors.New("frame too large")
	}
	sizeBuffer := make([]byte, 4)
	binary.BigEndian.PutUint32(sizeBuffer, uint32(len(data)))
	if _, err := w.Write(sizeBuffer); err != nil {
		return fmt.Errorf("frame size: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("frame payload: %w", err)
	}
	return nil
}
