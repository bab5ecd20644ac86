package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"pointview/internal/delivery/udp"
	"pointview/internal/logger"
)

const (
	defaultPcapFile     = "static/sample1.pcap"
	defaultVelodyneIP   = "127.0.0.1"
	defaultVelodynePort = 2368
)

func main() {
	pcapFile := flag.String("pcap", defaultPcapFile, "Path to the pcap capture")
	velodyneIP := flag.String("ip", defaultVelodyneIP, "Destination IP")
	velodynePort := flag.Int("port", defaultVelodynePort, "Destination port")
	interval := flag.Duration("interval", udp.DefaultReplayInterval, "Delay between packets")
	loop := flag.Bool("loop", true, "Start over at the end of the capture")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log, err := logger.New(logger.Options{Level: *logLevel})
	if err != nil {
		logrus.Fatal(err)
	}
	log.WithFields(logrus.Fields{"pcap": *pcapFile, "ip": *velodyneIP, "port": *velodynePort}).Info("replaying capture")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{
		IP:   net.ParseIP(*velodyneIP),
		Port: *velodynePort,
	})
	if err != nil {
		log.Fatalf("cannot open UDP socket: %v", err)
	}
	defer conn.Close()

	for {
		f, err := os.Open(*pcapFile)
		if err != nil {
			log.Fatalf("cannot open pcap: %v", err)
		}
		count, err := udp.Replay(ctx, f, conn, *interval, log)
		f.Close()
		if errors.Is(err, context.Canceled) {
			log.WithField("packets", count).Info("replay stopped")
			return
		}
		if err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		log.WithField("packets", count).Info("end of capture")
		if !*loop {
			return
		}
	}
}
