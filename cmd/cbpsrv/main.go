package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stephen-hansen/cbp/pkg/logging"
	"github.com/stephen-hansen/cbp/pkg/server"
)

func main() {
	var (
		host          string
		port          uint
		discoveryPort uint
		noDiscovery   bool
		certFile      string
		keyFile       string
		credsFile     string
		logFile       string
		debugLevel    string
		seed          int64
	)
	flag.StringVar(&host, "host", "", "Host to listen on (empty for all interfaces)")
	flag.UintVar(&port, "port", server.DefaultServicePort, "TCP service port")
	flag.UintVar(&discoveryPort, "discoveryport", server.DefaultDiscoveryPort, "UDP discovery port")
	flag.BoolVar(&noDiscovery, "nodiscovery", false, "Disable the UDP discovery responder")
	flag.StringVar(&certFile, "cert", "server.cert", "Path to the TLS certificate")
	flag.StringVar(&keyFile, "key", "server.key", "Path to the TLS key")
	flag.StringVar(&credsFile, "credentials", "", "Path to the user:pass credentials file (required)")
	flag.StringVar(&logFile, "logfile", "", "Path to the rotated logfile (empty for stdout only)")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for decks (0 = random)")
	flag.Parse()

	if credsFile == "" {
		fmt.Fprintln(os.Stderr, "the -credentials flag is required")
		os.Exit(1)
	}
	creds, err := server.LoadCredentials(credsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:    logFile,
		DebugLevel: debugLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logBackend.Close()
	log := logBackend.Logger("SRVR")

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		log.Errorf("Failed to load TLS keypair: %v", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		ServicePort: uint16(port),
		Credentials: creds,
		Seed:        seed,
	}, log, logBackend.Logger("TABL"))

	addr := fmt.Sprintf("%s:%d", host, port)
	lis, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		log.Errorf("Failed to listen on %s: %v", addr, err)
		os.Exit(1)
	}

	if !noDiscovery {
		disc, err := server.NewDiscoveryResponder(uint16(discoveryPort), uint16(port), logBackend.Logger("DISC"))
		if err != nil {
			log.Errorf("Failed to start discovery responder: %v", err)
			os.Exit(1)
		}
		defer disc.Close()
		go disc.Run()
	}

	// Shut down cleanly on interrupt, kicking seated players first.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("Received %s, shutting down", sig)
		srv.Shutdown()
	}()

	if err := srv.Serve(lis); err != nil {
		log.Errorf("Serve error: %v", err)
		os.Exit(1)
	}
}
