package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stephen-hansen/cbp/pkg/client"
	"github.com/stephen-hansen/cbp/pkg/logging"
)

func main() {
	var (
		serverAddr  string
		serverCert  string
		skipVerify  bool
		discTimeout time.Duration
		logFile     string
		debugLevel  string
		dump        bool
	)
	flag.StringVar(&serverAddr, "server", "", "Server address host:port (empty to discover on the LAN)")
	flag.StringVar(&serverCert, "servercert", "", "Path to a pinned server certificate")
	flag.BoolVar(&skipVerify, "skipverify", false, "Skip TLS certificate verification")
	flag.DurationVar(&discTimeout, "discoverytimeout", 3*time.Second, "How long to wait for a discovery reply")
	flag.StringVar(&logFile, "logfile", "", "Path to the rotated logfile (empty for no file logging)")
	flag.StringVar(&debugLevel, "debuglevel", "warn", "Logging level: trace, debug, info, warn, error")
	flag.BoolVar(&dump, "dump", false, "Dump every received PDU into the message log")
	flag.Parse()

	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:    logFile,
		DebugLevel: debugLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logBackend.Close()
	log := logBackend.Logger("CLNT")

	if serverAddr == "" {
		addr, err := client.Discover(discTimeout, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "discovery failed: %v (use -server to connect directly)\n", err)
			os.Exit(1)
		}
		serverAddr = addr
	}

	tlsCfg := &tls.Config{InsecureSkipVerify: skipVerify}
	if serverCert != "" {
		pem, err := os.ReadFile(serverCert)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read server certificate: %v\n", err)
			os.Exit(1)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			fmt.Fprintf(os.Stderr, "no certificates found in %s\n", serverCert)
			os.Exit(1)
		}
		tlsCfg.RootCAs = pool
		tlsCfg.InsecureSkipVerify = false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c, err := client.Dial(ctx, client.Config{
		ServerAddr: serverAddr,
		TLSConfig:  tlsCfg,
		Log:        log,
	})
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", serverAddr, err)
		os.Exit(1)
	}
	defer c.Close()

	p := tea.NewProgram(initialModel(c, serverAddr, dump), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "UI error: %v\n", err)
		os.Exit(1)
	}
}
