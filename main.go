package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/gsmmodem/modem"
	"i4.energy/across/gsmmodem/pdu"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("service-center", "", "SMSC number for outgoing messages (default: SIM)")
	flag.Bool("auto-delete", false, "Delete messages from the SIM after reading them")
	flag.Bool("merge-parts", false, "Merge concatenated messages before publishing them")
	flag.Duration("at-timeout", modem.DefaultATTimeout, "Timeout of a single AT command")
	flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables MQTT)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(config.LogLevel)}))

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(config.ATTimeout).
		WithInitTimeout(30 * time.Second).
		WithMinSendInterval(config.MinSendInterval).
		WithServiceCenter(config.ServiceCenter).
		WithAutoDelete(config.AutoDelete).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- m.Loop(ctx) }()

	if err := m.Open(ctx); err != nil {
		logger.Error("Failed to initialize modem", "error", err)
		m.Close()
		os.Exit(1)
	}

	logger.Info("Starting SMS Gateway", "serial_port", config.SerialPort, "baud_rate", config.BaudRate)

	hub := NewHub(logger.With("component", "hub"))
	inbox := &Inbox{
		Source: m,
		Sinks:  []Sink{hub},
		Logger: logger.With("component", "inbox"),
	}
	if config.MergeParts {
		inbox.Assembler = pdu.NewAssembler()
	}

	var bridge *MQTTBridge
	if config.MQTT.Broker != "" {
		bridge = NewMQTTBridge(config.MQTT, m, logger.With("component", "mqtt"))
		if err := bridge.Start(ctx); err != nil {
			logger.Error("Failed to start MQTT bridge", "error", err)
			m.Close()
			os.Exit(1)
		}
		inbox.Sinks = append(inbox.Sinks, bridge)
	}

	go func() {
		if err := inbox.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Inbox stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:     logger.With("component", "server"),
			Modem:      m,
			Hub:        hub,
			MergeParts: config.MergeParts,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal or a dead modem
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-loopDone:
		logger.Error("Modem connection lost", "error", err)
	}
	cancel()

	if bridge != nil {
		logger.Info("Disconnecting from MQTT broker")
		bridge.Stop()
	}

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
