package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/dazzleduck/flightsql-server/internal/auth"
	"github.com/dazzleduck/flightsql-server/internal/authz"
	"github.com/dazzleduck/flightsql-server/internal/config"
	"github.com/dazzleduck/flightsql-server/internal/engine"
	"github.com/dazzleduck/flightsql-server/internal/localdb"
	"github.com/dazzleduck/flightsql-server/internal/policy"
	"github.com/dazzleduck/flightsql-server/internal/producer"
	"github.com/dazzleduck/flightsql-server/internal/registry"
	"github.com/dazzleduck/flightsql-server/internal/split"
	"github.com/dazzleduck/flightsql-server/internal/warehouse"
)

func main() {
	var (
		configPath  string
		databaseDSN string
		stateDir    string
		metricsAddr string
		tlsCert     string
		tlsKey      string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to the server's YAML configuration file")
	flag.StringVar(&databaseDSN, "database", ":memory:", "DuckDB database file, or :memory: for an ephemeral catalog")
	flag.StringVar(&stateDir, "state-dir", ".flightsql-server", "directory for the bookkeeping (audit) database")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
	flag.StringVar(&tlsCert, "tls-cert", "", "PEM-encoded TLS certificate chain; if empty the server listens insecurely")
	flag.StringVar(&tlsKey, "tls-key", "", "PEM-encoded TLS private key, required alongside -tls-cert")
	flag.Parse()

	if err := run(configPath, databaseDSN, stateDir, metricsAddr, tlsCert, tlsKey); err != nil {
		log.Fatalf("flightsql-server: %v", err)
	}
}

func run(configPath, databaseDSN, stateDir, metricsAddr, tlsCert, tlsKey string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	secret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating jwt secret: %w", err)
	}
	verifier := auth.NewVerifier(secret)

	staticStore := policy.NewStaticStore(cfg.AccessRules)
	var remoteStore policy.Store
	if resolveURL := cfg.ResolveURL(); resolveURL != "" {
		remoteStore = policy.NewRemoteStore(resolveURL)
	}

	eng, err := engine.OpenDuckDB(databaseDSN)
	if err != nil {
		return err
	}
	defer eng.Close()

	wh, err := warehouse.New(cfg.WarehousePath)
	if err != nil {
		return err
	}

	auditDB, err := localdb.Open(stateDir)
	if err != nil {
		return err
	}
	defer auditDB.Close()

	reg := registry.New()
	hive := split.NewHiveInspector()

	srv := producer.New(verifier, staticStore, cfg.Mode(), hive, eng, reg, wh)
	srv.RemoteStore = remoteStore
	srv.Audit = auditDB

	var opts []grpc.ServerOption
	if tlsCert != "" {
		if tlsKey == "" {
			return fmt.Errorf("-tls-key is required alongside -tls-cert")
		}
		cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
		if err != nil {
			return fmt.Errorf("loading tls keypair: %w", err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}})))
	}

	grpcServer := grpc.NewServer(opts...)
	flight.RegisterFlightServiceServer(grpcServer, srv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", cfg.Port, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("flightsql-server listening on %s (mode=%s, registry=%d live handles)", lis.Addr(), cfg.AccessMode, reg.Len())
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		if n := reg.Len(); n != 0 {
			log.Printf("warning: %d handle registry entries still live at shutdown", n)
		}
		return nil
	case err := <-serveErr:
		return err
	}
}

func randomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
