// Command mystnode runs a single storage-node fragment service
// (spec.md §4.9), generalized from the teacher's cmd/server/main.go
// gRPC AVID-FP node into an HTTP server wired through internal/nodeserver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mmyneni/mystvault/internal/config"
	"github.com/mmyneni/mystvault/internal/nodeserver"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dataDir := flag.String("datadir", "", "fragment storage directory (overrides config)")
	directoryURL := flag.String("directory", "", "directory service URL (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *port != 0 {
		cfg.Server.HTTPPort = *port
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *directoryURL != "" {
		cfg.Directory.URL = *directoryURL
	}

	selfAddr := fmt.Sprintf("localhost:%d", cfg.Server.HTTPPort)

	srv, err := nodeserver.New(nodeserver.Options{
		DataDir:      cfg.Storage.DataDir,
		DBPath:       filepath.Join(cfg.Storage.DataDir, cfg.Storage.DB),
		TotalSpace:   cfg.Storage.TotalSpace,
		SelfAddr:     selfAddr,
		DirectoryURL: cfg.Directory.URL,
	})
	if err != nil {
		log.Fatalf("nodeserver.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv.RunBackground(ctx)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("mystnode %s listening on %s, directory=%s, datadir=%s",
			srv.NodeID, httpSrv.Addr, cfg.Directory.URL, cfg.Storage.DataDir)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("mystnode shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	httpSrv.Shutdown(shutdownCtx)
	srv.Close()
}
