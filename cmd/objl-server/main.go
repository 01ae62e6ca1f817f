package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"objloader/pkg/app"
	"objloader/pkg/config"
	"objloader/pkg/metrics"

	"github.com/spf13/viper"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.objl/config.yaml)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// 2. Init Object Store + gRPC Server
	ctx := context.Background()
	srv, err := app.NewServer(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to initialize server: %v", err)
	}
	fmt.Println("✅ Object store initialized.")

	// 3. Setup Network
	addr := viper.GetString("server.addr")
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("❌ Failed to listen on %s: %v", addr, err)
	}

	// 4. Metrics endpoint
	metricsAddr := viper.GetString("server.metrics_addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(srv.Registry))
	httpSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if metricsAddr != "" {
		go func() {
			fmt.Printf("📈 Metrics listening on %s/metrics\n", metricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.Logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	// 5. Start Server (Async)
	go func() {
		fmt.Printf("🚀 gRPC Server listening on %s...\n", addr)
		if err := srv.GRPC.Serve(lis); err != nil {
			log.Fatalf("❌ Failed to serve: %v", err)
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n⚠️  Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.GRPC.GracefulStop()
	if err := srv.Close(); err != nil {
		fmt.Println("⚠️  close:", err)
	}
	fmt.Println("👋 Server stopped.")
}
