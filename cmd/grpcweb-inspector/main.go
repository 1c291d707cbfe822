package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grpcweb-inspector/core/internal/config"
	"github.com/grpcweb-inspector/core/internal/server"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	defaultPort = "8080"
	defaultHost = "localhost"
)

func main() {
	var (
		port              = flag.String("port", defaultPort, "HTTP server port")
		host              = flag.String("host", defaultHost, "HTTP server host")
		reflectionEnabled = flag.Bool("reflection", true, "enable gRPC Server Reflection lookups")
		reflectionTimeout = flag.Duration("reflection-timeout", 10*time.Second, "per-origin reflection deadline")
		strictUTF8        = flag.Bool("strict-utf8", false, "mark schema string fields containing invalid UTF-8 as errors instead of falling back to raw bytes")
		blindThreshold    = flag.Float64("blind-decode-threshold", 0.8, "minimum fraction of a length-delimited field's bytes a blind nested-message parse must consume to be accepted")
		gzipMaxBytes      = flag.Uint64("gzip-max-bytes", 64<<20, "maximum decompressed size accepted from a gzip-compressed message")
		sessionTTL        = flag.Duration("session-ttl", time.Hour, "how long an idle session's registry and engine state are retained")
	)
	flag.Parse()

	cfg := config.Default()
	cfg.ReflectionEnabled = *reflectionEnabled
	cfg.ReflectionTimeout = *reflectionTimeout
	cfg.Codec.StrictUTF8 = *strictUTF8
	cfg.Codec.BlindDecodeThreshold = *blindThreshold
	cfg.Framing.GzipMaxOutputBytes = *gzipMaxBytes

	srv := server.New(cfg, *sessionTTL)
	defer func() {
		if err := srv.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
	}()

	h2s := &http2.Server{}
	h1s := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", *host, *port),
		Handler: h2c.NewHandler(srv.Handler(), h2s),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("grpcweb-inspector starting on http://%s:%s", *host, *port)
		log.Printf("  POST /process            - decode one captured call")
		log.Printf("  POST /descriptors        - register FileDescriptorSet bytes")
		log.Printf("  POST /descriptors/clear  - drop manually registered descriptors")
		log.Printf("  GET  /events             - stream on_record/on_schema_updated/on_reflection_status")

		if err := h1s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-shutdown
	log.Println("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h1s.Shutdown(ctx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	log.Println("Server stopped")
}
