package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"vidora.org/internal/ai"
	"vidora.org/internal/auth"
	"vidora.org/internal/content"
	"vidora.org/internal/httpapi"
	"vidora.org/internal/media"
	"vidora.org/internal/obs"
	"vidora.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("VIDORA_COMMIT"))

	// Storage: PostgreSQL when a DSN is configured, in-memory otherwise.
	var (
		db         *sql.DB
		authStore  auth.Store
		contentSvc content.Service
	)
	if dsn := os.Getenv("VIDORA_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()
		authStore = auth.NewPGStore(db)
		contentSvc = store
	} else {
		log.Print("VIDORA_PG_DSN not set; using in-memory storage")
		authStore = auth.NewInMemory()
		contentSvc = content.NewInMemory()
	}

	// Session secrets are mandatory; the service refuses to start without them.
	opts := []auth.ServiceOption{
		auth.WithSecrets(
			os.Getenv("VIDORA_ACCESS_TOKEN_SECRET"),
			os.Getenv("VIDORA_REFRESH_TOKEN_SECRET"),
		),
	}
	if ttl := envDuration("VIDORA_ACCESS_TOKEN_TTL"); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := envDuration("VIDORA_REFRESH_TOKEN_TTL"); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}
	authSvc, err := auth.NewService(authStore, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	var mediaClient *media.Client
	if uploadURL := os.Getenv("VIDORA_MEDIA_UPLOAD_URL"); uploadURL != "" {
		mediaClient = media.NewClient(uploadURL, os.Getenv("VIDORA_MEDIA_API_KEY"))
	} else {
		log.Print("VIDORA_MEDIA_UPLOAD_URL not set; uploads disabled")
	}
	enricher := ai.NewEnricher(os.Getenv("VIDORA_AI_API_KEY"))

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, authSvc, contentSvc, mediaClient, enricher)

	addr := os.Getenv("VIDORA_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting vidora-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Optional gRPC health listener.
	var grpcSrv *grpc.Server
	if grpcAddr := os.Getenv("VIDORA_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(httpapi.ReadyProbe{DB: db}).Register(grpcSrv)
		log.Printf("Starting grpc health on %s", grpcAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envDuration(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}
