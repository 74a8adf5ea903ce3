package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minimart/config"
	"minimart/internal/gateway"
	"minimart/internal/util"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger("gateway", cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	users := gateway.ParseUsers(cfg.Gateway.BasicUsers)
	if len(users) == 0 {
		log.Fatal("BASIC_USERS is required, e.g. 'alice:secret,bob:secret'")
	}

	catalogBase := mustURL("CATALOG_BASE_URL", cfg.Gateway.CatalogBaseURL)
	ordersBase := mustURL("ORDERS_BASE_URL", cfg.Gateway.OrdersBaseURL)

	log.Printf("Gateway config: catalog=%s orders=%s users=%d",
		catalogBase.String(), ordersBase.String(), len(users))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           gateway.New(users, catalogBase, ordersBase),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// mustURL parses a base URL from config, failing fast on garbage.
func mustURL(name, s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		log.Fatalf("%s has an invalid URL %q: %v", name, s, err)
	}
	if u.Scheme == "" || u.Host == "" {
		log.Fatalf("%s must include scheme and host, got %q", name, s)
	}
	return u
}
