package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"apiforge/internal/audit"
	"apiforge/internal/factory"
	"apiforge/internal/registry"
	"apiforge/internal/schema"

	"github.com/gin-gonic/gin"
)

type Options struct {
	Factory      *factory.Factory
	Registry     *registry.Registry
	Normalizer   *schema.Normalizer
	Audit        *audit.Logger
	ReferenceDir string
}

// NewEngine wires every route. Middleware order: audit capture, then tenant
// resolution, then the handler.
func NewEngine(o Options) *gin.Engine {
	r := gin.Default()
	r.Use(RequestLogger(o.Audit), TenantResolver(o.Registry))

	r.GET("/health", HealthHandler())

	r.POST("/generate-api", GenerateAPIHandler(o.Factory))
	r.POST("/generate-schema", GenerateSchemaHandler(o.Factory))
	r.POST("/modify-schema", ModifySchemaHandler(o.Factory))
	r.POST("/create-api-from-schema", CreateFromSchemaHandler(o.Factory))

	r.GET("/apis", ListAPIsHandler(o.Registry))
	r.DELETE("/apis/:apiId", UnpublishHandler(o.Registry))
	r.POST("/admin/reload", AdminReloadHandler(o.Normalizer, o.Registry, o.ReferenceDir))

	// generated APIs: docs, swagger.json and sql share the catch-all
	r.Any("/api/:apiId/*path", GeneratedAPIHandler(o.Registry))

	return r
}

// RunServer serves until ctx is cancelled, then drains in-flight requests.
func RunServer(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("api: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
