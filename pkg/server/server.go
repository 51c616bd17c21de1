// Package server contains the http serving setup shared by the commands.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"connectrpc.com/otelconnect"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/sequential/log"
)

const shutdownTimeout = 5 * time.Second

// RegisterHealth adds the grpc health service (and reflection for it) to mux.
// The returned checker is used to update the serving status of services.
func RegisterHealth(mux *http.ServeMux, services ...string) *grpchealth.StaticChecker {
	opts := []connect.HandlerOption{}
	if otel, err := otelconnect.NewInterceptor(); err == nil {
		opts = append(opts, connect.WithInterceptors(otel))
	} else {
		log.Warn("could not create otel interceptor", log.ErrorField(err))
	}
	checker := grpchealth.NewStaticChecker(services...)
	mux.Handle(grpchealth.NewHandler(checker, opts...))

	reflector := grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName)
	mux.Handle(grpcreflect.NewHandlerV1(reflector, opts...))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector, opts...))
	return checker
}

// Handler wraps h with the permissive CORS setup and h2c support
func Handler(h http.Handler) http.Handler {
	return h2c.NewHandler(newCORS().Handler(h), &http2.Server{})
}

// Serve runs the http server on addr (and on tlsAddr if tlsConfig is not nil)
// until ctx is done. The servers are shut down gracefully.
//
//nolint:whitespace // can't make both editor and linter happy
func Serve(
	ctx context.Context,
	addr string,
	handler http.Handler,
	tlsAddr string,
	tlsConfig *tls.Config,
) error {
	servers := []*http.Server{}
	g, gctx := errgroup.WithContext(ctx)
	if addr != "" {
		//nolint:gosec // timeouts are handled per request
		srv := &http.Server{Addr: addr, Handler: Handler(handler)}
		servers = append(servers, srv)
		g.Go(func() error {
			log.Info("Starting http server", log.String("addr", addr))
			return ignoreClosed(srv.ListenAndServe())
		})
	}
	if tlsAddr != "" && tlsConfig != nil {
		//nolint:gosec // timeouts are handled per request
		srv := &http.Server{Addr: tlsAddr, Handler: newCORS().Handler(handler), TLSConfig: tlsConfig}
		servers = append(servers, srv)
		g.Go(func() error {
			log.Info("Starting https server", log.String("addr", tlsAddr))
			return ignoreClosed(srv.ListenAndServeTLS("", ""))
		})
	}
	if len(servers) == 0 {
		return errors.New("no listen address configured")
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("server shutdown", log.String("addr", srv.Addr), log.ErrorField(err))
			}
		}
		return nil
	})
	return g.Wait()
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func newCORS() *cors.Cors {
	// To let web developers play with the dashboard from browsers, we need a
	// very permissive CORS setup.
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
		},
		AllowOriginFunc: func(origin string) bool {
			// Allow all origins, which effectively disables CORS.
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			// Content-Type is in the default safelist.
			"Accept",
			"Accept-Encoding",
			"Accept-Post",
			"Connect-Accept-Encoding",
			"Connect-Content-Encoding",
			"Content-Encoding",
			"Grpc-Accept-Encoding",
			"Grpc-Encoding",
			"Grpc-Message",
			"Grpc-Status",
			"Grpc-Status-Details-Bin",
		},
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
