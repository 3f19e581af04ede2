// Package binutil holds the process level helpers shared by the replica binaries: logging setup, the admin http server and daemon mode.
package binutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/natefinch/lumberjack"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminHandlers are the optional application hooks of the admin http server
type AdminHandlers struct {
	// Info returns a json encodable summary served on /info
	Info func() interface{}
	// WebSocket accepts replica streams on /ws, see transport.WebSocketBackend.HTTPHandler
	WebSocket http.Handler
	// CORSOrigins defaults to localhost origins
	CORSOrigins []string
}

// NewAdminRouter creates the router of the admin http server
func NewAdminRouter(handlers AdminHandlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	origins := handlers.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if handlers.Info != nil {
		r.Get("/info", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(handlers.Info()); err != nil {
				gwlog.Errorf("encode /info failed: %v", err)
			}
		})
	}
	if handlers.WebSocket != nil {
		r.Handle("/ws", handlers.WebSocket)
	}

	r.Route("/debug/pprof", func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.Handle("/{profile}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "profile")).ServeHTTP(w, req)
		}))
	})
	return r
}

// SetupHTTPServer starts the admin http server for metrics, pprof and websockets.
// It returns nil if port is 0.
func SetupHTTPServer(ip string, port int, handlers AdminHandlers) *http.Server {
	return setupHTTPServer(ip, port, handlers, "", "")
}

// SetupHTTPServerTLS starts the admin https server
func SetupHTTPServerTLS(ip string, port int, handlers AdminHandlers, certFile string, keyFile string) *http.Server {
	return setupHTTPServer(ip, port, handlers, certFile, keyFile)
}

func setupHTTPServer(ip string, port int, handlers AdminHandlers, certFile string, keyFile string) *http.Server {
	if port == 0 {
		gwlog.Infof("http server not enabled")
		return nil
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	gwlog.Infof("http server listening on %s", httpHost)
	gwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)
	if keyFile != "" || certFile != "" {
		gwlog.Infof("TLS is enabled on http: key=%s, cert=%s", keyFile, certFile)
	}

	server := &http.Server{Addr: httpHost, Handler: NewAdminRouter(handlers)}
	go func() {
		var err error
		if keyFile == "" && certFile == "" {
			err = server.ListenAndServe()
		} else {
			err = server.ListenAndServeTLS(certFile, keyFile)
		}
		if err != nil && err != http.ErrServerClosed {
			gwlog.Errorf("http server %s failed: %v", httpHost, err)
		}
	}()
	return server
}

// SetupGWLog setup the log system of a replica binary
func SetupGWLog(component string, logLevel string, logFile string, logStderr bool) {
	gwlog.SetSource(component)
	gwlog.Infof("Set log level to %s", logLevel)
	gwlog.SetLevel(gwlog.StringToLevel(logLevel))

	outputWriters := make([]io.Writer, 0, 2)
	if logFile != "" {
		logFileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 100,
			MaxAge:     30, //days
			Compress:   true,
		}
		logFileWriter.Rotate() // rotate immediately
		outputWriters = append(outputWriters, logFileWriter)
	}

	if logStderr || len(outputWriters) == 0 {
		outputWriters = append(outputWriters, os.Stderr)
	}

	if len(outputWriters) == 1 {
		gwlog.SetOutput(outputWriters[0])
	} else {
		gwlog.SetOutput(io.MultiWriter(outputWriters...))
	}
}
