// Package main implements fakerouter — a deterministic in-memory WAMP-subset
// router for integration testing of client implementations. It speaks the
// pub/sub slice of the protocol over WebSocket: hello/welcome with realm
// admission, subscribe/unsubscribe, publish fan-out with optional
// acknowledgement, and the goodbye exchange, in both the JSON and msgpack
// serializations.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/wampkit/wamp-client-go/wamp"
)

// ---------------------------------------------------------------------------
// CLI flags
// ---------------------------------------------------------------------------

var (
	flagAddr      = flag.String("addr", "127.0.0.1:18080", "websocket listen address")
	flagAdminAddr = flag.String("admin", "", "admin REST API listen address (e.g. ':18085')")
	flagRealms    = flag.String("realms", "", "comma-separated realm allowlist (empty accepts any realm)")
	flagTrace     = flag.Bool("trace", false, "log every routed message with direction coloring")
	flagLogConn   = flag.Bool("log-conn", true, "log connect/disconnect events")
	flagOutDepth  = flag.Int("out-depth", 4096, "per-session outbound channel depth")
)

func parseRealms(spec string) map[wamp.URI]bool {
	if spec == "" {
		return nil
	}
	realms := make(map[wamp.URI]bool)
	for _, realm := range strings.Split(spec, ",") {
		realm = strings.TrimSpace(realm)
		if realm != "" {
			realms[wamp.URI(realm)] = true
		}
	}
	return realms
}

// ---------------------------------------------------------------------------
// main
// ---------------------------------------------------------------------------

func main() {
	flag.Parse()

	router := newRouter(routerConfig{
		realms:   parseRealms(*flagRealms),
		trace:    *flagTrace,
		logConn:  *flagLogConn,
		outDepth: *flagOutDepth,
	})

	if *flagAdminAddr != "" {
		startAdminServer(*flagAdminAddr, router)
	}

	server := &http.Server{Addr: *flagAddr, Handler: router}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("fakerouter: received %v, shutting down", sig)
		_ = server.Close()
	}()

	log.Printf("fakerouter listening on %s  (realms=%q trace=%v admin=%q)",
		*flagAddr, *flagRealms, *flagTrace, *flagAdminAddr)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("fakerouter: listen %s failed: %v", *flagAddr, err)
	}
	log.Printf("fakerouter: listener closed, exiting")
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fakerouter — in-memory WAMP pub/sub router for client integration testing\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}
