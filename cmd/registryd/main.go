// Command registryd runs the service-discovery registry as a standalone
// process: an rpc.Server exposing register/heartbeat/discover/health over
// WebSocket and HTTP, with optional mDNS and MQTT bridges (spec.md §4.3).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/rpc"
	"github.com/sparesparrow/ai-servis/serviceregistry"
	"github.com/sparesparrow/ai-servis/telemetry"
	"github.com/sparesparrow/ai-servis/transport"
	"goa.design/clue/log"
)

func main() {
	var (
		configF = flag.String("config", "", "path to a YAML configuration file (defaults apply when empty)")
		addrF   = flag.String("addr", ":8500", "HTTP/WebSocket listen address")
		mdnsF   = flag.Bool("mdns", false, "advertise/discover peers over mDNS")
		mqttF   = flag.String("mqtt-broker", "", "MQTT broker URL; empty disables the MQTT bridge")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	cfg := config.New()
	if *configF != "" {
		loaded, err := config.LoadYAML(*configF)
		if err != nil {
			log.Fatalf(ctx, err, "failed to load config %q", *configF)
		}
		cfg = loaded
	}
	if *mqttF != "" {
		if err := cfg.Set("mqtt_broker", *mqttF, false); err != nil {
			log.Fatalf(ctx, err, "invalid mqtt broker override")
		}
	}

	logger := telemetry.NewClueLogger()

	registry := serviceregistry.New(cfg, serviceregistry.WithLogger(logger))

	var mdnsBridge *serviceregistry.MDNSBridge
	var mqttBridge *serviceregistry.MQTTBridge

	if *mdnsF {
		mdnsBridge = serviceregistry.NewMDNSBridge(cfg, registry, logger)
		registry.AddBridge(mdnsBridge)
	}
	if *mqttF != "" {
		bridge, err := serviceregistry.NewMQTTBridge(ctx, cfg, registry, logger)
		if err != nil {
			log.Fatalf(ctx, err, "failed to connect to mqtt broker %q", *mqttF)
		}
		mqttBridge = bridge
		registry.AddBridge(mqttBridge)
	}

	rpcServer := rpc.NewServer(rpc.WithLogger(logger), rpc.WithConcurrency(cfg.Int("tool_concurrency", config.DefaultToolConcurrency)))
	for _, t := range serviceregistry.Tools(registry, cfg) {
		if err := rpcServer.Register(t); err != nil {
			log.Fatalf(ctx, err, "failed to register tool %q", t.Name)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", transport.Handler(rpcServer))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.UpgradeWebSocket(w, r)
		if err != nil {
			logger.Warn(r.Context(), "registryd websocket upgrade failed", "error", err)
			return
		}
		if err := rpcServer.Serve(r.Context(), conn); err != nil {
			logger.Warn(r.Context(), "registryd websocket session ended", "error", err)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		summary := registry.CheckHealth()
		if summary.Unhealthy > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	ln, err := net.Listen("tcp", *addrF)
	if err != nil {
		log.Fatalf(ctx, err, "failed to listen on %s", *addrF)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	go registry.Run(runCtx)
	if mdnsBridge != nil {
		go mdnsBridge.Browse(runCtx, cfg.Duration("mdns_browse_interval", 10*time.Second))
	}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	log.Print(ctx, log.KV{K: "status", V: fmt.Sprintf("registryd listening on %s", *addrF)})
	log.Printf(ctx, "exiting (%v)", <-errc)

	cancel()
	registry.Stop()
	if mdnsBridge != nil {
		_ = mdnsBridge.Close()
	}
	if mqttBridge != nil {
		_ = mqttBridge.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	log.Printf(ctx, "exited")
}
