// Command orchestrator boots the full ai-servis process: service registry,
// intent classifier, command pipeline, orchestrator, message queue manager,
// audio sync engine, and the text/web/mobile UI adapters (spec.md §2).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sparesparrow/ai-servis/adapters/mobile"
	"github.com/sparesparrow/ai-servis/adapters/text"
	"github.com/sparesparrow/ai-servis/adapters/web"
	"github.com/sparesparrow/ai-servis/audiosync"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/gpio"
	"github.com/sparesparrow/ai-servis/intent"
	"github.com/sparesparrow/ai-servis/messaging"
	"github.com/sparesparrow/ai-servis/orchestrator"
	"github.com/sparesparrow/ai-servis/pipeline"
	"github.com/sparesparrow/ai-servis/rpc"
	"github.com/sparesparrow/ai-servis/serviceregistry"
	"github.com/sparesparrow/ai-servis/telemetry"
	"github.com/sparesparrow/ai-servis/transport"
	"goa.design/clue/log"
)

func main() {
	var (
		configF   = flag.String("config", "", "path to a YAML configuration file (defaults apply when empty)")
		debugF    = flag.Bool("debug", false, "log request/response detail")
		gpioAddrF = flag.String("gpio-addr", "localhost:8081", "GPIO daemon address")
		rpcAddrF  = flag.String("rpc-addr", ":8600", "management RPC (WebSocket/HTTP) listen address")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *debugF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg := config.New()
	if *configF != "" {
		loaded, err := config.LoadYAML(*configF)
		if err != nil {
			log.Fatalf(ctx, err, "failed to load config %q", *configF)
		}
		cfg = loaded
	}

	logger := telemetry.NewClueLogger()

	registry := serviceregistry.New(cfg, serviceregistry.WithLogger(logger))
	classifier := intent.New(cfg)
	for _, schema := range intent.DefaultSchemas() {
		classifier.RegisterSchema(schema)
	}
	sessions := orchestrator.NewSessionManager(cfg)
	pool := newWSClientPool(10 * time.Second)
	defer pool.Close()

	orch := orchestrator.New(cfg, sessions, registry, pool, orchestrator.WithLogger(logger))

	pl := pipeline.New(cfg, classifier, orch, pipeline.WithLogger(logger), pipeline.WithSessionState(sessions))
	dispatcher := newPipelineDispatcher(pl)

	msgMgr := messaging.New(cfg)

	gpioClient := gpio.New(*gpioAddrF)
	if err := gpioClient.Connect(ctx); err != nil {
		log.Print(ctx, log.KV{K: "gpio", V: fmt.Sprintf("daemon unavailable: %v", err)})
	} else {
		defer gpioClient.Close()
	}

	syncEngine := audiosync.New(cfg, audiosync.PositionProviderFunc(func(ctx context.Context, zoneID string) (float64, error) {
		return 0, fmt.Errorf("audiosync: no position source configured for zone %q", zoneID)
	}))

	textAdapter := text.New(cfg, dispatcher, text.WithLogger(logger))
	webAdapter := web.New(cfg, dispatcher, web.WithLogger(logger))
	mobileAdapter := mobile.New(cfg, dispatcher, mobile.WithLogger(logger))

	// Management RPC surface: process_command plus the queue/sync control
	// tools the UI adapters and peer modules call into (spec.md §4.6, §4.7,
	// §4.8).
	rpcServer := rpc.NewServer(rpc.WithLogger(logger), rpc.WithConcurrency(cfg.Int("tool_concurrency", config.DefaultToolConcurrency)))
	for _, t := range orchestrator.Tools(orch, pl, classifier) {
		if err := rpcServer.Register(t); err != nil {
			log.Fatalf(ctx, err, "failed to register tool %q", t.Name)
		}
	}
	for _, t := range messaging.Tools(msgMgr) {
		if err := rpcServer.Register(t); err != nil {
			log.Fatalf(ctx, err, "failed to register tool %q", t.Name)
		}
	}
	for _, t := range audiosync.Tools(syncEngine) {
		if err := rpcServer.Register(t); err != nil {
			log.Fatalf(ctx, err, "failed to register tool %q", t.Name)
		}
	}

	rpcMux := http.NewServeMux()
	rpcMux.Handle("/rpc", transport.Handler(rpcServer))
	rpcMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.UpgradeWebSocket(w, r)
		if err != nil {
			logger.Warn(r.Context(), "orchestrator websocket upgrade failed", "error", err)
			return
		}
		if err := rpcServer.Serve(r.Context(), conn); err != nil {
			logger.Warn(r.Context(), "orchestrator websocket session ended", "error", err)
		}
	})
	rpcLn, err := net.Listen("tcp", *rpcAddrF)
	if err != nil {
		log.Fatalf(ctx, err, "failed to listen on %s", *rpcAddrF)
	}
	rpcHTTP := &http.Server{Handler: rpcMux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := rpcHTTP.Serve(rpcLn); err != nil && err != http.ErrServerClosed {
			logger.Warn(ctx, "orchestrator rpc server failed", "error", err)
		}
	}()

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() { defer wg.Done(); pl.Run(runCtx) }()

	wg.Add(1)
	go func() { defer wg.Done(); registry.Run(runCtx) }()

	wg.Add(1)
	go func() { defer wg.Done(); sessions.Run(runCtx, cfg.Duration("session_sweep_interval", 5*time.Minute)) }()

	msgMgr.Start(runCtx)

	wg.Add(1)
	go func() { defer wg.Done(); syncEngine.Run(runCtx) }()

	for _, a := range []struct {
		name string
		adapter interface {
			Start(context.Context) error
			Stop(context.Context) error
		}
	}{
		{"text", textAdapter},
		{"web", webAdapter},
		{"mobile", mobileAdapter},
	} {
		if err := a.adapter.Start(runCtx); err != nil {
			log.Fatalf(ctx, err, "failed to start %s adapter", a.name)
		}
	}

	log.Print(ctx, log.KV{K: "status", V: "ai-servis orchestrator running"})
	log.Printf(ctx, "exiting (%v)", <-errc)

	cancel()
	pl.Stop()
	registry.Stop()
	sessions.Stop()
	msgMgr.Stop()
	syncEngine.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = rpcHTTP.Shutdown(shutdownCtx)
	_ = textAdapter.Stop(shutdownCtx)
	_ = webAdapter.Stop(shutdownCtx)
	_ = mobileAdapter.Stop(shutdownCtx)

	wg.Wait()
	log.Printf(ctx, "exited")
}
