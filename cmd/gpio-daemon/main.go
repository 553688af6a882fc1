// Command gpio-daemon is a reference GPIO daemon: a line-delimited JSON
// TCP socket (default port 8081) answering configure/set/get/status
// against a simulated in-memory pin map, grounded on
// gpio_controller.py/hardware_client.py's wire protocol (spec.md §6).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"goa.design/clue/log"
)

type pin struct {
	direction string
	value     int
}

type pinMap struct {
	mu   sync.Mutex
	pins map[int]*pin
}

func newPinMap() *pinMap {
	return &pinMap{pins: make(map[int]*pin)}
}

type request struct {
	Command   string `json:"command"`
	Pin       int    `json:"pin"`
	Direction string `json:"direction"`
	Value     *int   `json:"value"`
}

type pinStatus struct {
	Pin       int    `json:"pin"`
	Direction string `json:"direction"`
	Value     *int   `json:"value,omitempty"`
}

type response struct {
	Status  string      `json:"status"`
	Value   *int        `json:"value,omitempty"`
	Pins    []pinStatus `json:"pins,omitempty"`
	Message string      `json:"message,omitempty"`
}

func errorResponse(msg string) response { return response{Status: "error", Message: msg} }

func (m *pinMap) handle(req request) response {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch req.Command {
	case "configure":
		if req.Direction != "input" && req.Direction != "output" {
			return errorResponse(fmt.Sprintf("invalid direction %q", req.Direction))
		}
		m.pins[req.Pin] = &pin{direction: req.Direction, value: 0}
		return response{Status: "success"}

	case "set":
		p, ok := m.pins[req.Pin]
		if !ok {
			return errorResponse(fmt.Sprintf("pin %d not configured", req.Pin))
		}
		if p.direction != "output" {
			return errorResponse(fmt.Sprintf("pin %d is not an output", req.Pin))
		}
		if req.Value == nil || (*req.Value != 0 && *req.Value != 1) {
			return errorResponse("value must be 0 or 1")
		}
		p.value = *req.Value
		return response{Status: "success"}

	case "get":
		p, ok := m.pins[req.Pin]
		if !ok {
			return errorResponse(fmt.Sprintf("pin %d not configured", req.Pin))
		}
		v := p.value
		return response{Status: "success", Value: &v}

	case "status":
		pins := make([]pinStatus, 0, len(m.pins))
		for id, p := range m.pins {
			v := p.value
			pins = append(pins, pinStatus{Pin: id, Direction: p.direction, Value: &v})
		}
		return response{Status: "success", Pins: pins}

	default:
		return errorResponse(fmt.Sprintf("unknown command %q", req.Command))
	}
}

func serveConn(ctx context.Context, conn net.Conn, pins *pinMap, logger func(msg string, args ...any)) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			data, _ := json.Marshal(errorResponse("invalid json: " + err.Error()))
			conn.Write(append(data, '\n'))
			continue
		}
		resp := pins.handle(req)
		data, err := json.Marshal(resp)
		if err != nil {
			logger("gpio-daemon: marshal response failed", "error", err)
			return
		}
		if _, err := conn.Write(append(data, '\n')); err != nil {
			return
		}
	}
}

func main() {
	addrF := flag.String("addr", ":8081", "listen address")
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	ln, err := net.Listen("tcp", *addrF)
	if err != nil {
		log.Fatalf(ctx, err, "failed to listen on %s", *addrF)
	}

	pins := newPinMap()

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-runCtx.Done():
					return
				default:
					errc <- err
					return
				}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				serveConn(runCtx, conn, pins, func(msg string, args ...any) {
					log.Print(ctx, log.KV{K: "msg", V: msg})
				})
			}()
		}
	}()

	log.Print(ctx, log.KV{K: "status", V: fmt.Sprintf("gpio-daemon listening on %s", *addrF)})
	log.Printf(ctx, "exiting (%v)", <-errc)

	cancel()
	_ = ln.Close()
	wg.Wait()
	log.Printf(ctx, "exited")
}
