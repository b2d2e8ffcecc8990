package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/grid-x/elemer"
	"github.com/grid-x/elemer/logger"
)

func newLogger(level string) (logger.Logger, error) {
	l, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logger.NewSlog(l, false), nil
}

// messagePrinter writes the session messages of one port to w.
type messagePrinter struct {
	mu   *sync.Mutex
	w    io.Writer
	port string
}

func (p messagePrinter) handle(m elemer.Message) {
	if m.Kind == elemer.MessageInfo {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s: %v\n", p.port, m)
}
