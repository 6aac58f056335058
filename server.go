package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/session"
)

// sessionServer runs the HTTP surface of one session. When it stops it
// cancels a model acquisition that is still running and logs the state the
// session ended in.
type sessionServer struct {
	http            *http.Server
	logger          *zap.Logger
	shutdownTimeout time.Duration

	stopLoading context.CancelFunc
	snapshot    func() session.State
}

// run serves until the listener fails or a shutdown signal arrives. A nil
// listener listens on the server address; nil signals means SIGINT/SIGTERM.
func (s *sessionServer) run(listener net.Listener, signals <-chan os.Signal) error {
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}
	defer s.finish()

	errCh := make(chan error, 1)
	go func() { errCh <- s.serve(listener) }()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-signals:
		if !ok {
			return <-errCh
		}
		s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func (s *sessionServer) serve(listener net.Listener) error {
	var err error
	if listener != nil {
		err = s.http.Serve(listener)
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *sessionServer) finish() {
	if s.stopLoading != nil {
		s.stopLoading()
	}
	if s.snapshot == nil {
		return
	}
	state := s.snapshot()
	fields := []zap.Field{
		zap.Stringer("status", state.Status),
		zap.Stringer("model", state.Model),
		zap.Uint64("generation", state.Generation),
	}
	if pred, ok := state.Prediction(); ok {
		fields = append(fields, zap.String("label", pred.Label), zap.Float64("score", pred.Score))
	}
	s.logger.Info("session closed", fields...)
}
