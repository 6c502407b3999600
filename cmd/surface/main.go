// Command surface runs one role client (admin, restaurant, agent or customer)
// against the coordination service and logs what it sees.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deliverySync/internal/backend"
	"deliverySync/internal/config"
	"deliverySync/internal/logger"
	"deliverySync/internal/session"
	"deliverySync/internal/surface"
)

func main() {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	sess, err := session.FromToken(cfg.Surface.Token)
	if err != nil {
		log.Error("start session", "error", err)
		os.Exit(1)
	}
	if cfg.Surface.Role != "" && string(sess.Role()) != cfg.Surface.Role {
		log.Error("token role does not match SURFACE_ROLE", "token", sess.Role(), "configured", cfg.Surface.Role)
		os.Exit(1)
	}
	if cfg.Surface.ID != 0 && sess.SubjectID() != cfg.Surface.ID {
		log.Error("token subject does not match SURFACE_ID", "token", sess.SubjectID(), "configured", cfg.Surface.ID)
		os.Exit(1)
	}
	log = log.With("role", sess.Role(), "subject", sess.SubjectID())

	client, err := backend.New(cfg.Surface.BackendURL, sess, backend.WithTimeout(cfg.Surface.HTTPTimeout))
	if err != nil {
		log.Error("backend client", "error", err)
		os.Exit(1)
	}
	stream, err := client.NewEventStream(cfg.Surface.EventsURL)
	if err != nil {
		log.Error("event stream", "error", err)
		os.Exit(1)
	}

	s, err := surface.New(sess, client, surface.Options{
		ThrottleWindow: cfg.Surface.ThrottleWindow,
		Policy:         cfg.Assign.Policy,
		Grace:          cfg.Assign.Grace,
		RequestTimeout: cfg.Surface.HTTPTimeout,
		CascadeOrder:   cfg.Surface.CascadeOrder,
		Events:         stream,
		Logger:         logger.Component(log, "surface"),
	})
	if err != nil {
		log.Error("create surface", "error", err)
		os.Exit(1)
	}
	if err := s.Start(); err != nil {
		log.Error("start surface", "error", err)
		os.Exit(1)
	}
	for _, id := range cfg.Surface.TrackOrders {
		if err := s.Track(id); err != nil {
			log.Warn("track order", "order_id", id, "error", err)
		}
	}
	log.Info("surface running", "backend", client.BaseURL(), "pollers", s.ActivePollers())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			for _, id := range cfg.Surface.TrackOrders {
				if line, ok := s.Summary(id); ok {
					log.Info("order", "order_id", id, "summary", line)
				}
			}
		case <-sigc:
			s.Logout()
			log.Info("surface stopped")
			return
		}
	}
}
