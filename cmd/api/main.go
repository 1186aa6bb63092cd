package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-review-go/internal/backend"
	"call-review-go/internal/config"
	"call-review-go/internal/feed"
	"call-review-go/internal/feedback"
	"call-review-go/internal/logger"
	"call-review-go/internal/metrics"
	"call-review-go/internal/playback"
	"call-review-go/internal/review"
	"call-review-go/internal/server"
)

// backendAPI is everything the service needs from the escalations backend.
type backendAPI interface {
	feed.Source
	review.DetailSource
	server.WorstCaller
	feedback.Sender
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	log := logger.New()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.WithField("service", "call-review-go").Info("starting service")
	metrics.Register()

	var (
		api    backendAPI
		loader playback.Loader
	)
	if cfg.UseMockBackend {
		log.Info("using mock backend")
		api = backend.NewMock()
		loader = playback.StaticLoader{}
	} else {
		log.WithField("api_base_url", cfg.APIBaseURL).Info("using escalations backend")
		api = backend.New(cfg.APIBaseURL, cfg.HTTPTimeout, log.Component("backend"))
		loader = playback.NewHTTPLoader(cfg.HTTPTimeout)
	}

	poller := feed.NewPoller(api, cfg.PollInterval, log.Entry)
	adapter := playback.NewAdapter(loader, cfg.PositionTick, log.Entry)
	drafts := feedback.NewDrafts()
	reviewer := review.New(poller, adapter, drafts, log.Entry).WithDetail(api)
	poller.Subscribe(func(s feed.Snapshot) { reviewer.SyncFeed(s) })

	remarks := feedback.NewLog()
	submitter := feedback.NewSubmitter(api, drafts, remarks, cfg.AckDuration, log.Entry)

	srv := server.New(server.Deps{
		Feed:      poller,
		Reviewer:  reviewer,
		Drafts:    drafts,
		Submitter: submitter,
		Log:       remarks,
		Worst:     api,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	poller.Start(ctx)

	httpSrv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.Addr()).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	poller.Stop()
	reviewer.Collapse()
	submitter.Close()
	log.Info("stopped")
}
