package server

import (
	"context"
	"net/http"

	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/servex/v2"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/webhook"
)

const (
	webhookRoute = "/webhooks/forge"
	healthRoute  = "/webhooks/forge/health"

	tokenHeader = "X-Forge-Token"
	eventHeader = "X-Forge-Event"
)

// Server exposes the webhook intake endpoint over HTTP.
type Server struct {
	service *webhook.Service
	cfg     Config
	log     logze.Logger
	server  *servex.Server
}

// New creates the HTTP server and registers the webhook routes.
func New(cfg Config, service *webhook.Service) (*Server, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "validate config")
	}

	log := logze.With("module", "server")

	srv, err := servex.NewServer(
		servex.WithReadTimeout(cfg.Timeout),
		servex.WithIdleTimeout(cfg.Timeout*2),
		servex.WithLogger(log),
		servex.WithHealthEndpoint(),
		servex.WithDefaultMetrics(),
		servex.WithCertificate(cfg.Certificate),
	)
	if err != nil {
		return nil, erro.Wrap(err, "failed to create server")
	}

	s := &Server{
		service: service,
		cfg:     cfg,
		log:     log,
		server:  srv,
	}

	srv.HandleFunc(webhookRoute, s.handleWebhook)
	srv.HandleFunc(healthRoute, s.handleHealth)

	return s, nil
}

// Start starts the webhook server.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.EnableHTTPS {
		return s.server.StartHTTPS(s.cfg.Address)
	}
	return s.server.StartHTTP(s.cfg.Address)
}

// Stop stops the webhook server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// acceptedResponse is the reply for a processed merge-request event.
type acceptedResponse struct {
	Success         bool   `json:"success"`
	ReviewID        string `json:"reviewId,omitempty"`
	MergeRequestIID int    `json:"mergeRequestIid"`
	Status          string `json:"status,omitempty"`
}

// ignoredResponse is the reply for events the pipeline does not act on.
type ignoredResponse struct {
	Processed bool `json:"processed"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := servex.NewContext(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, model.MaxWebhookBodySize)

	if err := s.service.Authenticate(r.Header.Get(tokenHeader)); err != nil {
		ctx.Unauthorized(err, "webhook authentication failed")
		return
	}

	if event := r.Header.Get(eventHeader); event != webhook.MergeRequestEventType {
		s.log.Debug("ignoring event", "event", event)
		ctx.Response(http.StatusOK, ignoredResponse{})
		return
	}

	body, err := ctx.Read()
	if err != nil {
		ctx.BadRequest(err, "failed to read webhook body")
		return
	}

	event, err := s.service.ParseEvent(body)
	if err != nil {
		ctx.BadRequest(err, "failed to parse webhook event")
		return
	}

	if !event.ShouldReview() {
		s.log.Debug("skipping merge request event",
			"action", event.ObjectAttributes.Action,
			"wip", event.ObjectAttributes.WorkInProgress,
		)
		ctx.Response(http.StatusOK, ignoredResponse{})
		return
	}

	result, err := s.service.Intake(r.Context(), event)
	if err != nil {
		ctx.InternalServerError(err, "failed to process webhook event")
		return
	}

	ctx.Response(http.StatusOK, acceptedResponse{
		Success:         true,
		ReviewID:        result.ReviewID,
		MergeRequestIID: event.ObjectAttributes.IID,
		Status:          string(result.Status),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	servex.NewContext(w, r).Response(http.StatusOK, healthResponse{Status: "ok"})
}
