package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kelasku-dev/kelasku-go-api/internal/dto"
	"github.com/kelasku-dev/kelasku-go-api/internal/repository"
	"github.com/kelasku-dev/kelasku-go-api/internal/service"
	"github.com/kelasku-dev/kelasku-go-api/internal/utils"
)

const emptyCommitSHA = "0000000000000000000000000000000000000000"

// WebhookHandler receives code-host push deliveries and exposes the operator
// retry surface. The receiver endpoint carries no JWT: the per-submission HMAC
// signature is its authentication.
type WebhookHandler struct {
	pipeline   service.ReviewPipelineService
	deliveries repository.WebhookDeliveryRepository
	logger     zerolog.Logger
}

// NewWebhookHandler builds a webhook handler instance.
func NewWebhookHandler(pipeline service.ReviewPipelineService, deliveries repository.WebhookDeliveryRepository, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline:   pipeline,
		deliveries: deliveries,
		logger:     logger.With().Str("component", "webhook_handler").Logger(),
	}
}

// Register attaches the public receiver route.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/:provider", h.receive)
}

// RegisterOperator attaches the JWT-protected retry and triage routes.
func (h *WebhookHandler) RegisterOperator(router fiber.Router) {
	router.Post("/retry/:id", h.retry)
	router.Get("/failed", h.listFailed)
	router.Get("/deliveries", h.listDeliveries)
}

// receive acknowledges every delivery immediately and hands the heavy work to
// a goroutine. The sender only needs to know the payload arrived; analysis
// outcomes are reported through submission state, never the webhook response.
func (h *WebhookHandler) receive(c *fiber.Ctx) error {
	provider := c.Params("provider")
	headers := dto.WebhookHeaders{
		Event:      c.Get("X-GitHub-Event"),
		DeliveryID: c.Get("X-GitHub-Delivery"),
		Signature:  c.Get("X-Hub-Signature-256"),
	}

	ack := dto.WebhookAckResponse{Received: true, DeliveryID: headers.DeliveryID}
	logger := requestLogger(h.logger, c)

	if headers.Event != "push" {
		logger.Debug().Str("event", headers.Event).Str("delivery_id", headers.DeliveryID).Msg("non-push event ignored")
		return utils.SendSuccess(c, "event ignored", ack)
	}

	var payload dto.PushEventPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		logger.Warn().Err(err).Str("delivery_id", headers.DeliveryID).Msg("unparseable push payload")
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if len(payload.Commits) == 0 || payload.After == "" || payload.After == emptyCommitSHA {
		// Branch deletions and empty pushes carry nothing to analyse.
		logger.Debug().Str("delivery_id", headers.DeliveryID).Str("ref", payload.Ref).Msg("push without commits ignored")
		return utils.SendSuccess(c, "nothing to process", ack)
	}

	// The request buffer is recycled once this handler returns; the goroutine
	// needs its own copy of the raw body for signature verification.
	rawBody := append([]byte(nil), c.Body()...)

	go h.pipeline.HandlePush(context.Background(), provider, headers, rawBody, payload)

	return utils.SendSuccess(c, "delivery accepted", ack)
}

func (h *WebhookHandler) retry(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.pipeline.Retry(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "submission not found")
		case errors.Is(err, service.ErrAlreadyProcessing):
			return utils.SendError(c, fiber.StatusBadRequest, "submission is already processing")
		default:
			h.logger.Error().Err(err).Uint("submission_id", id).Msg("retry admission failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
		}
	}

	go h.pipeline.Process(context.Background(), submission.ID, submission.CommitSHA)

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "retry accepted", dto.RetryAcceptedResponse{Status: "processing"})
}

func (h *WebhookHandler) listFailed(c *fiber.Ctx) error {
	var maxAge time.Duration
	if raw := c.Query("maxAge"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid maxAge")
		}
		maxAge = time.Duration(hours) * time.Hour
	}

	failed, err := h.pipeline.ListFailed(c.Context(), maxAge)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed submission listing failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "failed submissions retrieved", failed)
}

func (h *WebhookHandler) listDeliveries(c *fiber.Ctx) error {
	repositoryName := c.Query("repository")
	if repositoryName == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "repository is required")
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	deliveries, err := h.deliveries.ListByRepository(c.Context(), repositoryName, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("repository", repositoryName).Msg("delivery listing failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "deliveries retrieved", deliveries)
}
