package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/pkg/dto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CollectionHandler struct {
	collectionService CollectionServiceInterface
	logger            *zap.Logger
}

func NewCollectionHandler(collectionService CollectionServiceInterface, logger *zap.Logger) *CollectionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectionHandler{
		collectionService: collectionService,
		logger:            logger,
	}
}

func (h *CollectionHandler) Active(c *drift.Context) {
	collection, obligations, err := h.collectionService.Active(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	_ = c.JSON(200, toCollectionResponse(collection, obligations))
}

func (h *CollectionHandler) Last(c *drift.Context) {
	collection, obligations, err := h.collectionService.LastCompleted(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrCollectionNotFound) {
			c.NotFound("no completed collection")
			return
		}
		h.writeError(c, err)
		return
	}
	_ = c.JSON(200, toCollectionResponse(collection, obligations))
}

func (h *CollectionHandler) Get(c *drift.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid collection id")
		return
	}

	collection, obligations, err := h.collectionService.Get(c.Request.Context(), collectionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	_ = c.JSON(200, toCollectionResponse(collection, obligations))
}

func (h *CollectionHandler) Create(c *drift.Context) {
	var req dto.CreateCollectionRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	total, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(req.TotalAmount), ",", "."))
	if err != nil {
		c.BadRequest("total_amount must be a decimal number")
		return
	}

	if strings.TrimSpace(req.Description) == "" {
		c.BadRequest("description is required")
		return
	}

	out, err := h.collectionService.CreateCollection(c.Request.Context(), total, req.Description, req.PaymentDetails)
	if err != nil {
		h.writeError(c, err)
		return
	}

	_ = c.JSON(201, toTransitionResponse(out))
}

func (h *CollectionHandler) RecordChoice(c *drift.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid collection id")
		return
	}

	var req dto.RecordChoiceRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.UserID == 0 {
		c.BadRequest("user_id is required")
		return
	}

	choice, err := lifecycle.ParseChoice(req.Choice)
	if err != nil {
		c.BadRequest("choice must be one of join, decline, confirm, reject, paid")
		return
	}

	out, err := h.collectionService.RecordChoice(c.Request.Context(), collectionID, req.UserID, choice)
	if err != nil {
		h.writeError(c, err)
		return
	}

	_ = c.JSON(200, toTransitionResponse(out))
}

func (h *CollectionHandler) Finalize(c *drift.Context) {
	h.override(c, h.collectionService.ForceFinalize)
}

func (h *CollectionHandler) Advance(c *drift.Context) {
	h.override(c, h.collectionService.ForceAdvanceToPayment)
}

func (h *CollectionHandler) Complete(c *drift.Context) {
	h.override(c, h.collectionService.ForceComplete)
}

func (h *CollectionHandler) Cancel(c *drift.Context) {
	h.override(c, h.collectionService.Cancel)
}

func (h *CollectionHandler) override(c *drift.Context, fn func(ctx context.Context, id uuid.UUID) (*services.Outcome, error)) {
	ctx := c.Request.Context()

	active, _, err := h.collectionService.Active(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out, err := fn(ctx, active.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	_ = c.JSON(200, toTransitionResponse(out))
}

func (h *CollectionHandler) writeError(c *drift.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrInvalidChoice):
		c.BadRequest(err.Error())
	case errors.Is(err, services.ErrNoActiveCollection):
		c.NotFound("no active collection")
	case errors.Is(err, services.ErrCollectionNotFound):
		c.NotFound("collection not found")
	case errors.Is(err, services.ErrNotAParticipant):
		c.NotFound("participant not found")
	case errors.Is(err, services.ErrCollectionAlreadyActive):
		_ = c.JSON(409, map[string]string{
			"code":    "COLLECTION_ALREADY_ACTIVE",
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrCollectionNotActive):
		_ = c.JSON(409, map[string]string{
			"code":    "COLLECTION_NOT_ACTIVE",
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrWrongStage):
		_ = c.JSON(409, map[string]string{
			"code":    "WRONG_STAGE",
			"message": err.Error(),
		})
	default:
		h.logger.Error("collection request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.InternalServerError("failed to process collection")
	}
}

func toCollectionResponse(collection *models.Collection, obligations []*models.Obligation) dto.CollectionResponse {
	collected := decimal.Zero
	participants := make([]dto.ParticipantResponse, 0, len(obligations))
	for _, o := range obligations {
		participants = append(participants, dto.ParticipantResponse{
			UserID:      o.UserID,
			Name:        o.DisplayName,
			Status:      string(o.Status),
			AmountToPay: o.AmountToPay.StringFixed(2),
		})
		if o.Status == models.ParticipantPaid {
			collected = collected.Add(o.AmountToPay)
		}
	}

	return dto.CollectionResponse{
		ID:             collection.ID,
		TotalAmount:    collection.TotalAmount.StringFixed(2),
		Collected:      collected.StringFixed(2),
		Description:    collection.Description,
		PaymentDetails: collection.PaymentDetails,
		Status:         string(collection.Status),
		CreatedAt:      collection.CreatedAt,
		Participants:   participants,
	}
}

func toTransitionResponse(out *services.Outcome) dto.TransitionResponse {
	return dto.TransitionResponse{
		Collection:    toCollectionResponse(out.Collection, out.Obligations),
		From:          string(out.Result.From),
		To:            string(out.Result.To),
		AlreadyMarked: out.Result.AlreadyMarked,
		Recalculated:  out.Result.Recalculated,
		Forced:        out.Result.Forced,
		Notified:      out.Delivery.Sent,
		NotifyFailed:  out.Delivery.Failed,
	}
}
