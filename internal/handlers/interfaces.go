package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/sse"
	"github.com/shopspring/decimal"
)

// CollectionServiceInterface defines the methods used by handlers from CollectionService
type CollectionServiceInterface interface {
	CreateCollection(ctx context.Context, total decimal.Decimal, description, paymentDetails string) (*services.Outcome, error)
	RecordChoice(ctx context.Context, collectionID uuid.UUID, participantID int64, choice lifecycle.Choice) (*services.Outcome, error)
	ForceFinalize(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)
	ForceAdvanceToPayment(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)
	ForceComplete(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)
	Cancel(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)
	Active(ctx context.Context) (*models.Collection, []*models.Obligation, error)
	LastCompleted(ctx context.Context) (*models.Collection, []*models.Obligation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Collection, []*models.Obligation, error)
}

// SSEHubInterface defines the methods used by handlers from the SSE hub
type SSEHubInterface interface {
	Register(client *sse.Client)
	Unregister(client *sse.Client)
}
