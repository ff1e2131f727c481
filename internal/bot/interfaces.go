package bot

import (
	"context"

	"github.com/google/uuid"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/shopspring/decimal"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type CollectionEngine interface {
	CreateCollection(ctx context.Context, total decimal.Decimal, description, paymentDetails string) (*services.Outcome, error)
	RecordChoice(ctx context.Context, collectionID uuid.UUID, participantID int64, choice lifecycle.Choice) (*services.Outcome, error)
	ForceFinalize(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)
	ForceAdvanceToPayment(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)
	Cancel(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)
	Active(ctx context.Context) (*models.Collection, []*models.Obligation, error)
	LastCompleted(ctx context.Context) (*models.Collection, []*models.Obligation, error)
}

type UserDirectory interface {
	GetOrCreate(ctx context.Context, telegramID int64, username, firstName string, isAdmin bool) (*models.User, bool, error)
	Get(ctx context.Context, telegramID int64) (*models.User, error)
	ListExcept(ctx context.Context, telegramID int64) ([]models.User, error)
	Delete(ctx context.Context, telegramID int64) error
}

type ConfigStore interface {
	Add(ctx context.Context, userID int64, name, text string) (*models.UserConfig, error)
	ListByUser(ctx context.Context, userID int64) ([]models.UserConfig, error)
	Get(ctx context.Context, id int64) (*models.UserConfig, error)
	Update(ctx context.Context, id int64, name string, text *string) (*models.UserConfig, error)
	Delete(ctx context.Context, id int64) error
}
