package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Factoria/internal/commander"
	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
)

// OrderSubmitter публикует сообщение заказа на шину.
type OrderSubmitter interface {
	PublishOrder(ctx context.Context, body []byte) error
}

// HistoryReader читает сохранённую историю команд.
type HistoryReader interface {
	ListRecent(ctx context.Context, lineID string, limit int) ([]domain.CommandRecord, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	dir       *directory.Directory
	fleet     *commander.Fleet
	store     HistoryReader
	submitter OrderSubmitter
	logger    *slog.Logger
	now       func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Directory *directory.Directory
	Fleet     *commander.Fleet

	// Store — постоянная история; nil — только история в памяти.
	Store HistoryReader

	// Submitter — шина для новых заказов; nil — заказ сразу
	// назначается через каталог.
	Submitter OrderSubmitter

	Logger *slog.Logger

	// Clock (default: time.Now)
	Clock func() time.Time
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Handler{
		dir:       cfg.Directory,
		fleet:     cfg.Fleet,
		store:     cfg.Store,
		submitter: cfg.Submitter,
		logger:    logger,
		now:       now,
	}
}
