package container

import (
	"log/slog"

	"github.com/serenitycare/server/internal/config"
	"github.com/serenitycare/server/internal/gateway"
	"github.com/serenitycare/server/internal/models"
	"github.com/serenitycare/server/internal/notify"
	"github.com/serenitycare/server/internal/services"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container holds all application dependencies
type Container struct {
	Logger *slog.Logger
	Config *config.Config
	// Database client
	MongoDBClient    *mongo.Client
	BookingService   *services.BookingService
	TherapistService *services.TherapistService
}

// NewContainer creates a new dependency injection container
func NewContainer(
	logger *slog.Logger,
	cfg *config.Config,
	mongoDBClient *mongo.Client,
) *Container {
	// Initialize repositories and collaborators
	repo := models.MongodbNewRepo(mongoDBClient)
	gw := gateway.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)
	mailer := notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom, logger)

	bookingService := services.NewBookingService(repo, repo, gw, mailer, logger)
	therapistService := services.NewTherapistService(repo, repo)

	return &Container{
		Logger:           logger,
		Config:           cfg,
		MongoDBClient:    mongoDBClient,
		BookingService:   bookingService,
		TherapistService: therapistService,
	}
}
