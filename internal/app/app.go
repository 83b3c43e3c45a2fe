// -----------------------------------------------------------------------
// App - Dependency wiring for the indago service
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/handlers"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/services/analysis"
	"github.com/ternarybob/indago/internal/services/audit"
	"github.com/ternarybob/indago/internal/services/content"
	"github.com/ternarybob/indago/internal/services/extract"
	"github.com/ternarybob/indago/internal/services/llm"
	"github.com/ternarybob/indago/internal/services/poller"
	"github.com/ternarybob/indago/internal/services/report"
	badgerstorage "github.com/ternarybob/indago/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	LLMService    interfaces.LLMService
	VisionService interfaces.VisionService

	AuditService  *audit.Service
	ReportService *report.Service
	Poller        *poller.Poller

	AuditHandler *handlers.AuditHandler
	APIHandler   *handlers.APIHandler

	ctx       context.Context
	cancelCtx context.CancelFunc
}

// New creates and wires the application from configuration
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	storageManager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	llmService, err := llm.NewLLMService(ctx, config, logger)
	if err != nil {
		cancel()
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	// OCR needs a vision-capable model. When the chat provider already is
	// one, reuse it; otherwise stand up Gemini just for vision, if a key
	// is configured.
	var visionService interfaces.VisionService
	if vision, ok := llmService.(interfaces.VisionService); ok {
		visionService = vision
	} else if config.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiService(ctx, &config.Gemini, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Vision service unavailable, image files will be skipped")
		} else {
			visionService = gemini
		}
	} else {
		logger.Warn().Msg("No vision-capable model configured, image files will be skipped")
	}

	retriever := content.NewRetriever(storageManager.BlobStorage(), logger)
	extractor := extract.NewDispatcher(visionService, logger)
	analysisClient := analysis.NewClient(&config.Analysis, logger)

	auditService := audit.NewService(
		storageManager,
		retriever,
		extractor,
		llmService,
		analysisClient,
		&config.Audit,
		logger,
	)

	reportService := report.NewService(logger)
	jobPoller := poller.NewPoller(auditService, storageManager.JobStorage(), logger)

	return &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		LLMService:     llmService,
		VisionService:  visionService,
		AuditService:   auditService,
		ReportService:  reportService,
		Poller:         jobPoller,
		AuditHandler:   handlers.NewAuditHandler(auditService, reportService, logger),
		APIHandler:     handlers.NewAPIHandler(llmService, logger),
		ctx:            ctx,
		cancelCtx:      cancel,
	}, nil
}

// Start launches background components
func (a *App) Start() error {
	if a.Config.Poller.Enabled {
		if err := a.Poller.Start(a.Config.Poller.Schedule); err != nil {
			return fmt.Errorf("failed to start poller: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Job poller disabled, jobs advance via the run action only")
	}
	return nil
}

// Close shuts down all components
func (a *App) Close() error {
	a.cancelCtx()

	if a.Config.Poller.Enabled {
		a.Poller.Stop()
	}
	if err := a.LLMService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM service close failed")
	}
	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
