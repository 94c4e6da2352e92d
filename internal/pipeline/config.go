package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/delivery"
	"github.com/joseph-ayodele/thesislens/internal/extract"
	"github.com/joseph-ayodele/thesislens/internal/llm"
	"github.com/joseph-ayodele/thesislens/internal/llm/providers"
	"github.com/joseph-ayodele/thesislens/internal/render"
	"github.com/joseph-ayodele/thesislens/internal/repository"
)

// FromConfig wires a Processor from configuration. Email delivery is enabled
// only when the SMTP settings validate. The returned close function releases
// provider connections.
func FromConfig(ctx context.Context, cfg *common.Config, jobs repository.AnalysisJobRepository, logger *slog.Logger) (*Processor, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	catalog, err := llm.DefaultCatalog()
	if err != nil {
		return nil, nil, err
	}
	if !catalog.Has(cfg.LLM.PromptVersion) {
		return nil, nil, common.NewAppError(common.CodeConfig, "unknown PROMPT_VERSION "+cfg.LLM.PromptVersion, common.ErrInvalidInput)
	}
	parser, err := llm.NewParser(llm.ParsePolicy(cfg.Parser.OutOfRangePolicy), logger)
	if err != nil {
		return nil, nil, err
	}

	gen, closeGen, err := providers.New(ctx, cfg.LLM, false, logger)
	if err != nil {
		return nil, nil, err
	}
	jsonGen, closeJSON, err := providers.New(ctx, cfg.LLM, true, logger)
	if err != nil {
		_ = closeGen()
		return nil, nil, err
	}

	var mailer *delivery.Mailer
	if err := cfg.ValidateSMTP(); err != nil {
		logger.Warn("email delivery disabled", "reason", err.Error())
	} else {
		mailer = delivery.NewMailerFromConfig(cfg.SMTP, logger)
		logger.Info("email delivery enabled", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port, "from", cfg.SMTP.From)
	}

	proc := NewProcessor(logger, Deps{
		Extractor:     extract.New(cfg.Extract, logger),
		Catalog:       catalog.WithDefault(cfg.LLM.PromptVersion),
		Generator:     gen,
		JSONGenerator: jsonGen,
		Parser:        parser,
		Renderer: render.NewRenderer(
			render.WithPageSize(cfg.Render.PageSize),
			render.WithPageNumbers(cfg.Render.PageNumbers),
			render.WithLogger(logger),
		),
		Mailer: mailer,
		Jobs:   jobs,
		Model:  cfg.LLM.Model,
	})
	closeFn := func() error {
		return errors.Join(closeGen(), closeJSON())
	}
	return proc, closeFn, nil
}
