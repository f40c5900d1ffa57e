package pdfqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/events"
	"github.com/helixir/paper-discovery-service/internal/observability"
	"github.com/helixir/paper-discovery-service/internal/pdf"
	"github.com/helixir/paper-discovery-service/internal/repository"
)

const (
	defaultWorkers      = 3
	defaultMaxAttempts  = 3
	defaultPollInterval = 2 * time.Second

	progressDownloaded = 40
	progressExtracted  = 80

	chunkSize = 2000
)

// Pool processes PDF acquisition jobs: claim, download, extract, persist.
// Failed jobs return to the queue until the attempt budget runs out, then
// they are poisoned. Permanent download errors consume the same budget: a
// gone URL may still succeed later through the open-access lookup once the
// paper record gains a DOI.
type Pool struct {
	jobs       repository.JobRepository
	papers     repository.PaperRepository
	downloader *pdf.Downloader
	chain      *Chain
	sink       events.Sink
	metrics    *observability.Metrics
	logger     zerolog.Logger
	cfg        config.PDFQueueConfig

	wg sync.WaitGroup
}

// NewPool creates a worker pool. The sink may be nil.
func NewPool(
	jobs repository.JobRepository,
	papers repository.PaperRepository,
	downloader *pdf.Downloader,
	chain *Chain,
	sink events.Sink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg config.PDFQueueConfig,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Pool{
		jobs:       jobs,
		papers:     papers,
		downloader: downloader,
		chain:      chain,
		sink:       sink,
		metrics:    metrics,
		logger:     logger.With().Str("component", "pdf_worker_pool").Logger(),
		cfg:        cfg,
	}
}

// Run starts the worker loops and blocks until ctx is cancelled and all
// in-flight jobs finish.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info().Int("workers", p.cfg.Workers).Msg("starting pdf workers")

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(ctx, id)
		}(i)
	}

	p.wg.Wait()
	p.logger.Info().Msg("pdf workers stopped")
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	logger := p.logger.With().Int("worker", id).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.jobs.ClaimNext(ctx, p.cfg.MaxAttempts)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.cfg.PollInterval):
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("claim failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		p.process(ctx, job, logger)
	}
}

// process runs one claimed job to a terminal or retryable state.
func (p *Pool) process(ctx context.Context, job *domain.PDFJob, logger zerolog.Logger) {
	start := time.Now()
	logger = logger.With().
		Str("job_id", job.ID.String()).
		Str("paper_id", job.PaperID.String()).
		Int("attempt", job.Attempts).
		Logger()
	logger.Info().Str("pdf_url", job.PDFURL).Msg("processing pdf job")

	p.metrics.JobTransitions.WithLabelValues(string(domain.JobStatusProcessing)).Inc()
	p.publish(domain.NewJobStatusEvent(domain.EventTypeJobStarted, job, ""))

	extraction, meta, err := p.acquire(ctx, job)
	if err != nil {
		p.fail(ctx, job, err, logger)
		p.metrics.JobDuration.Observe(time.Since(start).Seconds())
		return
	}

	if err := p.persistResult(ctx, job, extraction, meta); err != nil {
		p.fail(ctx, job, fmt.Errorf("persist extraction: %w", err), logger)
		p.metrics.JobDuration.Observe(time.Since(start).Seconds())
		return
	}

	completed, err := p.jobs.Transition(ctx, repository.JobTransition{
		JobID:      job.ID,
		From:       domain.JobStatusProcessing,
		To:         domain.JobStatusCompleted,
		Method:     extraction.Method,
		Confidence: extraction.Confidence,
	})
	if err != nil {
		logger.Error().Err(err).Msg("complete transition failed")
		p.metrics.JobDuration.Observe(time.Since(start).Seconds())
		return
	}

	p.metrics.JobTransitions.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	p.metrics.JobDuration.Observe(time.Since(start).Seconds())
	p.publish(domain.NewJobStatusEvent(domain.EventTypeJobCompleted, completed, ""))

	logger.Info().
		Str("method", string(extraction.Method)).
		Str("confidence", string(extraction.Confidence)).
		Dur("duration", time.Since(start)).
		Msg("pdf job completed")
}

// acquire downloads the PDF and runs the extraction chain. A failed download
// is not fatal on its own: strategies that do not need the bytes, like the
// open-access lookup, still get a chance unless the failure is permanent.
func (p *Pool) acquire(ctx context.Context, job *domain.PDFJob) (*Extraction, *domain.PDFMetadata, error) {
	paper, err := p.papers.GetByID(ctx, job.PaperID)
	if err != nil {
		return nil, nil, fmt.Errorf("load paper: %w", err)
	}

	var content []byte
	meta := &domain.PDFMetadata{URL: job.PDFURL}

	result, downloadErr := p.downloader.Download(ctx, job.PDFURL)
	if downloadErr == nil {
		content = result.Content
		meta.SizeBytes = result.SizeBytes
		meta.ContentHash = result.ContentHash
		p.setProgress(ctx, job, progressDownloaded)
	} else if pdf.IsPermanent(downloadErr) && paper.DOI == "" {
		return nil, nil, downloadErr
	}

	extraction, err := p.chain.Extract(ctx, Input{Job: job, DOI: paper.DOI, Content: content})
	if err != nil {
		if downloadErr != nil {
			return nil, nil, fmt.Errorf("%w (download: %s)", err, downloadErr)
		}
		return nil, nil, err
	}

	meta.ExtractionMethod = extraction.Method
	meta.Confidence = extraction.Confidence
	meta.DownloadedAt = time.Now().UTC()
	p.setProgress(ctx, job, progressExtracted)

	return extraction, meta, nil
}

// persistResult records extraction metadata on the paper and, for
// full-fidelity papers, replaces its content chunks with the new text.
func (p *Pool) persistResult(ctx context.Context, job *domain.PDFJob, extraction *Extraction, meta *domain.PDFMetadata) error {
	if err := p.papers.UpdatePDFMetadata(ctx, job.PaperID, meta); err != nil {
		return err
	}

	paper, err := p.papers.GetByID(ctx, job.PaperID)
	if err != nil {
		return err
	}
	if paper.Fidelity != domain.FidelityFull {
		return nil
	}

	return p.papers.ReplaceChunks(ctx, job.PaperID, chunkText(job.PaperID, extraction.Text))
}

// fail moves the job to failed and, when the attempt budget is spent, on to
// poisoned.
func (p *Pool) fail(ctx context.Context, job *domain.PDFJob, cause error, logger zerolog.Logger) {
	logger.Warn().Err(cause).Msg("pdf job failed")

	failed, err := p.jobs.Transition(ctx, repository.JobTransition{
		JobID: job.ID,
		From:  domain.JobStatusProcessing,
		To:    domain.JobStatusFailed,
		Error: cause.Error(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("fail transition failed")
		return
	}

	p.metrics.JobTransitions.WithLabelValues(string(domain.JobStatusFailed)).Inc()

	if failed.Attempts < p.cfg.MaxAttempts {
		p.publish(domain.NewJobStatusEvent(domain.EventTypeJobFailed, failed, cause.Error()))
		return
	}

	poisoned, err := p.jobs.Transition(ctx, repository.JobTransition{
		JobID: job.ID,
		From:  domain.JobStatusFailed,
		To:    domain.JobStatusPoisoned,
		Error: cause.Error(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("poison transition failed")
		return
	}

	p.metrics.JobTransitions.WithLabelValues(string(domain.JobStatusPoisoned)).Inc()
	p.metrics.JobsPoisoned.Inc()
	p.publish(domain.NewJobStatusEvent(domain.EventTypeJobPoisoned, poisoned, cause.Error()))

	logger.Error().
		Err(cause).
		Int("attempts", poisoned.Attempts).
		Bool("permanent", pdf.IsPermanent(cause)).
		Msg("pdf job poisoned")
}

func (p *Pool) setProgress(ctx context.Context, job *domain.PDFJob, progress int) {
	if err := p.jobs.SetProgress(ctx, job.ID, progress); err != nil {
		p.logger.Debug().Err(err).Str("job_id", job.ID.String()).Msg("progress update failed")
		return
	}
	job.Progress = progress
	p.publish(domain.NewJobStatusEvent(domain.EventTypeJobProgress, job, ""))
}

func (p *Pool) publish(event domain.JobStatusEvent) {
	if p.sink == nil {
		return
	}
	p.sink.Publish(event)
}

// chunkText splits extracted text into fixed-size retrieval chunks, breaking
// on whitespace near the boundary when possible.
func chunkText(paperID uuid.UUID, text string) []domain.ContentChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []domain.ContentChunk
	index := 0
	for len(text) > 0 {
		size := chunkSize
		if size > len(text) {
			size = len(text)
		} else if cut := strings.LastIndexByte(text[:size], ' '); cut > chunkSize/2 {
			size = cut
		}

		chunks = append(chunks, domain.ContentChunk{
			PaperID: paperID,
			Index:   index,
			Content: strings.TrimSpace(text[:size]),
			Section: "body",
		})
		text = strings.TrimSpace(text[size:])
		index++
	}
	return chunks
}
