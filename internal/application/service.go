package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ludentes/RooDemo-sub001/internal/aggregation"
	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/internal/ingestion"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"github.com/Ludentes/RooDemo-sub001/pkg/metrics"
)

// Service ties the ingestion pipeline to storage, the update queue, and
// the statistics cache. It is what the HTTP layer and the filesystem
// watcher call into.
type Service struct {
	parser       *ingestion.Parser
	validator    *ingestion.Validator
	batch        *ingestion.BatchProcessor
	calculator   *aggregation.MetricsCalculator
	cache        aggregation.Cache
	transactions domain.TransactionRepository
	cfg          *config.Ingestion
	cacheTTL     time.Duration
	logger       *logger.Logger
}

func NewService(
	parser *ingestion.Parser,
	validator *ingestion.Validator,
	batch *ingestion.BatchProcessor,
	calculator *aggregation.MetricsCalculator,
	cache aggregation.Cache,
	transactions domain.TransactionRepository,
	cfg *config.Ingestion,
	cacheTTL time.Duration,
	logger *logger.Logger,
) *Service {
	return &Service{
		parser:       parser,
		validator:    validator,
		batch:        batch,
		calculator:   calculator,
		cache:        cache,
		transactions: transactions,
		cfg:          cfg,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// ProcessUpload runs one export file through the full pipeline: metadata
// extraction, constituency check, parsing, validation, and batch
// persistence. Invalid rows are reported, not fatal.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, source domain.TransactionSource) (*domain.ProcessingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FileTimeout)
	defer cancel()

	meta, err := ingestion.ExtractMetadata(filename)
	if err != nil {
		metrics.RecordFileProcessed(string(source), "rejected")
		return nil, err
	}
	meta.Source = source

	if _, err := s.validator.ValidateConstituency(ctx, meta.ConstituencyID); err != nil {
		metrics.RecordFileProcessed(string(source), "rejected")
		return nil, err
	}

	rows, err := s.parser.Parse(meta.Filename, bytes.NewReader(data))
	if err != nil {
		metrics.RecordFileProcessed(string(source), "error")
		return nil, err
	}

	batchResult, err := s.batch.Process(ctx, rows, meta)
	if err != nil {
		metrics.RecordFileProcessed(string(source), "error")
		return nil, err
	}

	metrics.RecordFileProcessed(string(source), "success")

	result := &domain.ProcessingResult{
		Filename:              meta.Filename,
		ConstituencyID:        meta.ConstituencyID,
		Date:                  meta.Date.Format("2006-01-02"),
		HourRange:             meta.HourRange,
		TransactionsProcessed: batchResult.Persisted,
		DuplicatesSkipped:     batchResult.Skipped,
		RowsSkipped:           rows.Skipped(),
		Rejected:              batchResult.Rejected,
	}

	s.logger.Infow("Processed file",
		"filename", meta.Filename,
		"constituency", meta.ConstituencyID,
		"persisted", batchResult.Persisted,
		"duplicates", batchResult.Skipped,
		"rejected", len(batchResult.Rejected),
		"source", source,
	)

	return result, nil
}

// ProcessDirectory walks a directory tree and processes every CSV export
// in it, a bounded number of files at a time. One bad file never stops
// the rest; failures are collected into the result.
func (s *Service) ProcessDirectory(ctx context.Context, path string) (*domain.DirectoryProcessingResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryProcessing, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrDirectoryProcessing, path)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".csv") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryProcessing, err)
	}

	result := &domain.DirectoryProcessingResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelFiles)

	for _, file := range files {
		file := file
		g.Go(func() error {
			data, err := os.ReadFile(file)
			if err == nil {
				var processed *domain.ProcessingResult
				processed, err = s.ProcessUpload(gctx, file, data, domain.SourceBatch)
				if err == nil {
					mu.Lock()
					result.FilesProcessed++
					result.TransactionsProcessed += processed.TransactionsProcessed
					result.DuplicatesSkipped += processed.DuplicatesSkipped
					mu.Unlock()
					return nil
				}
			}

			s.logger.Warnw("Failed to process file", "file", file, "error", err)
			mu.Lock()
			result.Failures = append(result.Failures, domain.FileFailure{
				Filename: file,
				Error:    err.Error(),
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryProcessing, err)
	}

	s.logger.Infow("Processed directory",
		"path", path,
		"files", result.FilesProcessed,
		"transactions", result.TransactionsProcessed,
		"failures", len(result.Failures),
	)

	return result, nil
}

// GetStatistics serves the metrics view read-through: cached responses
// are returned as-is, misses are computed, cached under the constituency
// and election tags, and returned.
func (s *Service) GetStatistics(ctx context.Context, constituencyID string, granularity domain.Granularity, from, to time.Time) (*domain.ConstituencyMetrics, error) {
	key := aggregation.CacheKey(constituencyID, granularity, from, to)

	if cached, ok := s.cache.Get(ctx, key); ok {
		var view domain.ConstituencyMetrics
		if err := json.Unmarshal(cached, &view); err == nil {
			metrics.CacheHits.Inc()
			return &view, nil
		}
		// A corrupt entry falls through to recomputation.
	}
	metrics.CacheMisses.Inc()

	view, err := s.calculator.Query(ctx, constituencyID, granularity, from, to)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(view); err == nil {
		tags := []string{
			aggregation.ConstituencyTag(view.ConstituencyID),
			aggregation.ElectionTag(view.ElectionID),
		}
		if err := s.cache.Set(ctx, key, encoded, tags, s.cacheTTL); err != nil {
			s.logger.Warnw("Failed to cache statistics", "key", key, "error", err)
		}
	}

	return view, nil
}

// GetStats reports service-level counters for the operational endpoint.
func (s *Service) GetStats(ctx context.Context) (map[string]interface{}, error) {
	count, err := s.transactions.Count(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]interface{})
	stats["total_transactions"] = count
	return stats, nil
}
