package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/internal/infrastructure/registry"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

const constituencyPageSize = 100

// RegistrySyncer keeps the local election and constituency reference
// tables aligned with the registry API. It only ever touches reference
// fields; cumulative metrics are owned by the calculator.
type RegistrySyncer struct {
	client         *registry.Client
	elections      domain.ElectionRepository
	constituencies domain.ConstituencyRepository
	config         *config.Registry
	logger         *logger.Logger

	syncTicker  *time.Ticker
	stopSync    chan struct{}
	syncStarted bool
	mu          sync.RWMutex
}

func NewRegistrySyncer(
	client *registry.Client,
	elections domain.ElectionRepository,
	constituencies domain.ConstituencyRepository,
	config *config.Registry,
	logger *logger.Logger,
) *RegistrySyncer {
	return &RegistrySyncer{
		client:         client,
		elections:      elections,
		constituencies: constituencies,
		config:         config,
		logger:         logger,
		stopSync:       make(chan struct{}),
	}
}

func (s *RegistrySyncer) Start() error {
	s.mu.Lock()
	if s.syncStarted {
		s.mu.Unlock()
		return fmt.Errorf("registry sync already started")
	}
	s.syncStarted = true
	s.mu.Unlock()

	s.syncTicker = time.NewTicker(s.config.SyncInterval)

	go s.syncLoop()

	s.logger.Infow("Registry sync started", "interval", s.config.SyncInterval)
	return nil
}

func (s *RegistrySyncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.syncStarted {
		return
	}

	close(s.stopSync)
	if s.syncTicker != nil {
		s.syncTicker.Stop()
	}
	s.syncStarted = false
	s.logger.Info("Registry sync stopped")
}

func (s *RegistrySyncer) syncLoop() {
	s.syncOnce()

	for {
		select {
		case <-s.syncTicker.C:
			s.syncOnce()
		case <-s.stopSync:
			return
		}
	}
}

func (s *RegistrySyncer) syncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.SyncNow(ctx); err != nil {
		s.logger.Errorw("Registry sync failed", "error", err)
	}
}

// SyncNow pulls every election and its constituencies and upserts them.
func (s *RegistrySyncer) SyncNow(ctx context.Context) error {
	elections, err := s.client.GetElections(ctx, registry.QueryParams{})
	if err != nil {
		return fmt.Errorf("failed to list elections: %w", err)
	}

	synced := 0
	for _, record := range elections {
		election := record.ToDomain()
		if err := s.elections.Upsert(ctx, &election); err != nil {
			return fmt.Errorf("failed to upsert election %s: %w", election.ID, err)
		}

		constituencies, err := s.client.GetAllConstituencies(ctx, election.ID, constituencyPageSize)
		if err != nil {
			return fmt.Errorf("failed to list constituencies for %s: %w", election.ID, err)
		}
		for _, c := range constituencies {
			constituency := c.ToDomain()
			if err := s.constituencies.Upsert(ctx, &constituency); err != nil {
				return fmt.Errorf("failed to upsert constituency %s: %w", constituency.ID, err)
			}
			synced++
		}
	}

	s.logger.Infow("Registry sync complete", "elections", len(elections), "constituencies", synced)
	return nil
}
