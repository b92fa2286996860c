// Package history keeps a durable record of resolved approval requests.
package history

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
)

// Service orchestrates history reads and writes.
type Service struct {
	store *Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewService creates a service backed by <workspace>/state/history.json.
func NewService(workspace string) *Service {
	return &Service{
		store: NewStore(workspace),
		now:   time.Now,
	}
}

// RecordDecision appends the resolved request. Recording the same request
// id again updates the earlier record instead of duplicating it.
func (s *Service) RecordDecision(req approval.Request, decision approval.Decision) (Record, error) {
	requestID := strings.TrimSpace(decision.RequestID)
	if requestID == "" {
		return Record{}, fmt.Errorf("request id is required")
	}

	record := Record{
		RequestID:  requestID,
		SessionID:  req.SessionID,
		ProjectID:  req.ProjectID,
		ToolName:   req.ToolName,
		InputJSON:  req.InputJSON(),
		Status:     StatusForDecision(decision.Kind),
		ReceivedAt: req.ReceivedAt,
		DecidedAt:  decision.DecidedAt,
		DecidedBy:  decision.DecidedBy,
	}
	if record.DecidedAt.IsZero() {
		record.DecidedAt = s.now().UTC()
	}
	if record.Status == StatusExpired {
		record.Note = "auto-denied by timeout"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Record{}, err
	}

	replaced := false
	for i := range data.Records {
		if data.Records[i].RequestID == requestID {
			data.Records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		data.Records = append(data.Records, record)
	}

	if err := s.store.Save(data); err != nil {
		return Record{}, err
	}
	return record, nil
}

// List returns records filtered by query values, newest last.
func (s *Service) List(query Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	idFilter := strings.TrimSpace(query.RequestID)
	statusFilter := strings.TrimSpace(string(query.Status))
	toolFilter := strings.TrimSpace(query.ToolName)
	projectFilter := strings.TrimSpace(query.ProjectID)

	result := make([]Record, 0, len(data.Records))
	for _, rec := range data.Records {
		if idFilter != "" && rec.RequestID != idFilter {
			continue
		}
		if statusFilter != "" && string(rec.Status) != statusFilter {
			continue
		}
		if toolFilter != "" && !strings.EqualFold(rec.ToolName, toolFilter) {
			continue
		}
		if projectFilter != "" && rec.ProjectID != projectFilter {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}
