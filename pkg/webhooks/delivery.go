package webhooks

import (
	"sort"
	"sync"
	"time"
)

// DeliveryStatus represents the status of a webhook delivery
type DeliveryStatus string

const (
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// DefaultMaxDeliveryLogs bounds the in-memory delivery history
const DefaultMaxDeliveryLogs = 1000

// DeliveryLog records one delivery, including its retries
type DeliveryLog struct {
	ID           string         `json:"id"`
	Endpoint     string         `json:"endpoint"`
	EventID      string         `json:"event_id"`
	EventType    EventType      `json:"event_type"`
	URL          string         `json:"url"`
	Status       DeliveryStatus `json:"status"`
	StatusCode   int            `json:"status_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attempts     int            `json:"attempts"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  time.Time      `json:"completed_at"`
	Duration     time.Duration  `json:"duration"`
}

// DeliveryLogStore keeps the most recent delivery logs in memory
type DeliveryLogStore struct {
	logs    map[string]*DeliveryLog
	mutex   sync.RWMutex
	maxLogs int
}

// NewDeliveryLogStore creates a new delivery log store
func NewDeliveryLogStore(maxLogs int) *DeliveryLogStore {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxDeliveryLogs
	}
	return &DeliveryLogStore{
		logs:    make(map[string]*DeliveryLog),
		maxLogs: maxLogs,
	}
}

// Add stores a copy of a completed delivery log
func (s *DeliveryLogStore) Add(log *DeliveryLog) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.logs) >= s.maxLogs {
		s.evictOldest()
	}

	entry := *log
	s.logs[log.ID] = &entry
}

// Get retrieves a delivery log by ID
func (s *DeliveryLogStore) Get(id string) (*DeliveryLog, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	log, exists := s.logs[id]
	if !exists {
		return nil, false
	}
	entry := *log
	return &entry, true
}

// List returns logs newest first, optionally for one endpoint. A limit of
// zero returns everything.
func (s *DeliveryLogStore) List(endpoint string, limit int) []*DeliveryLog {
	s.mutex.RLock()
	result := make([]*DeliveryLog, 0, len(s.logs))
	for _, log := range s.logs {
		if endpoint != "" && log.Endpoint != endpoint {
			continue
		}
		entry := *log
		result = append(result, &entry)
	}
	s.mutex.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// GetByEvent retrieves delivery logs for an event
func (s *DeliveryLogStore) GetByEvent(eventID string) []*DeliveryLog {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*DeliveryLog
	for _, log := range s.logs {
		if log.EventID == eventID {
			entry := *log
			result = append(result, &entry)
		}
	}
	return result
}

// Len returns the number of stored logs
func (s *DeliveryLogStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.logs)
}

// evictOldest removes the oldest 10% of logs; caller holds the lock
func (s *DeliveryLogStore) evictOldest() {
	logs := make([]*DeliveryLog, 0, len(s.logs))
	for _, log := range s.logs {
		logs = append(logs, log)
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.Before(logs[j].CreatedAt)
	})

	evictCount := len(logs) / 10
	if evictCount == 0 {
		evictCount = 1
	}
	for i := 0; i < evictCount && i < len(logs); i++ {
		delete(s.logs, logs[i].ID)
	}
}

// Stats returns delivery statistics for an endpoint
func (s *DeliveryLogStore) Stats(endpoint string) DeliveryStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := DeliveryStats{Endpoint: endpoint}
	for _, log := range s.logs {
		if log.Endpoint != endpoint {
			continue
		}

		stats.Total++
		stats.Attempts += log.Attempts
		stats.TotalDuration += log.Duration
		switch log.Status {
		case DeliveryStatusSuccess:
			stats.Successful++
		case DeliveryStatusFailed:
			stats.Failed++
		}
	}

	if stats.Total > 0 {
		stats.AverageDuration = stats.TotalDuration / time.Duration(stats.Total)
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats
}

// DeliveryStats represents delivery statistics
type DeliveryStats struct {
	Endpoint        string        `json:"endpoint"`
	Total           int           `json:"total"`
	Successful      int           `json:"successful"`
	Failed          int           `json:"failed"`
	Attempts        int           `json:"attempts"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalDuration   time.Duration `json:"total_duration"`
}
