// Package warning collects reported engine conditions for the ops surface
package warning

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// MaxWarnings is the maximum number of warnings to store
	MaxWarnings = 1000
)

// Known warning categories reported by the engine
const (
	CategoryStopMessageLoss = "STOP_MESSAGE_LOSS"
	CategoryHandlerPanic    = "HANDLER_PANIC"
	CategoryMailboxOverflow = "MAILBOX_OVERFLOW"
)

// Warning represents a reported engine condition
type Warning struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	Acknowledged bool      `json:"acknowledged"`
}

// Service defines the warning service interface
type Service interface {
	// AddWarning adds a new warning
	AddWarning(category, severity, message, source string)

	// GetAllWarnings returns all warnings
	GetAllWarnings() []*Warning

	// GetWarningsBySeverity returns warnings filtered by severity
	GetWarningsBySeverity(severity string) []*Warning

	// GetUnacknowledgedWarnings returns all unacknowledged warnings
	GetUnacknowledgedWarnings() []*Warning

	// AcknowledgeWarning marks a warning as acknowledged
	AcknowledgeWarning(warningID string) bool

	// ClearAllWarnings removes all warnings
	ClearAllWarnings()
}

// InMemoryService is an in-memory implementation of the warning service
type InMemoryService struct {
	mu       sync.RWMutex
	warnings map[string]*Warning
}

// NewInMemoryService creates a new in-memory warning service
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		warnings: make(map[string]*Warning),
	}
}

// AddWarning adds a new warning, evicting the oldest once the cap is reached
func (s *InMemoryService) AddWarning(category, severity, message, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.warnings) >= MaxWarnings {
		var oldestID string
		var oldestTime time.Time
		for id, w := range s.warnings {
			if oldestID == "" || w.Timestamp.Before(oldestTime) {
				oldestID = id
				oldestTime = w.Timestamp
			}
		}
		if oldestID != "" {
			delete(s.warnings, oldestID)
		}
	}

	warningID := uuid.New().String()
	s.warnings[warningID] = &Warning{
		ID:        warningID,
		Category:  category,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
		Source:    source,
	}

	log.Info().
		Str("severity", severity).
		Str("category", category).
		Str("source", source).
		Str("message", message).
		Msg("Warning added")
}

// GetAllWarnings returns all warnings sorted by timestamp (newest first)
func (s *InMemoryService) GetAllWarnings() []*Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Warning, 0, len(s.warnings))
	for _, w := range s.warnings {
		result = append(result, w)
	}
	sortNewestFirst(result)
	return result
}

// GetWarningsBySeverity returns warnings filtered by severity
func (s *InMemoryService) GetWarningsBySeverity(severity string) []*Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Warning
	for _, w := range s.warnings {
		if strings.EqualFold(w.Severity, severity) {
			result = append(result, w)
		}
	}
	sortNewestFirst(result)
	return result
}

// GetUnacknowledgedWarnings returns all unacknowledged warnings
func (s *InMemoryService) GetUnacknowledgedWarnings() []*Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Warning
	for _, w := range s.warnings {
		if !w.Acknowledged {
			result = append(result, w)
		}
	}
	sortNewestFirst(result)
	return result
}

// AcknowledgeWarning marks a warning as acknowledged
func (s *InMemoryService) AcknowledgeWarning(warningID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.warnings[warningID]
	if !ok {
		return false
	}

	updated := *existing
	updated.Acknowledged = true
	s.warnings[warningID] = &updated

	log.Info().Str("warningId", warningID).Msg("Warning acknowledged")
	return true
}

// ClearAllWarnings removes all warnings
func (s *InMemoryService) ClearAllWarnings() {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.warnings)
	s.warnings = make(map[string]*Warning)
	log.Info().Int("count", count).Msg("Cleared all warnings")
}

func sortNewestFirst(warnings []*Warning) {
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Timestamp.After(warnings[j].Timestamp)
	})
}
