package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels or NATS.
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the analysis pipeline.
const (
	TopicReportIngested      = "creditlens.report.ingested"
	TopicAnalysisCompleted   = "creditlens.analysis.completed"
	TopicComparisonCompleted = "creditlens.comparison.completed"
)

// ReportIngestedEvent is published after a report is stored.
type ReportIngestedEvent struct {
	TenantID  string `json:"tenantId"`
	SubjectID string `json:"subjectId"`
	Bureau    Bureau `json:"bureau"`
	DataHash  string `json:"dataHash"`
	TraceID   string `json:"traceId,omitempty"`
}

// AnalysisCompletedEvent is published after the worker refreshes an analysis.
type AnalysisCompletedEvent struct {
	TenantID           string    `json:"tenantId"`
	SubjectID          string    `json:"subjectId"`
	Bureau             Bureau    `json:"bureau"`
	DataHash           string    `json:"dataHash"`
	Cached             bool      `json:"cached"`
	Grade              Grade     `json:"grade"`
	Score              float64   `json:"score"`
	DefaultProbability float64   `json:"defaultProbability"`
	RiskLevel          RiskLevel `json:"riskLevel"`
	TraceID            string    `json:"traceId,omitempty"`
}

// ComparisonCompletedEvent is published after a comparison is regenerated.
type ComparisonCompletedEvent struct {
	TenantID       string   `json:"tenantId"`
	SubjectID      string   `json:"subjectId"`
	UnifiedGrade   Grade    `json:"unifiedGrade"`
	AverageScore   float64  `json:"averageScore"`
	BureauCount    int      `json:"bureauCount"`
	MissingBureaus []Bureau `json:"missingBureaus,omitempty"`
	TraceID        string   `json:"traceId,omitempty"`
}
