// Package events publishes report notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ksj/cloud-doctor/internal/models"
)

// DefaultSubject is the subject report-stored events are published on.
const DefaultSubject = "cdoc.report.stored"

// ReportStored is the payload of a report-stored event.
type ReportStored struct {
	Type      string              `json:"type"`
	ReportID  string              `json:"report_id"`
	AccountID string              `json:"account_id"`
	ScanID    string              `json:"scan_id"`
	ScannedAt time.Time           `json:"scanned_at"`
	Overall   float64             `json:"overall"`
	Scored    bool                `json:"scored"`
	Counts    models.StatusCounts `json:"counts"`
	Digest    string              `json:"digest"`
}

// NewReportStored builds the event for r.
func NewReportStored(r *models.Report) ReportStored {
	sum := r.Summary()
	return ReportStored{
		Type:      "report.stored",
		ReportID:  r.ID,
		AccountID: r.AccountID,
		ScanID:    r.ScanID,
		ScannedAt: r.ScannedAt,
		Overall:   sum.Overall,
		Scored:    sum.Scored,
		Counts:    sum.Counts,
		Digest:    r.Digest,
	}
}

// Publisher announces stored reports.
type Publisher interface {
	PublishReportStored(ctx context.Context, r *models.Report) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishReportStored(context.Context, *models.Report) error { return nil }
func (NopPublisher) Close() error                                             { return nil }

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// Connect dials url and returns a publisher on subject.
func Connect(url, subject, clientName string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}
	return NewNATSPublisher(nc, subject, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, subject string, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// PublishReportStored publishes the event for r.
func (p *NATSPublisher) PublishReportStored(ctx context.Context, r *models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewReportStored(r))
	if err != nil {
		return fmt.Errorf("marshal report event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("published report event", "subject", p.subject, "report_id", r.ID)
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
