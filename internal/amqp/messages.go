package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"profitshare/internal/core"
)

var ErrMissingReportID = errors.New("message has no report id")

// DistributionRequestedMessage asks the worker to (re)apply a report's
// distribution with the given shareholder selection.
type DistributionRequestedMessage struct {
	ReportID             string    `json:"report_id"`
	IncludedShareholders []string  `json:"included_shareholders"`
	Timestamp            time.Time `json:"timestamp"`
}

func NewDistributionRequestedMessage(reportID string, included []string) *DistributionRequestedMessage {
	return &DistributionRequestedMessage{
		ReportID:             reportID,
		IncludedShareholders: append([]string{}, included...),
		Timestamp:            time.Now().UTC(),
	}
}

func (m *DistributionRequestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DistributionRequestedMessageFromJSON(data []byte) (*DistributionRequestedMessage, error) {
	var msg DistributionRequestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReportID == "" {
		return nil, ErrMissingReportID
	}
	return &msg, nil
}

// DistributionAppliedMessage announces the ledger entries written by one
// application of a report.
type DistributionAppliedMessage struct {
	ReportID  string                     `json:"report_id"`
	Rate      decimal.Decimal            `json:"rate"`
	Entries   []core.ShareTransaction    `json:"entries"`
	Balances  map[string]decimal.Decimal `json:"balances"`
	Timestamp time.Time                  `json:"timestamp"`
}

func NewDistributionAppliedMessage(reportID string, rate decimal.Decimal, entries []core.ShareTransaction, balances map[string]decimal.Decimal) *DistributionAppliedMessage {
	return &DistributionAppliedMessage{
		ReportID:  reportID,
		Rate:      rate,
		Entries:   entries,
		Balances:  balances,
		Timestamp: time.Now().UTC(),
	}
}

func (m *DistributionAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DistributionAppliedMessageFromJSON(data []byte) (*DistributionAppliedMessage, error) {
	var msg DistributionAppliedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReportID == "" {
		return nil, ErrMissingReportID
	}
	return &msg, nil
}
