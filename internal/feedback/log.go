package feedback

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"call-review-go/internal/types"
)

// Log is the process-local record of accepted remarks. It lives as long as
// the process; nothing is persisted.
type Log struct {
	mu      sync.RWMutex
	records []types.FeedbackRecord
}

func NewLog() *Log { return &Log{} }

func (l *Log) Append(r types.FeedbackRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

func (l *Log) Entries() []types.FeedbackRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]types.FeedbackRecord(nil), l.records...)
}

func (l *Log) ForCall(callID string) []types.FeedbackRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.FeedbackRecord
	for _, r := range l.records {
		if r.CallID == callID {
			out = append(out, r)
		}
	}
	return out
}

const exportSheet = "Coaching Remarks"

var exportHeader = []interface{}{"ID", "Call ID", "Agent Name", "Agent ID", "Remark", "Timestamp"}

// ExportXLSX writes the log as a single-sheet workbook for audit.
func (l *Log) ExportXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range l.Entries() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.ID, r.CallID, r.AgentName, r.AgentID, r.Remark, r.Timestamp.UTC().Format(time.RFC3339)}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(exportSheet, "E", "E", 80); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}
