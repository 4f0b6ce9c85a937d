package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"futures-console/internal/core"
)

type Action string

const (
	ActionPlaced   Action = "placed"
	ActionCanceled Action = "canceled"
)

// Entry is one line of the order journal.
type Entry struct {
	Action   Action          `json:"action"`
	At       time.Time       `json:"at"`
	OrderID  string          `json:"order_id"`
	ClientID string          `json:"client_id,omitempty"`
	Symbol   string          `json:"symbol"`
	Side     core.Side       `json:"side"`
	Type     core.OrderType  `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	Status   string          `json:"status,omitempty"`
}

// Journal appends order events to a JSONL file under the state dir and replays
// them for the session-history view. Lines that fail to parse are skipped on
// replay so one torn write cannot poison the history.
type Journal struct {
	path string
	mu   sync.Mutex
}

const fileName = "orders.jsonl"

func New(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Journal{path: filepath.Join(dir, fileName)}, nil
}

func (j *Journal) Record(action Action, order core.Order) error {
	entry := Entry{
		Action:   action,
		At:       time.Now().UTC(),
		OrderID:  order.ID,
		ClientID: order.ClientID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Type:     order.Type,
		Price:    order.Price,
		Qty:      order.Qty,
		Status:   string(order.Status),
	}
	return j.Append(entry)
}

func (j *Journal) Append(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func (j *Journal) Replay() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]Entry, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
