package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/metrics"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// orderDocument is the raw landed order shape: one JSON document per line.
type orderDocument struct {
	OrderID        string      `json:"order_id"`
	CustomerID     string      `json:"customer_id"`
	OrderTimestamp string      `json:"order_timestamp"`
	Items          []orderItem `json:"items"`
	TotalAmount    *float64    `json:"total_amount"`
	PaymentStatus  string      `json:"payment_status"`
	Shipping       *shippingAddress `json:"shipping_address"`
}

type orderItem struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
}

type shippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
	Country string `json:"country"`
}

// timestampLayouts accepted for order_timestamp. The second covers ISO-8601
// without a zone offset, which the order feed emits.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
}

// RejectedRecord preserves a malformed input line for audit.
type RejectedRecord struct {
	LineNumber int
	Raw        string
	Reason     string
}

// LoadResult summarizes one load call.
type LoadResult struct {
	RecordsLoaded int
	Rejected      []RejectedRecord
}

// Loader validates landed order documents and stages them with batch lineage.
type Loader struct {
	store   *warehouse.Store
	landing landing.ObjectStore
	logger  *logging.ComponentLogger
}

// NewLoader creates a loader.
func NewLoader(store *warehouse.Store, landingStore landing.ObjectStore, logger *logging.ComponentLogger) *Loader {
	return &Loader{store: store, landing: landingStore, logger: logger}
}

// Load reads the batch's raw object, parses each line against the required
// schema, stages accepted line items and routes malformed lines to the
// reject pile. A partial parse is not an error; zero parsed records is.
func (l *Loader) Load(ctx context.Context, batch *Batch) (LoadResult, error) {
	data, err := l.landing.Read(ctx, batch.SourcePath)
	if err != nil {
		return LoadResult{}, Transient("load", err)
	}

	ingestedAt := time.Now().UTC()
	lines := strings.Split(string(data), "\n")

	var staged []warehouse.StagedOrder
	var rejected []RejectedRecord
	// Tracks repeated (order_id, line_item_index) keys inside this batch so
	// the upsert cannot silently swallow intra-batch duplicates before the
	// quality gate sees them.
	occurrences := make(map[string]int)
	nonEmpty := 0

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++

		doc, reason := parseOrderLine(line)
		if reason != "" {
			rejected = append(rejected, RejectedRecord{
				LineNumber: i + 1,
				Raw:        line,
				Reason:     reason,
			})
			continue
		}

		ts, _ := parseOrderTimestamp(doc.OrderTimestamp)
		for idx, item := range doc.Items {
			key := fmt.Sprintf("%s/%d", doc.OrderID, idx)
			occurrences[key]++

			row := warehouse.StagedOrder{
				OrderID:        doc.OrderID,
				LineItemIndex:  idx,
				BatchID:        batch.ID,
				Occurrence:     occurrences[key],
				CustomerID:     doc.CustomerID,
				ProductID:      item.ProductID,
				Quantity:       item.Quantity,
				UnitPrice:      *item.UnitPrice,
				OrderTimestamp: ts,
				TotalAmount:    *doc.TotalAmount,
				PaymentStatus:  doc.PaymentStatus,
				IngestedAt:     ingestedAt,
			}
			if doc.Shipping != nil {
				row.City = doc.Shipping.City
				row.State = doc.Shipping.State
				row.Country = doc.Shipping.Country
			}
			staged = append(staged, row)
		}
	}

	if len(staged) == 0 && nonEmpty > 0 {
		return LoadResult{Rejected: rejected}, &SchemaError{
			Path:   batch.SourcePath,
			Reason: fmt.Sprintf("no record parsed out of %d lines", nonEmpty),
		}
	}

	if err := l.store.UpsertStagedOrders(ctx, staged); err != nil {
		return LoadResult{}, Transient("load", err)
	}

	metrics.RecordsLoaded.Add(float64(len(staged)))
	metrics.RecordsRejected.Add(float64(len(rejected)))

	log := l.logger.ForBatch(batch.ID)
	log.Info().
		Int("records_loaded", len(staged)).
		Int("records_rejected", len(rejected)).
		Msg("Batch staged")
	for _, r := range rejected {
		log.Warn().
			Int("line", r.LineNumber).
			Str("reason", r.Reason).
			Msg("Rejected record")
	}

	return LoadResult{RecordsLoaded: len(staged), Rejected: rejected}, nil
}

// parseOrderLine validates one raw line. It returns an empty reason on
// success; any other reason means the line goes to the reject pile.
func parseOrderLine(line string) (*orderDocument, string) {
	var doc orderDocument
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		return nil, fmt.Sprintf("invalid JSON: %v", err)
	}

	switch {
	case doc.OrderID == "":
		return nil, "missing order_id"
	case doc.CustomerID == "":
		return nil, "missing customer_id"
	case doc.OrderTimestamp == "":
		return nil, "missing order_timestamp"
	case doc.TotalAmount == nil:
		return nil, "missing total_amount"
	case len(doc.Items) == 0:
		return nil, "order has no items"
	}

	if _, err := parseOrderTimestamp(doc.OrderTimestamp); err != nil {
		return nil, fmt.Sprintf("unparseable order_timestamp %q", doc.OrderTimestamp)
	}

	for i, item := range doc.Items {
		switch {
		case item.ProductID == "":
			return nil, fmt.Sprintf("item %d missing product_id", i)
		case item.Quantity <= 0:
			return nil, fmt.Sprintf("item %d has non-positive quantity", i)
		case item.UnitPrice == nil:
			return nil, fmt.Sprintf("item %d missing unit_price", i)
		case *item.UnitPrice < 0:
			return nil, fmt.Sprintf("item %d has negative unit_price", i)
		}
	}

	return &doc, ""
}

func parseOrderTimestamp(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, value)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
