package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// feedLimit caps the retained entries per company feed.
const feedLimit = 200

// FeedEntry is one activity-feed item.
type FeedEntry struct {
	Kind      string    `json:"kind"`
	OrderID   string    `json:"order_id"`
	DisplayID string    `json:"display_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Feed keeps a capped per-company activity list in Redis.
type Feed struct {
	rdb *redis.Client
	now func() time.Time
}

// NewFeed builds Feed instance.
func NewFeed(rdb *redis.Client) *Feed {
	return &Feed{rdb: rdb, now: time.Now}
}

func feedKey(companyID int64) string {
	return fmt.Sprintf("feed:company:%d", companyID)
}

// Push prepends an entry to the company feed, trimming to the cap.
func (f *Feed) Push(ctx context.Context, companyID int64, entry FeedEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = f.now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("notify: marshal feed entry: %w", err)
	}
	key := feedKey(companyID)
	pipe := f.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, feedLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: push feed entry: %w", err)
	}
	return nil
}

// Recent returns up to limit newest entries for a company.
func (f *Feed) Recent(ctx context.Context, companyID int64, limit int) ([]FeedEntry, error) {
	if limit <= 0 || limit > feedLimit {
		limit = feedLimit
	}
	raw, err := f.rdb.LRange(ctx, feedKey(companyID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: read feed: %w", err)
	}
	entries := make([]FeedEntry, 0, len(raw))
	for _, item := range raw {
		var entry FeedEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// formatCents renders an integer cent amount as Brazilian currency.
func formatCents(cents int64) string {
	return ptBR.Sprintf("R$ %.2f", float64(cents)/100)
}

func createdMessage(p OrderCreatedPayload) string {
	if p.Origin == "REWORK" {
		return fmt.Sprintf("Retrabalho %s criado por %s (%d peças)", p.DisplayID, p.ActorName, p.Quantity)
	}
	return fmt.Sprintf("Pedido %s criado por %s (%d peças)", p.DisplayID, p.ActorName, p.Quantity)
}

func statusMessage(p OrderStatusPayload) string {
	msg := fmt.Sprintf("Pedido %s mudou de %s para %s (%s)", p.DisplayID, p.PreviousStatus, p.NewStatus, p.ActorName)
	if p.Notes != nil && *p.Notes != "" {
		msg += ": " + *p.Notes
	}
	return msg
}

func finalizedMessage(p OrderFinalizedPayload) string {
	return fmt.Sprintf("Pedido %s finalizado. Valor a receber: %s", p.DisplayID, formatCents(p.NetValueCents))
}
