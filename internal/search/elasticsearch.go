package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"busticket/internal/config"
	"busticket/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const defaultPageSize = 20

// TicketQuery filters the ticket index. Empty fields are ignored.
type TicketQuery struct {
	Text       string
	Phone      string
	ScheduleID string
	Status     string
	Date       string // YYYY-MM-DD, journey date
	Page       int
	PageSize   int
}

// ElasticsearchClient keeps a denormalized, searchable copy of tickets.
// It is fed from domain events and is never the source of truth.
type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{
		client: es,
		config: cfg,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	keyword := map[string]interface{}{"type": "keyword"}
	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"ticket_id":     keyword,
				"ticket_number": keyword,
				"schedule_id":   keyword,
				"phone":         keyword,
				"seat_number":   keyword,
				"status":        keyword,
				"currency":      keyword,
				"passenger_name": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{
							"type":         "keyword",
							"ignore_above": 256,
						},
					},
				},
				"route_name":  map[string]interface{}{"type": "text"},
				"origin":      map[string]interface{}{"type": "text"},
				"destination": map[string]interface{}{"type": "text"},
				"journey_datetime": map[string]interface{}{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
				"fare_amount": map[string]interface{}{"type": "long"},
				"updated_at":  map[string]interface{}{"type": "date"},
			},
		},
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(mappingJSON),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

// IndexTicket writes the whole document, replacing any previous version.
func (c *ElasticsearchClient) IndexTicket(ctx context.Context, doc *models.TicketDocument) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: doc.TicketID,
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index ticket: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}
	return nil
}

// UpdateTicketStatus patches the lifecycle label of an indexed ticket. A
// missing document is not an error: the booked event may not have been
// indexed yet.
func (c *ElasticsearchClient) UpdateTicketStatus(ctx context.Context, ticketID, status string, at time.Time) error {
	body, err := json.Marshal(map[string]interface{}{
		"doc": map[string]interface{}{
			"status":     status,
			"updated_at": at.UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:      c.config.Index,
		DocumentID: ticketID,
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		slog.Warn("Ticket not in search index, status update skipped", "ticket_id", ticketID, "status", status)
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("update error: %s", res.String())
	}
	return nil
}

func (c *ElasticsearchClient) SearchTickets(ctx context.Context, q TicketQuery) (*models.TicketSearchResponse, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	from := 0
	if q.Page > 1 {
		from = (q.Page - 1) * pageSize
	}

	searchRequest := map[string]interface{}{
		"query":            buildSearchQuery(q),
		"sort":             buildSortQuery(q.Text),
		"from":             from,
		"size":             pageSize,
		"track_total_hits": true,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(searchJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.TicketDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := &models.TicketSearchResponse{
		Total:   response.Hits.Total.Value,
		Tickets: make([]models.TicketDocument, len(response.Hits.Hits)),
	}
	for i, hit := range response.Hits.Hits {
		out.Tickets[i] = hit.Source
	}
	return out, nil
}

func buildSearchQuery(q TicketQuery) map[string]interface{} {
	var must, filter []map[string]interface{}

	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     text,
				"fields":    []string{"ticket_number^3", "passenger_name^2", "route_name", "origin", "destination"},
				"fuzziness": "AUTO",
				"lenient":   true,
			},
		})
	}

	term := func(field, value string) {
		if value != "" {
			filter = append(filter, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
	}
	term("phone", q.Phone)
	term("schedule_id", q.ScheduleID)
	term("status", q.Status)

	if q.Date != "" {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{
				"journey_datetime": map[string]interface{}{
					"gte": q.Date + "T00:00:00Z",
					"lte": q.Date + "T23:59:59Z",
				},
			},
		})
	}

	if len(must) == 0 && len(filter) == 0 {
		return map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	return map[string]interface{}{"bool": boolQuery}
}

func buildSortQuery(text string) []map[string]interface{} {
	if strings.TrimSpace(text) != "" {
		return []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"journey_datetime": map[string]interface{}{"order": "asc"}},
		}
	}
	return []map[string]interface{}{
		{"journey_datetime": map[string]interface{}{"order": "asc"}},
		{"ticket_number": map[string]interface{}{"order": "asc"}},
	}
}

func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}
	return nil
}

// DocumentFromInfo builds the index document for a freshly booked ticket.
func DocumentFromInfo(info models.TicketInfo, at time.Time) *models.TicketDocument {
	return &models.TicketDocument{
		TicketID:        info.TicketID,
		TicketNumber:    info.TicketNumber,
		ScheduleID:      info.ScheduleID,
		PassengerName:   info.PassengerName,
		Phone:           info.Phone,
		RouteName:       info.RouteName,
		Origin:          info.Origin,
		Destination:     info.Destination,
		SeatNumber:      info.SeatNumber,
		JourneyDateTime: info.JourneyDateTime.UTC(),
		FareAmount:      info.Fare.Amount,
		Currency:        info.Fare.Currency,
		Status:          models.TicketStatusBooked,
		UpdatedAt:       at.UTC(),
	}
}
