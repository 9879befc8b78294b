package agent

import (
	"context"
	"fmt"
	"sync"
)

// SourceInfo describes one ingested document for the get_sources tool.
type SourceInfo struct {
	DocumentID int64  `json:"document_id"`
	Title      string `json:"title"`
	Origin     string `json:"origin"`
	ChunkCount int    `json:"chunk_count"`
}

// SourceCatalog lists the ingested documents.
type SourceCatalog interface {
	Sources(ctx context.Context) ([]SourceInfo, error)
}

// TicketInfo is the record returned by a ticket creation.
type TicketInfo struct {
	ID       string `json:"ticket_id"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// TicketCreator opens support tickets on behalf of the agent.
type TicketCreator interface {
	CreateTicket(ctx context.Context, title, description, priority string) (TicketInfo, error)
}

// SearchDocumentsTool exposes similarity search to the reasoner.
func SearchDocumentsTool(retriever Retriever) Tool {
	return Tool{
		Name:        "search_documents",
		Description: "Search the ingested documents for passages relevant to a query.",
		Parameters: Schema{
			Properties: map[string]Property{
				"query": {Type: "string", Description: "free text search query"},
				"top_k": {Type: "integer", Description: "number of passages to return"},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			query, _ := args["query"].(string)
			topK := DefaultTopK
			if raw, ok := args["top_k"].(float64); ok && raw > 0 {
				topK = int(raw)
			}
			return retriever.Retrieve(ctx, query, topK)
		},
	}
}

// GetSourcesTool lists the documents the system knows about.
func GetSourcesTool(catalog SourceCatalog) Tool {
	return Tool{
		Name:        "get_sources",
		Description: "List the ingested documents and their chunk counts.",
		Parameters:  Schema{Properties: map[string]Property{}},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return catalog.Sources(ctx)
		},
	}
}

// GetStatsTool reports system usage counters. snapshot is called fresh on
// every invocation.
func GetStatsTool(snapshot func() interface{}) Tool {
	return Tool{
		Name:        "get_stats",
		Description: "Report system usage statistics.",
		Parameters:  Schema{Properties: map[string]Property{}},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return snapshot(), nil
		},
	}
}

// CreateTicketTool opens a support ticket when the reasoner decides the
// user needs human follow-up.
func CreateTicketTool(creator TicketCreator) Tool {
	return Tool{
		Name:        "create_ticket",
		Description: "Open a support ticket for an issue that needs human attention.",
		Parameters: Schema{
			Properties: map[string]Property{
				"title":       {Type: "string", Description: "short summary of the issue"},
				"description": {Type: "string", Description: "details of the issue"},
				"priority":    {Type: "string", Description: "low, medium or high"},
			},
			Required: []string{"title"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			title, _ := args["title"].(string)
			description, _ := args["description"].(string)
			priority, _ := args["priority"].(string)
			if priority == "" {
				priority = "medium"
			}
			return creator.CreateTicket(ctx, title, description, priority)
		},
	}
}

// MemoryTicketStore is an in-process TicketCreator for deployments without
// an external ticketing system.
type MemoryTicketStore struct {
	mu      sync.Mutex
	next    int
	tickets []TicketInfo
}

// NewMemoryTicketStore returns an empty store.
func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{next: 1}
}

// CreateTicket records the ticket and assigns a sequential id.
func (s *MemoryTicketStore) CreateTicket(ctx context.Context, title, description, priority string) (TicketInfo, error) {
	if title == "" {
		return TicketInfo{}, fmt.Errorf("ticket title must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info := TicketInfo{
		ID:       fmt.Sprintf("TKT-%d", s.next),
		Title:    title,
		Priority: priority,
		Status:   "open",
	}
	s.next++
	s.tickets = append(s.tickets, info)
	return info, nil
}

// Tickets returns the recorded tickets.
func (s *MemoryTicketStore) Tickets() []TicketInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TicketInfo, len(s.tickets))
	copy(out, s.tickets)
	return out
}
