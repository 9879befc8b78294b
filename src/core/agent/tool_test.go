package agent_test

import (
	"context"
	"strings"
	"testing"

	"contextd/src/core/agent"
)

func countingTool(name string, calls *int, result interface{}, err error) agent.Tool {
	return agent.Tool{
		Name:        name,
		Description: "test tool",
		Parameters: agent.Schema{
			Properties: map[string]agent.Property{
				"query": {Type: "string"},
				"limit": {Type: "integer"},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			*calls++
			return result, err
		},
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := agent.NewRegistry()
	var calls int
	if err := r.Register(countingTool("lookup", &calls, nil, nil)); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register(countingTool("lookup", &calls, nil, nil)); err == nil {
		t.Fatal("duplicate register succeeded, want error")
	}
}

func TestRegistryListOrder(t *testing.T) {
	r := agent.NewRegistry()
	var calls int
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(countingTool(name, &calls, nil, nil)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("got %d tools, want 3", len(list))
	}
	for i, want := range []string{"zeta", "alpha", "mid"} {
		if list[i].Name != want {
			t.Fatalf("position %d: got %s, want %s", i, list[i].Name, want)
		}
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := agent.NewRegistry()
	call := r.Dispatch(context.Background(), "nope", nil)
	if call.Success {
		t.Fatal("dispatch of unknown tool reported success")
	}
	if !strings.Contains(call.Error, "unknown tool") {
		t.Fatalf("got error %q, want mention of unknown tool", call.Error)
	}
}

func TestDispatchMissingRequiredArg(t *testing.T) {
	r := agent.NewRegistry()
	var calls int
	if err := r.Register(countingTool("lookup", &calls, "ok", nil)); err != nil {
		t.Fatal(err)
	}

	call := r.Dispatch(context.Background(), "lookup", map[string]interface{}{"limit": float64(3)})
	if call.Success {
		t.Fatal("dispatch without required arg reported success")
	}
	if !strings.Contains(call.Error, "query") {
		t.Fatalf("got error %q, want mention of missing query", call.Error)
	}
	if calls != 0 {
		t.Fatalf("handler invoked %d times despite validation failure", calls)
	}
}

func TestDispatchTypeValidation(t *testing.T) {
	r := agent.NewRegistry()
	var calls int
	if err := r.Register(countingTool("lookup", &calls, "ok", nil)); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		args map[string]interface{}
		ok   bool
	}{
		{"valid", map[string]interface{}{"query": "reset", "limit": float64(3)}, true},
		{"integral float accepted", map[string]interface{}{"query": "reset", "limit": float64(5)}, true},
		{"fractional limit", map[string]interface{}{"query": "reset", "limit": float64(2.5)}, false},
		{"numeric query", map[string]interface{}{"query": float64(1)}, false},
		{"undeclared arg passes through", map[string]interface{}{"query": "reset", "extra": true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			call := r.Dispatch(context.Background(), "lookup", tc.args)
			if call.Success != tc.ok {
				t.Fatalf("got success=%v (error %q), want %v", call.Success, call.Error, tc.ok)
			}
		})
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := agent.NewRegistry()
	err := r.Register(agent.Tool{
		Name: "explode",
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			panic("boom")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	call := r.Dispatch(context.Background(), "explode", nil)
	if call.Success {
		t.Fatal("panicking handler reported success")
	}
	if !strings.Contains(call.Error, "boom") {
		t.Fatalf("got error %q, want panic message", call.Error)
	}
}

func TestCreateTicketToolRecordsTickets(t *testing.T) {
	store := agent.NewMemoryTicketStore()
	r := agent.NewRegistry()
	if err := r.Register(agent.CreateTicketTool(store)); err != nil {
		t.Fatal(err)
	}

	call := r.Dispatch(context.Background(), "create_ticket", map[string]interface{}{
		"title":       "VPN down",
		"description": "cannot connect since this morning",
	})
	if !call.Success {
		t.Fatalf("dispatch failed: %s", call.Error)
	}

	tickets := store.Tickets()
	if len(tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(tickets))
	}
	if tickets[0].ID != "TKT-1" || tickets[0].Title != "VPN down" {
		t.Fatalf("ticket: %+v", tickets[0])
	}
	if tickets[0].Priority != "medium" {
		t.Fatalf("priority %q, want the medium default", tickets[0].Priority)
	}
	if tickets[0].Status != "open" {
		t.Fatalf("status %q", tickets[0].Status)
	}
}
