package pubsub

import (
	"context"
	"testing"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{project: "proj", name: "basket-events", want: "projects/proj/topics/basket-events"},
		{project: "proj", name: " basket-events ", want: "projects/proj/topics/basket-events"},
		{project: "other", name: "projects/proj/topics/basket-events", want: "projects/proj/topics/basket-events"},
		{project: "", name: "basket-events", want: ""},
		{project: "proj", name: "", want: ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestSubscriptionResourceName(t *testing.T) {
	if got := SubscriptionResourceName("proj", "order-status-basket-engine"); got != "projects/proj/subscriptions/order-status-basket-engine" {
		t.Fatalf("unexpected name %q", got)
	}
	full := "projects/other/subscriptions/orders"
	if got := SubscriptionResourceName("proj", full); got != full {
		t.Fatalf("full name rewritten to %q", got)
	}
	if got := SubscriptionResourceName("", "orders"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("basket-events") != nil {
		t.Fatal("expected nil publisher from nil client")
	}
	if c.OrderEventsSubscriber() != nil {
		t.Fatal("expected nil subscriber from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on nil client to fail")
	}
}
