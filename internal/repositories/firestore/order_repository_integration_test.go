//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplemart/api/internal/domain"
	pconfig "github.com/maplemart/api/internal/platform/config"
	pfirestore "github.com/maplemart/api/internal/platform/firestore"
	"github.com/maplemart/api/internal/repositories"
)

func TestOrderRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "order-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	seedProduct := func(id string, doc productDocument) {
		t.Helper()
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if _, err := client.Collection(productsCollection).Doc(id).Set(ctx, doc); err != nil {
			t.Fatalf("seed product %s: %v", id, err)
		}
	}
	seedCartItem := func(id string, doc cartItemDocument) {
		t.Helper()
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if _, err := client.Collection(cartItemsCollection).Doc(id).Set(ctx, doc); err != nil {
			t.Fatalf("seed cart item %s: %v", id, err)
		}
	}
	productStock := func(id string) int {
		t.Helper()
		snapshot, err := client.Collection(productsCollection).Doc(id).Get(ctx)
		if err != nil {
			t.Fatalf("read product %s: %v", id, err)
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			t.Fatalf("decode product %s: %v", id, err)
		}
		return doc.Stock
	}
	docExists := func(collection, id string) bool {
		t.Helper()
		_, err := client.Collection(collection).Doc(id).Get(ctx)
		if status.Code(err) == codes.NotFound {
			return false
		}
		if err != nil {
			t.Fatalf("read %s/%s: %v", collection, id, err)
		}
		return true
	}

	// Two checkouts race for the last unit: exactly one may win.
	seedProduct("prd-race", productDocument{Name: "Last Mug", Price: 1200, Stock: 1, Active: true})
	seedCartItem("crt-race-a", cartItemDocument{UserID: "user-a", ProductID: "prd-race", Quantity: 1})
	seedCartItem("crt-race-b", cartItemDocument{UserID: "user-b", ProductID: "prd-race", Quantity: 1})

	checkout := func(orderID, userID, itemID string) error {
		_, err := repo.Checkout(ctx, repositories.CheckoutRequest{
			Order: domain.Order{
				ID:     orderID,
				Number: "ORD00000000" + orderID[len(orderID)-4:],
				UserID: userID,
				Status: domain.OrderStatusPending,
				Address: domain.Address{
					Recipient: "Aki",
					Phone:     "080-1",
					Detail:    "1-2-3",
				},
			},
			CartItemIDs: []string{itemID},
			Now:         now,
		})
		return err
	}

	var wg sync.WaitGroup
	raceErrs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		raceErrs[0] = checkout("ord-race-000a", "user-a", "crt-race-a")
	}()
	go func() {
		defer wg.Done()
		raceErrs[1] = checkout("ord-race-000b", "user-b", "crt-race-b")
	}()
	wg.Wait()

	var wins, losses int
	for _, raceErr := range raceErrs {
		if raceErr == nil {
			wins++
			continue
		}
		var checkoutErr *repositories.CheckoutError
		if !errors.As(raceErr, &checkoutErr) {
			t.Fatalf("expected checkout error for losing race, got %v", raceErr)
		}
		if len(checkoutErr.Items) != 1 || checkoutErr.Items[0].Reason != domain.UnavailableReasonInsufficientStock {
			t.Fatalf("expected insufficient stock violation, got %+v", checkoutErr.Items)
		}
		losses++
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got %d wins %d losses (%v)", wins, losses, raceErrs)
	}
	if stock := productStock("prd-race"); stock != 0 {
		t.Fatalf("expected stock 0 after winning checkout, got %d", stock)
	}
	ordersCreated := 0
	if docExists(ordersCollection, "ord-race-000a") {
		ordersCreated++
	}
	if docExists(ordersCollection, "ord-race-000b") {
		ordersCreated++
	}
	if ordersCreated != 1 {
		t.Fatalf("expected exactly one order document, got %d", ordersCreated)
	}
	cartRemaining := 0
	if docExists(cartItemsCollection, "crt-race-a") {
		cartRemaining++
	}
	if docExists(cartItemsCollection, "crt-race-b") {
		cartRemaining++
	}
	if cartRemaining != 1 {
		t.Fatalf("expected losing cart item to survive, got %d remaining", cartRemaining)
	}

	// A single violating line aborts the whole checkout with zero mutations.
	seedProduct("prd-ok", productDocument{Name: "Plate", Price: 800, Stock: 5, Active: true})
	seedProduct("prd-off", productDocument{Name: "Retired Bowl", Price: 600, Stock: 5, Active: false})
	seedCartItem("crt-mixed-ok", cartItemDocument{UserID: "user-c", ProductID: "prd-ok", Quantity: 2})
	seedCartItem("crt-mixed-off", cartItemDocument{UserID: "user-c", ProductID: "prd-off", Quantity: 1})

	_, err = repo.Checkout(ctx, repositories.CheckoutRequest{
		Order: domain.Order{
			ID:     "ord-mixed",
			Number: "ORD000000000042",
			UserID: "user-c",
			Status: domain.OrderStatusPending,
			Address: domain.Address{
				Recipient: "Aki",
				Phone:     "080-1",
				Detail:    "1-2-3",
			},
		},
		CartItemIDs: []string{"crt-mixed-ok", "crt-mixed-off"},
		Now:         now,
	})
	var mixedErr *repositories.CheckoutError
	if !errors.As(err, &mixedErr) {
		t.Fatalf("expected checkout error, got %v", err)
	}
	if len(mixedErr.Items) != 1 || mixedErr.Items[0].Reason != domain.UnavailableReasonInactive {
		t.Fatalf("expected inactive violation, got %+v", mixedErr.Items)
	}
	if docExists(ordersCollection, "ord-mixed") {
		t.Fatal("expected no order document after aborted checkout")
	}
	if stock := productStock("prd-ok"); stock != 5 {
		t.Fatalf("expected untouched stock 5, got %d", stock)
	}
	if !docExists(cartItemsCollection, "crt-mixed-ok") || !docExists(cartItemsCollection, "crt-mixed-off") {
		t.Fatal("expected cart items to survive aborted checkout")
	}

	// Checkout then cancel returns every line quantity to stock.
	seedProduct("prd-cancel", productDocument{Name: "Teapot", Price: 3000, Stock: 5, Active: true, ImageURL: "https://img.example/teapot.png"})
	seedCartItem("crt-cancel", cartItemDocument{UserID: "user-d", ProductID: "prd-cancel", Quantity: 2})

	created, err := repo.Checkout(ctx, repositories.CheckoutRequest{
		Order: domain.Order{
			ID:     "ord-cancel",
			Number: "ORD000000000043",
			UserID: "user-d",
			Status: domain.OrderStatusPending,
			Address: domain.Address{
				Recipient: "Aki",
				Phone:     "080-1",
				Detail:    "1-2-3",
			},
		},
		CartItemIDs: []string{"crt-cancel"},
		Now:         now,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if created.TotalAmount != 6000 {
		t.Fatalf("expected snapshot total 6000, got %d", created.TotalAmount)
	}
	if len(created.Lines) != 1 || created.Lines[0].ImageURL != "https://img.example/teapot.png" {
		t.Fatalf("expected image snapshot on line, got %+v", created.Lines)
	}
	if stock := productStock("prd-cancel"); stock != 3 {
		t.Fatalf("expected stock 3 after checkout, got %d", stock)
	}
	if docExists(cartItemsCollection, "crt-cancel") {
		t.Fatal("expected consumed cart item to be deleted")
	}

	cancelled, err := repo.CancelAndRestock(ctx, repositories.CancelRequest{
		OrderID:     "ord-cancel",
		From:        []domain.OrderStatus{domain.OrderStatusPending},
		ExpectOwner: "user-d",
		Reason:      "changed my mind",
		Now:         now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("expected cancelledAt to be stamped")
	}
	if cancelled.CancelReason != "changed my mind" {
		t.Fatalf("unexpected cancel reason %q", cancelled.CancelReason)
	}
	if stock := productStock("prd-cancel"); stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", stock)
	}

	// Cancelling again must fail the source-status guard.
	_, err = repo.CancelAndRestock(ctx, repositories.CancelRequest{
		OrderID:     "ord-cancel",
		From:        []domain.OrderStatus{domain.OrderStatusPending},
		ExpectOwner: "user-d",
		Now:         now.Add(2 * time.Minute),
	})
	if err == nil {
		t.Fatal("expected second cancel to fail")
	}
	if stock := productStock("prd-cancel"); stock != 5 {
		t.Fatalf("expected stock unchanged after rejected cancel, got %d", stock)
	}
}
