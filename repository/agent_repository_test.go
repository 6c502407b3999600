package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"deliverySync/internal/testutil"
	"deliverySync/models"
)

func TestAgentCreateListAndStatus(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, t.Name())
	ctx := context.Background()
	repo := NewAgentRepository(d)

	pending, err := repo.Create(ctx, &models.Agent{Name: "Bo", Email: "bo@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if pending.Status != models.AgentStatusPendingApproval {
		t.Fatalf("default status %s", pending.Status)
	}
	if _, err := repo.Create(ctx, &models.Agent{Name: "Bo2", Email: "bo@example.com"}); err == nil {
		t.Fatalf("duplicate email accepted")
	}
	if _, err := repo.Create(ctx, &models.Agent{Name: "Cy", Email: "cy@example.com", Status: models.AgentStatusActive}); err != nil {
		t.Fatalf("create active: %v", err)
	}

	list, err := repo.List(ctx, models.AgentStatusPendingApproval)
	if err != nil || len(list) != 1 || list[0].ID != pending.ID {
		t.Fatalf("pending list: %+v, %v", list, err)
	}
	all, err := repo.List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("all: %+v, %v", all, err)
	}

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := repo.UpdateStatus(ctx, pending.ID, models.AgentStatusActive, at); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, _ := repo.GetByEmail(ctx, "bo@example.com")
	if got == nil || got.Status != models.AgentStatusActive || got.LastActiveAt == nil || !got.LastActiveAt.Equal(at) {
		t.Fatalf("after update: %+v", got)
	}
	if err := repo.UpdateStatus(ctx, 404, models.AgentStatusOffline, at); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("missing agent: %v", err)
	}
}
