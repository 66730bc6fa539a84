package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"jobtracker/internal/domain/entity"
)

func strPtr(s string) *string { return &s }

func TestUpdateDocumentSetsOnlyPresentFields(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	status := entity.JobStatusInterview

	tests := []struct {
		name string
		in   entity.JobInput
		want bson.M
	}{
		{
			name: "timestamp only",
			in:   entity.JobInput{},
			want: bson.M{"updatedAt": now},
		},
		{
			name: "company and position",
			in:   entity.JobInput{Company: strPtr("Acme"), Position: strPtr("Engineer")},
			want: bson.M{"updatedAt": now, "company": "Acme", "position": "Engineer"},
		},
		{
			name: "all fields",
			in: entity.JobInput{
				Company:     strPtr("Acme"),
				Position:    strPtr("Engineer"),
				Status:      &status,
				JobType:     strPtr("remote"),
				JobLocation: strPtr("Berlin"),
			},
			want: bson.M{
				"updatedAt":   now,
				"company":     "Acme",
				"position":    "Engineer",
				"status":      entity.JobStatusInterview,
				"jobType":     "remote",
				"jobLocation": "Berlin",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := updateDocument(tt.in, now)
			set, ok := doc["$set"].(bson.M)
			if !ok {
				t.Fatalf("missing $set in %v", doc)
			}
			if len(set) != len(tt.want) {
				t.Fatalf("got %d fields %v, want %d %v", len(set), set, len(tt.want), tt.want)
			}
			for k, v := range tt.want {
				if set[k] != v {
					t.Fatalf("field %s: got %v, want %v", k, set[k], v)
				}
			}
			if _, ok := set["createdBy"]; ok {
				t.Fatal("update must never touch createdBy")
			}
			if _, ok := set["id"]; ok {
				t.Fatal("update must never touch id")
			}
		})
	}
}

func TestStatsPipelineMatchesOwnerField(t *testing.T) {
	t.Parallel()
	p := statsPipeline("user-1")
	if len(p) != 2 {
		t.Fatalf("got %d stages, want 2", len(p))
	}
	match := p[0][0]
	if match.Key != "$match" {
		t.Fatalf("first stage %q, want $match", match.Key)
	}
	filter, ok := match.Value.(bson.D)
	if !ok || len(filter) != 1 {
		t.Fatalf("unexpected match filter %v", match.Value)
	}
	if filter[0].Key != "createdBy" || filter[0].Value != "user-1" {
		t.Fatalf("match filter %v, want createdBy=user-1", filter[0])
	}
	if p[1][0].Key != "$group" {
		t.Fatalf("second stage %q, want $group", p[1][0].Key)
	}
}

func TestUpdateByIDRejectsInvalidPatch(t *testing.T) {
	t.Parallel()
	bad := entity.JobStatus("offer")
	repo := &MongoJobRepo{}

	_, err := repo.UpdateByID(context.Background(), "id", entity.JobInput{Status: &bad})
	var vErr *entity.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "status" {
		t.Fatalf("got %v, want status ValidationError", err)
	}
}
