package db

import (
	"strings"
	"testing"

	"companion-llm/internal/domain"
)

func TestSchemaSeedsSystemUser(t *testing.T) {
	var seed string
	for _, stmt := range schemaStatements(384) {
		if strings.Contains(stmt, "INSERT INTO users") {
			seed = stmt
			break
		}
	}
	if seed == "" {
		t.Fatal("schema must insert the system user row")
	}
	if !strings.Contains(seed, domain.SystemUserID.String()) {
		t.Fatalf("seed statement must use the system user id: %s", seed)
	}
	if !strings.Contains(seed, "ON CONFLICT (id) DO NOTHING") {
		t.Fatal("system user seed must be idempotent")
	}
}

func TestSchemaVectorDimension(t *testing.T) {
	found := false
	for _, stmt := range schemaStatements(512) {
		if strings.Contains(stmt, "embedding vector(512)") {
			found = true
		}
	}
	if !found {
		t.Fatal("memories table must use the configured embedding dimension")
	}
}
