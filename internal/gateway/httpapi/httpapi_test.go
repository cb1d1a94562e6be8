package httpapi

import (
	"net/http"
	"testing"

	"github.com/jkaninda/kazi/internal/fsops"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		name string
		kind fsops.Kind
		want int
	}{
		{"invalid argument", fsops.KindInvalidArgument, http.StatusBadRequest},
		{"path violation", fsops.KindPathViolation, http.StatusForbidden},
		{"not found", fsops.KindNotFound, http.StatusNotFound},
		{"already exists", fsops.KindAlreadyExists, http.StatusConflict},
		{"not a file", fsops.KindNotAFile, http.StatusConflict},
		{"not a directory", fsops.KindNotADirectory, http.StatusConflict},
		{"unexpected io", fsops.KindUnexpectedIO, http.StatusInternalServerError},
		{"spawn failure", fsops.KindSpawnFailure, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kindStatus(tt.kind); got != tt.want {
				t.Errorf("kindStatus(%v) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestMetaInt(t *testing.T) {
	meta := map[string]any{
		"as_int":     7,
		"as_int64":   int64(42),
		"as_float64": float64(3),
		"as_string":  "no",
	}
	tests := []struct {
		key  string
		want int
	}{
		{"as_int", 7},
		{"as_int64", 42},
		{"as_float64", 3},
		{"as_string", 0},
		{"absent", 0},
	}
	for _, tt := range tests {
		if got := metaInt(meta, tt.key); got != tt.want {
			t.Errorf("metaInt(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestMetaBool(t *testing.T) {
	meta := map[string]any{"yes": true, "no": false, "other": "true"}
	if !metaBool(meta, "yes") {
		t.Error("metaBool(yes) = false")
	}
	if metaBool(meta, "no") || metaBool(meta, "other") || metaBool(meta, "absent") {
		t.Error("metaBool should be false for false, non-bool, and absent keys")
	}
}
