package database

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	ReferenceWriter
	dims []int
}

func (f *fakeStore) StoredDims(context.Context) ([]int, error) { return f.dims, nil }

func TestGetReferenceReader(t *testing.T) {
	t.Cleanup(func() { RegisterPostgresBackend(nil) })

	RegisterPostgresBackend(nil)
	if _, err := GetReferenceReader(context.Background(), 512); !errors.Is(err, ErrBackendNotInitialized) {
		t.Errorf("expected ErrBackendNotInitialized, got %v", err)
	}

	tests := []struct {
		name    string
		dims    []int
		wantErr bool
	}{
		{"empty store", nil, false},
		{"same dimension", []int{512}, false},
		{"other dimension", []int{768}, true},
		{"mixed dimensions", []int{512, 768}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RegisterPostgresBackend(func(int) ReferenceWriter { return &fakeStore{dims: tt.dims} })
			_, err := GetReferenceReader(context.Background(), 512)
			if tt.wantErr && !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("expected ErrDimensionMismatch, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
