package mongo

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func duplicateKeyErr() error {
	return mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000}},
	}
}

func TestRetryOnDuplicateKeyRetriesOnce(t *testing.T) {
	calls := 0
	err := retryOnDuplicateKey(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return duplicateKeyErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryOnDuplicateKey: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2; the losing upsert must be re-issued", calls)
	}
}

func TestRetryOnDuplicateKeyGivesUpAfterRetry(t *testing.T) {
	calls := 0
	err := retryOnDuplicateKey(context.Background(), func(context.Context) error {
		calls++
		return duplicateKeyErr()
	})
	if !mongo.IsDuplicateKeyError(err) {
		t.Errorf("error = %v, want the duplicate key error surfaced", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want exactly one retry", calls)
	}
}

func TestRetryOnDuplicateKeyOtherErrorsNotRetried(t *testing.T) {
	wantErr := errors.New("connection reset")
	calls := 0
	err := retryOnDuplicateKey(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1; only duplicate key errors warrant a retry", calls)
	}
}
