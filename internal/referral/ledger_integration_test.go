package referral

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sakif/referral-rewards/internal/apperror"
	"github.com/sakif/referral-rewards/internal/model"
	sqliteRepo "github.com/sakif/referral-rewards/internal/repository/sqlite"
)

// These tests run the ledger against the real SQLite store instead of the
// fake: the CAS loop, the transactional redemption write, and the unique
// constraints are exercised end to end.

func newSQLiteLedger(t *testing.T) (*Ledger, *sqliteRepo.DB) {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedger(db, NewGenerator(), DefaultConfig("https://rewards.example.com"), logger), db
}

func TestIssueCode_SQLiteRoundTrip(t *testing.T) {
	ledger, db := newSQLiteLedger(t)
	ctx := context.Background()

	referrer := &model.Account{Email: "referrer@example.com", SecretHash: "hash"}
	if err := db.Create(ctx, referrer); err != nil {
		t.Fatalf("creating referrer: %v", err)
	}

	code, err := ledger.IssueCode(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("IssueCode() error = %v", err)
	}

	// The code is persisted and the transition cannot fire twice.
	got, err := db.GetByReferralCode(ctx, code)
	if err != nil {
		t.Fatalf("GetByReferralCode() error = %v", err)
	}
	if got.ID != referrer.ID {
		t.Errorf("code resolved to account %s, want %s", got.ID, referrer.ID)
	}
	if _, err := ledger.IssueCode(ctx, referrer.ID); !errors.Is(err, apperror.ErrAlreadyIssued) {
		t.Errorf("second IssueCode() error = %v, want ErrAlreadyIssued", err)
	}
}

func TestRedeem_SQLiteConcurrent(t *testing.T) {
	ledger, db := newSQLiteLedger(t)
	ctx := context.Background()

	referrer := &model.Account{Email: "referrer@example.com", SecretHash: "hash"}
	if err := db.Create(ctx, referrer); err != nil {
		t.Fatalf("creating referrer: %v", err)
	}
	code, err := ledger.IssueCode(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("IssueCode() error = %v", err)
	}

	// 20 goroutines redeem the same code at once. Contention makes the CAS
	// loop lose rounds; callers that exhaust their retries get a transient
	// conflict and try again, exactly as a client would.
	const redeemers = 20
	var wg sync.WaitGroup
	errCh := make(chan error, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("new-account-%02d", n)
			for {
				_, err := ledger.Redeem(ctx, code, id)
				if errors.Is(err, apperror.ErrTransientConflict) {
					continue
				}
				errCh <- err
				return
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("Redeem() error = %v", err)
		}
	}

	got, err := db.GetByID(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ReferralCount != redeemers {
		t.Errorf("ReferralCount = %d, want %d", got.ReferralCount, redeemers)
	}
	wantCredit := int64(redeemers/DefaultCadence) * DefaultAward
	if got.CreditBalance != wantCredit {
		t.Errorf("CreditBalance = %d, want %d", got.CreditBalance, wantCredit)
	}

	referred, err := db.ReferredAccountIDs(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("ReferredAccountIDs() error = %v", err)
	}
	if len(referred) != redeemers {
		t.Fatalf("len(referred) = %d, want %d", len(referred), redeemers)
	}
	seen := make(map[string]bool, redeemers)
	for _, id := range referred {
		if seen[id] {
			t.Errorf("account %s appears twice in the referred list", id)
		}
		seen[id] = true
	}
}
