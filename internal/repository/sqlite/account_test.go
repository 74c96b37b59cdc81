package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sakif/referral-rewards/internal/apperror"
	"github.com/sakif/referral-rewards/internal/model"
	"github.com/sakif/referral-rewards/internal/repository"
)

// newTestDB returns a DB backed by an in-memory SQLite database.
// The database disappears when the connection closes — every test gets a
// clean slate.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(\":memory:\"): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestAccount inserts an account and fails the test on error.
func createTestAccount(t *testing.T, db *DB, email string) *model.Account {
	t.Helper()
	account := &model.Account{
		Email:      email,
		SecretHash: "$2a$04$fakefakefakefakefakefakefakefakefakefakefakefakefake",
	}
	if err := db.Create(context.Background(), account); err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// =========================================================================
// Create TESTS
// =========================================================================

func TestCreate_AssignsIDAndTimestamps(t *testing.T) {
	db := newTestDB(t)

	account := &model.Account{Email: "a@example.com", SecretHash: "hash"}
	if err := db.Create(context.Background(), account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if account.ID == "" {
		t.Error("Create() did not set account.ID")
	}
	if account.CreatedAt.IsZero() {
		t.Error("Create() did not set account.CreatedAt")
	}
}

func TestCreate_KeepsPreAssignedID(t *testing.T) {
	db := newTestDB(t)

	account := &model.Account{ID: "pre-assigned", Email: "a@example.com", SecretHash: "hash"}
	if err := db.Create(context.Background(), account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if account.ID != "pre-assigned" {
		t.Errorf("Create() replaced pre-assigned ID with %q", account.ID)
	}

	got, err := db.GetByID(context.Background(), "pre-assigned")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "a@example.com" {
		t.Errorf("GetByID().Email = %q, want %q", got.Email, "a@example.com")
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "taken@example.com")

	dup := &model.Account{Email: "taken@example.com", SecretHash: "other-hash"}
	err := db.Create(context.Background(), dup)
	if !errors.Is(err, apperror.ErrDuplicateEmail) {
		t.Fatalf("Create() error = %v, want ErrDuplicateEmail", err)
	}
}

func TestCreate_WithSignupBonus(t *testing.T) {
	db := newTestDB(t)

	account := &model.Account{Email: "a@example.com", SecretHash: "hash", CreditBalance: 10}
	if err := db.Create(context.Background(), account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, _ := db.GetByID(context.Background(), account.ID)
	if got.CreditBalance != 10 {
		t.Errorf("CreditBalance = %d, want 10", got.CreditBalance)
	}
	if got.ReferralCount != 0 {
		t.Errorf("ReferralCount = %d, want 0", got.ReferralCount)
	}
	if got.ReferralCode != "" {
		t.Errorf("ReferralCode = %q, want unset", got.ReferralCode)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestGetByID_Unknown(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "ghost")
	if !errors.Is(err, apperror.ErrUnknownAccount) {
		t.Fatalf("GetByID() error = %v, want ErrUnknownAccount", err)
	}
}

func TestGetByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestAccount(t, db, "find-me@example.com")

	got, err := db.GetByEmail(context.Background(), "find-me@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetByEmail().ID = %q, want %q", got.ID, created.ID)
	}

	_, err = db.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrUnknownAccount) {
		t.Fatalf("GetByEmail() error = %v, want ErrUnknownAccount", err)
	}
}

func TestGetByReferralCode_Unknown(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByReferralCode(context.Background(), "NOSUCHCD")
	if !errors.Is(err, apperror.ErrUnknownCode) {
		t.Fatalf("GetByReferralCode() error = %v, want ErrUnknownCode", err)
	}
}

// =========================================================================
// ClaimReferralCode TESTS
// =========================================================================

func TestClaimReferralCode_FirstClaimWins(t *testing.T) {
	db := newTestDB(t)
	account := createTestAccount(t, db, "a@example.com")

	if err := db.ClaimReferralCode(context.Background(), account.ID, "CODE2345"); err != nil {
		t.Fatalf("ClaimReferralCode() error = %v", err)
	}

	got, _ := db.GetByReferralCode(context.Background(), "CODE2345")
	if got.ID != account.ID {
		t.Errorf("code owner = %q, want %q", got.ID, account.ID)
	}
}

func TestClaimReferralCode_SecondClaimFails(t *testing.T) {
	db := newTestDB(t)
	account := createTestAccount(t, db, "a@example.com")

	if err := db.ClaimReferralCode(context.Background(), account.ID, "CODE2345"); err != nil {
		t.Fatalf("first ClaimReferralCode() error = %v", err)
	}

	err := db.ClaimReferralCode(context.Background(), account.ID, "OTHER234")
	if !errors.Is(err, apperror.ErrAlreadyIssued) {
		t.Fatalf("second ClaimReferralCode() error = %v, want ErrAlreadyIssued", err)
	}

	// The original code must survive the losing claim.
	got, _ := db.GetByID(context.Background(), account.ID)
	if got.ReferralCode != "CODE2345" {
		t.Errorf("ReferralCode = %q, want %q", got.ReferralCode, "CODE2345")
	}
}

func TestClaimReferralCode_UnknownAccount(t *testing.T) {
	db := newTestDB(t)

	err := db.ClaimReferralCode(context.Background(), "ghost", "CODE2345")
	if !errors.Is(err, apperror.ErrUnknownAccount) {
		t.Fatalf("ClaimReferralCode() error = %v, want ErrUnknownAccount", err)
	}
}

func TestClaimReferralCode_CodeOwnedByAnotherAccount(t *testing.T) {
	db := newTestDB(t)
	first := createTestAccount(t, db, "first@example.com")
	second := createTestAccount(t, db, "second@example.com")

	if err := db.ClaimReferralCode(context.Background(), first.ID, "CODE2345"); err != nil {
		t.Fatalf("ClaimReferralCode() error = %v", err)
	}

	// Same code value for a different account: generator collision.
	err := db.ClaimReferralCode(context.Background(), second.ID, "CODE2345")
	if !errors.Is(err, repository.ErrCodeTaken) {
		t.Fatalf("ClaimReferralCode() error = %v, want ErrCodeTaken", err)
	}
}

// =========================================================================
// ApplyRedemption TESTS
// =========================================================================

func TestApplyRedemption_UpdatesCountersAndList(t *testing.T) {
	db := newTestDB(t)
	referrer := createTestAccount(t, db, "ref@example.com")
	redeemer := createTestAccount(t, db, "new@example.com")

	err := db.ApplyRedemption(context.Background(), repository.RedemptionUpdate{
		ReferrerID:   referrer.ID,
		Version:      0,
		NewCount:     1,
		NewCredit:    0,
		NewAccountID: redeemer.ID,
	})
	if err != nil {
		t.Fatalf("ApplyRedemption() error = %v", err)
	}

	got, _ := db.GetByID(context.Background(), referrer.ID)
	if got.ReferralCount != 1 {
		t.Errorf("ReferralCount = %d, want 1", got.ReferralCount)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1 (CAS must bump it)", got.Version)
	}

	ids, err := db.ReferredAccountIDs(context.Background(), referrer.ID)
	if err != nil {
		t.Fatalf("ReferredAccountIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != redeemer.ID {
		t.Errorf("ReferredAccountIDs() = %v, want [%s]", ids, redeemer.ID)
	}
}

func TestApplyRedemption_StaleVersionConflicts(t *testing.T) {
	db := newTestDB(t)
	referrer := createTestAccount(t, db, "ref@example.com")

	// Pretend another redemption already bumped the version.
	if err := db.forceVersion(context.Background(), referrer.ID, 7); err != nil {
		t.Fatalf("forceVersion: %v", err)
	}

	err := db.ApplyRedemption(context.Background(), repository.RedemptionUpdate{
		ReferrerID:   referrer.ID,
		Version:      0, // stale snapshot
		NewCount:     1,
		NewCredit:    0,
		NewAccountID: "new-1",
	})
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("ApplyRedemption() error = %v, want ErrVersionConflict", err)
	}

	// Nothing may have been written — neither counters nor the list.
	got, _ := db.GetByID(context.Background(), referrer.ID)
	if got.ReferralCount != 0 {
		t.Errorf("ReferralCount = %d, want 0 after failed CAS", got.ReferralCount)
	}
	ids, _ := db.ReferredAccountIDs(context.Background(), referrer.ID)
	if len(ids) != 0 {
		t.Errorf("referred list = %v, want empty after failed CAS", ids)
	}
}

func TestApplyRedemption_CountMatchesListLength(t *testing.T) {
	db := newTestDB(t)
	referrer := createTestAccount(t, db, "ref@example.com")

	for i := 0; i < 6; i++ {
		err := db.ApplyRedemption(context.Background(), repository.RedemptionUpdate{
			ReferrerID:   referrer.ID,
			Version:      int64(i),
			NewCount:     int64(i + 1),
			NewCredit:    0,
			NewAccountID: fmt.Sprintf("new-%d", i),
		})
		if err != nil {
			t.Fatalf("ApplyRedemption() #%d error = %v", i, err)
		}
	}

	got, _ := db.GetByID(context.Background(), referrer.ID)
	ids, _ := db.ReferredAccountIDs(context.Background(), referrer.ID)
	if got.ReferralCount != int64(len(ids)) {
		t.Errorf("ReferralCount = %d but referred list has %d entries", got.ReferralCount, len(ids))
	}

	// Order is redemption order.
	for i, id := range ids {
		if want := fmt.Sprintf("new-%d", i); id != want {
			t.Errorf("ids[%d] = %q, want %q", i, id, want)
		}
	}
}
