package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"
	"catatuang-service/internal/data/model"
	bizErrors "catatuang-service/internal/errors"
)

func (e *testEnv) upload(t *testing.T, phoneNumber string, extracted map[string]interface{}) *biz.PendingUpload {
	t.Helper()
	p, _, err := e.uploadUC.Create(context.Background(), phoneNumber, "https://img.test/struk.jpg", "uploads/struk.jpg", extracted)
	if err != nil {
		t.Fatalf("Create upload: %v", err)
	}
	return p
}

func (e *testEnv) uploadStatus(t *testing.T, id string) string {
	t.Helper()
	var m model.PendingUpload
	if err := e.data.DB(context.Background()).Where("id = ?", id).First(&m).Error; err != nil {
		t.Fatalf("load upload %s: %v", id, err)
	}
	return m.Status
}

func TestUploadConfirmRecordsReceipt(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281600000001", "") // free: struk limit 1

	p := env.upload(t, u.PhoneNumber, map[string]interface{}{
		"amount":      45000.0,
		"description": "Indomaret",
		"category":    "Belanja",
	})
	if want := time.Date(2026, 3, 5, 10, 10, 0, 0, wib); !p.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", p.ExpiresAt, want)
	}
	pending, _, err := env.uploadUC.Pending(ctx, u.PhoneNumber)
	if err != nil || pending.ID != p.ID {
		t.Fatalf("Pending = %+v, %v", pending, err)
	}

	res, err := env.uploadUC.Confirm(ctx, u.PhoneNumber, &biz.UploadConfirmation{Type: constants.TransactionTypeExpense})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	r := res.Record
	if r.Amount != 45000 || r.Description != "Indomaret" || r.Category != "Belanja" || r.Source != constants.TransactionSourceReceipt {
		t.Fatalf("record = %+v", r)
	}
	if !r.Tanggal.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, wib)) {
		t.Fatalf("tanggal = %v, want today", r.Tanggal)
	}
	if !res.Struk.Allowed || res.Struk.Used != 1 || res.Struk.Remaining == nil || *res.Struk.Remaining != 0 {
		t.Fatalf("struk = %+v", res.Struk)
	}
	if got := env.uploadStatus(t, p.ID); got != constants.UploadStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got)
	}
	if _, err := env.uploadUC.Confirm(ctx, u.PhoneNumber, &biz.UploadConfirmation{Type: constants.TransactionTypeExpense}); !bizErrors.Is(err, bizErrors.ErrCodePendingUploadNotFound) {
		t.Fatalf("second confirm err = %v, want not found", err)
	}

	// 额度用完：确认失败，上传保持 pending，不写交易
	next := env.upload(t, u.PhoneNumber, nil)
	_, err = env.uploadUC.Confirm(ctx, u.PhoneNumber, &biz.UploadConfirmation{Type: constants.TransactionTypeIncome, Amount: 10000})
	if !bizErrors.Is(err, bizErrors.ErrCodeQuotaExceeded) {
		t.Fatalf("confirm over quota err = %v, want quota exceeded", err)
	}
	if got := env.uploadStatus(t, next.ID); got != constants.UploadStatusPending {
		t.Fatalf("status after quota error = %s, want pending", got)
	}
	list, err := env.records.ListRecords(ctx, &biz.RecordFilter{UserID: u.ID})
	if err != nil || len(list) != 1 {
		t.Fatalf("records = %d, %v; want 1", len(list), err)
	}
}

func TestUploadConfirmInputs(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281600000002", constants.PlanStarter)

	env.upload(t, u.PhoneNumber, map[string]interface{}{"category": "Tidak Ada"})
	if _, err := env.uploadUC.Confirm(ctx, u.PhoneNumber, &biz.UploadConfirmation{Type: "transfer"}); !bizErrors.Is(err, bizErrors.ErrCodeValidation) {
		t.Fatalf("bad type err = %v", err)
	}
	if _, err := env.uploadUC.Confirm(ctx, u.PhoneNumber, &biz.UploadConfirmation{Type: constants.TransactionTypeExpense}); !bizErrors.Is(err, bizErrors.ErrCodeValidation) {
		t.Fatalf("missing amount err = %v", err)
	}
	res, err := env.uploadUC.Confirm(ctx, u.PhoneNumber, &biz.UploadConfirmation{
		Type:    constants.TransactionTypeExpense,
		Amount:  12000,
		Tanggal: time.Date(2026, 3, 3, 0, 0, 0, 0, wib),
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Record.Description != constants.DefaultUploadDescription || res.Record.Category != biz.DefaultCategory {
		t.Fatalf("record = %+v", res.Record)
	}
	if !res.Record.Tanggal.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, wib)) {
		t.Fatalf("tanggal = %v", res.Record.Tanggal)
	}
}

func TestUploadCreateCancelsPreviousAndExpires(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281600000003", "")

	if _, _, err := env.uploadUC.Pending(ctx, u.PhoneNumber); !bizErrors.Is(err, bizErrors.ErrCodePendingUploadNotFound) {
		t.Fatalf("no upload err = %v", err)
	}
	if _, _, err := env.uploadUC.Create(ctx, "6281699999999", "https://img.test/a.jpg", "", nil); !bizErrors.Is(err, bizErrors.ErrCodeUserNotFound) {
		t.Fatalf("unknown user err = %v", err)
	}

	first := env.upload(t, u.PhoneNumber, nil)
	second := env.upload(t, u.PhoneNumber, nil)
	if got := env.uploadStatus(t, first.ID); got != constants.UploadStatusCancelled {
		t.Fatalf("first status = %s, want cancelled", got)
	}

	// expires_at == now 已视为过期
	env.clock.Advance(10 * time.Minute)
	if _, _, err := env.uploadUC.Pending(ctx, u.PhoneNumber); !bizErrors.Is(err, bizErrors.ErrCodePendingUploadExpired) {
		t.Fatalf("expired err = %v, want 410", err)
	}
	if got := env.uploadStatus(t, second.ID); got != constants.UploadStatusExpired {
		t.Fatalf("second status = %s, want expired", got)
	}
	if _, _, err := env.uploadUC.Pending(ctx, u.PhoneNumber); !bizErrors.Is(err, bizErrors.ErrCodePendingUploadNotFound) {
		t.Fatalf("after expiry err = %v, want not found", err)
	}

	third := env.upload(t, u.PhoneNumber, nil)
	env.clock.Advance(11 * time.Minute)
	n, err := env.uploadUC.ExpireStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale = %d, %v; want 1", n, err)
	}
	if got := env.uploadStatus(t, third.ID); got != constants.UploadStatusExpired {
		t.Fatalf("third status = %s, want expired", got)
	}
	if n, err := env.uploadUC.ExpireStale(ctx); err != nil || n != 0 {
		t.Fatalf("repeat ExpireStale = %d, %v", n, err)
	}
}

func TestUploadConcurrentConfirmRecordsOnce(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	u := env.mustUser(t, "6281600000004", constants.PlanStarter)
	env.upload(t, u.PhoneNumber, map[string]interface{}{"amount": "30000"})

	const attempts = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, lost int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.uploadUC.Confirm(context.Background(), u.PhoneNumber, &biz.UploadConfirmation{Type: constants.TransactionTypeExpense})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case bizErrors.Is(err, bizErrors.ErrCodePendingUploadConflict), bizErrors.Is(err, bizErrors.ErrCodePendingUploadNotFound):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || lost != attempts-1 {
		t.Fatalf("ok=%d lost=%d, want 1/%d", ok, lost, attempts-1)
	}
	if got := env.reload(t, u.PhoneNumber).StrukCountMonth; got != 1 {
		t.Fatalf("struk count = %d, want 1", got)
	}
	list, err := env.records.ListRecords(context.Background(), &biz.RecordFilter{UserID: u.ID})
	if err != nil || len(list) != 1 || list[0].Amount != 30000 {
		t.Fatalf("records = %v, %v", list, err)
	}
}
