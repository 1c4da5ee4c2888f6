package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/conf"
	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
)

func (e *testEnv) checkout(t *testing.T, phoneNumber, plan string) (*biz.UpgradeLink, *biz.CheckoutResult) {
	t.Helper()
	ctx := context.Background()
	link, err := e.tokenUC.GenerateLink(ctx, phoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}
	res, err := e.paymentUC.Checkout(ctx, link.Token.Token, plan, "127.0.0.1")
	if err != nil {
		t.Fatalf("Checkout(%s): %v", plan, err)
	}
	return link, res
}

func (e *testEnv) webhook(t *testing.T, orderID, status string, amount int64) *biz.WebhookOutcome {
	t.Helper()
	out, err := e.reconcile.HandleWebhook(context.Background(), &biz.WebhookPayload{
		Amount:        amount,
		OrderID:       orderID,
		Project:       "catatuang",
		Status:        status,
		PaymentMethod: "qris",
		Raw:           map[string]interface{}{"order_id": orderID, "amount": amount},
	})
	if err != nil {
		t.Fatalf("HandleWebhook(%s, %s): %v", orderID, status, err)
	}
	return out
}

func (e *testEnv) payment(t *testing.T, orderID string) *biz.Payment {
	t.Helper()
	p, err := e.payments.GetPaymentByOrderID(context.Background(), orderID)
	if err != nil || p == nil {
		t.Fatalf("GetPaymentByOrderID(%s) = %v, %v", orderID, p, err)
	}
	return p
}

func TestGenerateLinkInvalidatesPreviousToken(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000001", "")

	first, err := env.tokenUC.GenerateLink(ctx, u.PhoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}
	if len(first.Token.Token) != constants.UpgradeTokenLength {
		t.Fatalf("token length = %d", len(first.Token.Token))
	}
	if first.URL != "https://catatuang.test/upgrade/"+first.Token.Token {
		t.Fatalf("url = %s", first.URL)
	}
	second, err := env.tokenUC.GenerateLink(ctx, u.PhoneNumber, constants.PlanPro)
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}
	if !strings.HasPrefix(second.URL, "https://catatuang.test/checkout?token=") || !strings.HasSuffix(second.URL, "&plan=pro") {
		t.Fatalf("checkout url = %s", second.URL)
	}

	if _, err := env.tokenUC.FindValid(ctx, first.Token.Token); !bizErrors.Is(err, bizErrors.ErrCodeTokenNotFound) {
		t.Fatalf("first token err = %v, want not found", err)
	}
	if _, err := env.tokenUC.FindValid(ctx, second.Token.Token); err != nil {
		t.Fatalf("second token: %v", err)
	}

	// expires_at 必须严格晚于 now
	env.clock.Advance(time.Hour)
	if _, err := env.tokenUC.FindValid(ctx, second.Token.Token); !bizErrors.Is(err, bizErrors.ErrCodeTokenNotFound) {
		t.Fatalf("expired token err = %v, want not found", err)
	}
}

func TestGenerateLinkRejectsUnknownUserAndPlan(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	if _, err := env.tokenUC.GenerateLink(ctx, "6281499999999", ""); !bizErrors.Is(err, bizErrors.ErrCodeUserNotFound) {
		t.Fatalf("unknown user err = %v", err)
	}
	env.mustUser(t, "6281400000002", "")
	if _, err := env.tokenUC.GenerateLink(ctx, "6281400000002", constants.PlanUnlimited); !bizErrors.Is(err, bizErrors.ErrCodePlanUnavailable) {
		t.Fatalf("unlimited plan err = %v", err)
	}
}

func TestCheckoutReusesPendingPayment(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000003", "")

	link, first := env.checkout(t, u.PhoneNumber, constants.PlanPro)
	p := first.Payment
	if first.Reused || p.Amount != 25000 || p.Fee != 0 || p.TotalPayment != 25000 {
		t.Fatalf("payment = %+v", p)
	}
	if p.Status != constants.PaymentStatusPending {
		t.Fatalf("status = %s, want pending", p.Status)
	}
	if !strings.HasPrefix(p.OrderID, "UPGRADE_20260305100000_") || len(p.OrderID) != len("UPGRADE_20260305100000_")+8 {
		t.Fatalf("order id = %s", p.OrderID)
	}
	if first.PaymentURL != "https://pay.test/pay/catatuang/25000?order_id="+p.OrderID+"&qris_only=1" {
		t.Fatalf("payment url = %s", first.PaymentURL)
	}

	env.clock.Advance(5 * time.Minute)
	again, err := env.paymentUC.Checkout(ctx, link.Token.Token, constants.PlanPro, "127.0.0.1")
	if err != nil {
		t.Fatalf("Checkout again: %v", err)
	}
	if !again.Reused || again.Payment.OrderID != p.OrderID {
		t.Fatalf("second checkout reused=%v order=%s, want reuse of %s", again.Reused, again.Payment.OrderID, p.OrderID)
	}

	// 过期的 pending 支付不再复用，状态查询显示 expired
	env.clock.Advance(11 * time.Minute)
	st, err := env.paymentUC.Status(ctx, link.Token.Token)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != constants.PaymentStatusExpired || st.OrderID != p.OrderID {
		t.Fatalf("status = %+v, want expired %s", st, p.OrderID)
	}
	fresh, err := env.paymentUC.Checkout(ctx, link.Token.Token, constants.PlanPro, "127.0.0.1")
	if err != nil {
		t.Fatalf("Checkout after expiry: %v", err)
	}
	if fresh.Reused || fresh.Payment.OrderID == p.OrderID {
		t.Fatalf("expired payment was reused")
	}
}

func TestCheckoutRejectsNonUpgrade(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000004", constants.PlanPro)
	link, err := env.tokenUC.GenerateLink(ctx, u.PhoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}
	if _, err := env.paymentUC.Checkout(ctx, link.Token.Token, constants.PlanStarter, ""); !bizErrors.Is(err, bizErrors.ErrCodePlanNotHigher) {
		t.Fatalf("downgrade err = %v, want plan not higher", err)
	}
	if _, err := env.paymentUC.Checkout(ctx, link.Token.Token, constants.PlanFree, ""); !bizErrors.Is(err, bizErrors.ErrCodePlanUnavailable) {
		t.Fatalf("free plan err = %v, want plan unavailable", err)
	}
	if _, err := env.paymentUC.Checkout(ctx, strings.Repeat("a", 64), constants.PlanVIP, ""); !bizErrors.Is(err, bizErrors.ErrCodeTokenNotFound) {
		t.Fatalf("unknown token err = %v, want token not found", err)
	}

	_, list, err := env.paymentUC.AvailablePlans(ctx, link.Token.Token)
	if err != nil {
		t.Fatalf("AvailablePlans: %v", err)
	}
	if len(list) != 1 || list[0].Plan != constants.PlanVIP {
		t.Fatalf("available plans = %v, want [vip]", list)
	}
}

func TestWebhookCompletesUpgradeExactlyOnce(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000005", "")
	link, res := env.checkout(t, u.PhoneNumber, constants.PlanPro)
	orderID := res.Payment.OrderID

	env.clock.Advance(2 * time.Minute)
	out := env.webhook(t, orderID, constants.WebhookStatusCompleted, 25000)
	if out.Result != constants.WebhookResultProcessed || out.PreviousPlan != constants.PlanFree || out.Plan != constants.PlanPro {
		t.Fatalf("first webhook = %+v", out)
	}
	got := env.reload(t, u.PhoneNumber)
	if got.Plan != constants.PlanPro || got.SubscriptionStatus != constants.SubscriptionStatusActive {
		t.Fatalf("user plan=%s status=%s", got.Plan, got.SubscriptionStatus)
	}
	if want := time.Date(2026, 4, 4, 0, 0, 0, 0, wib); got.SubscriptionExpiresAt == nil || !got.SubscriptionExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got.SubscriptionExpiresAt, want)
	}
	tok, err := env.tokens.GetTokenByValue(ctx, link.Token.Token)
	if err != nil || tok.UsedAt == nil {
		t.Fatalf("token after webhook = %+v, %v", tok, err)
	}
	usedAt := *tok.UsedAt

	env.clock.Advance(time.Minute)
	out = env.webhook(t, orderID, constants.WebhookStatusCompleted, 25000)
	if out.Result != constants.WebhookResultAlreadyProcessed {
		t.Fatalf("duplicate webhook result = %s", out.Result)
	}
	tok, _ = env.tokens.GetTokenByValue(ctx, link.Token.Token)
	if tok.UsedAt == nil || !tok.UsedAt.Equal(usedAt) {
		t.Fatalf("used_at changed: %v -> %v", usedAt, tok.UsedAt)
	}
	upgrades := 0
	for _, typ := range env.publisher.types() {
		if typ == constants.EventPlanUpgraded {
			upgrades++
		}
	}
	if upgrades != 1 {
		t.Fatalf("plan_upgraded events = %d, want 1", upgrades)
	}

	p := env.payment(t, orderID)
	if p.Status != constants.PaymentStatusCompleted || p.NeedsReview || p.PaymentMethod != "qris" || p.CompletedAt == nil {
		t.Fatalf("payment = %+v", p)
	}
	st, err := env.paymentUC.Status(ctx, link.Token.Token)
	if err != nil || st.Status != constants.PaymentStatusCompleted {
		t.Fatalf("Status = %+v, %v", st, err)
	}
	success, err := env.paymentUC.SuccessInfo(ctx, link.Token.Token)
	if err != nil || success.Plan != constants.PlanPro {
		t.Fatalf("SuccessInfo = %+v, %v", success, err)
	}
	// 已使用的令牌不能再结账
	if _, err := env.paymentUC.Checkout(ctx, link.Token.Token, constants.PlanVIP, ""); !bizErrors.Is(err, bizErrors.ErrCodeTokenNotFound) {
		t.Fatalf("checkout with used token err = %v", err)
	}
}

func TestWebhookNeedsReviewWhenPlanNotHigher(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000006", "")
	link, res := env.checkout(t, u.PhoneNumber, constants.PlanStarter)

	// 结账后被管理员升到 vip
	if _, err := env.reconcile.ChangePlan(ctx, u.ID, constants.PlanVIP); err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}
	before := env.reload(t, u.PhoneNumber)

	out := env.webhook(t, res.Payment.OrderID, constants.WebhookStatusCompleted, 15000)
	if out.Result != constants.WebhookResultNeedsReview {
		t.Fatalf("result = %s, want needs_review", out.Result)
	}
	after := env.reload(t, u.PhoneNumber)
	if after.Plan != constants.PlanVIP || !after.SubscriptionExpiresAt.Equal(*before.SubscriptionExpiresAt) {
		t.Fatalf("user changed: plan=%s expires=%v", after.Plan, after.SubscriptionExpiresAt)
	}
	p := env.payment(t, res.Payment.OrderID)
	if p.Status != constants.PaymentStatusCompleted || !p.NeedsReview {
		t.Fatalf("payment status=%s needs_review=%v", p.Status, p.NeedsReview)
	}
	if p.Metadata[constants.MetadataReviewReason] != constants.ReviewReasonNotUpgrade {
		t.Fatalf("review reason = %v", p.Metadata[constants.MetadataReviewReason])
	}
	if tok, _ := env.tokens.GetTokenByValue(ctx, link.Token.Token); tok.UsedAt == nil {
		t.Fatalf("token should be consumed even when review is needed")
	}
	types := env.publisher.types()
	if types[len(types)-1] != constants.EventPaymentNeedsReview {
		t.Fatalf("last event = %s, want payment_needs_review", types[len(types)-1])
	}

	review, err := env.paymentUC.ListNeedsReview(ctx, 10)
	if err != nil || len(review) != 1 || review[0].OrderID != res.Payment.OrderID {
		t.Fatalf("ListNeedsReview = %v, %v", review, err)
	}
}

func TestWebhookUnderpaidNeedsReview(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	u := env.mustUser(t, "6281400000007", "")
	_, res := env.checkout(t, u.PhoneNumber, constants.PlanPro)

	out := env.webhook(t, res.Payment.OrderID, constants.WebhookStatusCompleted, 20000)
	if out.Result != constants.WebhookResultNeedsReview {
		t.Fatalf("result = %s", out.Result)
	}
	if got := env.reload(t, u.PhoneNumber).Plan; got != constants.PlanFree {
		t.Fatalf("plan = %s, want free", got)
	}
	if p := env.payment(t, res.Payment.OrderID); p.Metadata[constants.MetadataReviewReason] != constants.ReviewReasonUnderpaid {
		t.Fatalf("review reason = %v", p.Metadata[constants.MetadataReviewReason])
	}
}

func TestWebhookNonCompletedStatuses(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000008", "")
	link, res := env.checkout(t, u.PhoneNumber, constants.PlanStarter)
	orderID := res.Payment.OrderID

	if out := env.webhook(t, orderID, constants.WebhookStatusPending, 15000); out.Result != constants.WebhookResultIgnored {
		t.Fatalf("pending result = %s", out.Result)
	}
	if p := env.payment(t, orderID); p.Status != constants.PaymentStatusPending {
		t.Fatalf("pending webhook changed status to %s", p.Status)
	}

	if out := env.webhook(t, orderID, constants.WebhookStatusFailed, 15000); out.Result != constants.WebhookResultStatusUpdated {
		t.Fatalf("failed result = %s", out.Result)
	}
	if p := env.payment(t, orderID); p.Status != constants.PaymentStatusFailed {
		t.Fatalf("status = %s, want failed", p.Status)
	}
	if out := env.webhook(t, orderID, constants.WebhookStatusCancelled, 15000); out.Result != constants.WebhookResultIgnored {
		t.Fatalf("cancel after failed result = %s, want ignored", out.Result)
	}
	if got := env.reload(t, u.PhoneNumber).Plan; got != constants.PlanFree {
		t.Fatalf("plan = %s, want free", got)
	}
	if tok, _ := env.tokens.GetTokenByValue(ctx, link.Token.Token); tok.UsedAt != nil {
		t.Fatalf("failed payment must not consume the token")
	}
	if out := env.webhook(t, "UPGRADE_20260305100000_NOPE0000", constants.WebhookStatusFailed, 15000); out.Result != constants.WebhookResultUnmatched {
		t.Fatalf("unknown order result = %s", out.Result)
	}
}

func TestWebhookRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()

	_, err := env.reconcile.HandleWebhook(ctx, &biz.WebhookPayload{
		Amount: 15000, OrderID: "UPGRADE_X", Project: "other", Status: constants.WebhookStatusCompleted,
	})
	if !bizErrors.Is(err, bizErrors.ErrCodeWebhookProjectMismatch) {
		t.Fatalf("project mismatch err = %v", err)
	}
	_, err = env.reconcile.HandleWebhook(ctx, &biz.WebhookPayload{
		Amount: 0, OrderID: "UPGRADE_X", Status: constants.WebhookStatusCompleted,
	})
	if !bizErrors.Is(err, bizErrors.ErrCodeWebhookInvalidPayload) {
		t.Fatalf("zero amount err = %v", err)
	}
	_, err = env.reconcile.HandleWebhook(ctx, &biz.WebhookPayload{
		Amount: 15000, OrderID: "UPGRADE_X", Status: "refunded",
	})
	if !bizErrors.Is(err, bizErrors.ErrCodeWebhookInvalidPayload) {
		t.Fatalf("unknown status err = %v", err)
	}
	if out := env.webhook(t, "UPGRADE_20260305100000_MISSING0", constants.WebhookStatusCompleted, 15000); out.Result != constants.WebhookResultUnmatched {
		t.Fatalf("missing payment result = %s, want unmatched", out.Result)
	}
}

func TestWebhookLegacyTokenFallback(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib), func(bc *conf.Bootstrap) {
		bc.Webhook.LegacyFallback = true
	})
	ctx := context.Background()
	u := env.mustUser(t, "6281400000009", "")
	link, err := env.tokenUC.GenerateLink(ctx, u.PhoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}
	token := link.Token.Token

	if out := env.webhook(t, token, constants.WebhookStatusCompleted, 12345); out.Result != constants.WebhookResultUnmatched {
		t.Fatalf("unknown price result = %s, want unmatched", out.Result)
	}
	out := env.webhook(t, token, constants.WebhookStatusCompleted, 50000)
	if out.Result != constants.WebhookResultProcessed || out.Plan != constants.PlanVIP {
		t.Fatalf("legacy result = %+v", out)
	}
	if got := env.reload(t, u.PhoneNumber).Plan; got != constants.PlanVIP {
		t.Fatalf("plan = %s, want vip", got)
	}
	p := env.payment(t, token)
	if p.Status != constants.PaymentStatusCompleted || p.Metadata[constants.MetadataLegacy] != true {
		t.Fatalf("legacy payment = %+v", p)
	}
	if out := env.webhook(t, token, constants.WebhookStatusCompleted, 50000); out.Result != constants.WebhookResultAlreadyProcessed {
		t.Fatalf("replay result = %s", out.Result)
	}
}

// countingTx 记录开启的事务次数
type countingTx struct {
	biz.Transaction
	mu    sync.Mutex
	calls int
}

func (c *countingTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Transaction.InTx(ctx, fn)
}

// collidingTokenRepo 前 failures 次写入返回唯一约束冲突
type collidingTokenRepo struct {
	biz.UpgradeTokenRepo
	failures int
}

func (r *collidingTokenRepo) CreateToken(ctx context.Context, t *biz.UpgradeToken) error {
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("%w: upgrade_tokens.token", biz.ErrDuplicateKey)
	}
	return r.UpgradeTokenRepo.CreateToken(ctx, t)
}

// collidingPaymentRepo 前 failures 次写入返回唯一约束冲突
type collidingPaymentRepo struct {
	biz.PaymentRepo
	failures int
}

func (r *collidingPaymentRepo) CreatePayment(ctx context.Context, p *biz.Payment) error {
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("%w: payments.order_id", biz.ErrDuplicateKey)
	}
	return r.PaymentRepo.CreatePayment(ctx, p)
}

// failingSubscriptionRepo 保存订阅时失败
type failingSubscriptionRepo struct {
	biz.UserRepo
}

func (r *failingSubscriptionRepo) SaveSubscription(context.Context, *biz.User) error {
	return errors.New("connection reset by peer")
}

func TestTokenCollisionRetriesInNewTransaction(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000010", "")
	old, err := env.tokenUC.GenerateLink(ctx, u.PhoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}

	repo := &collidingTokenRepo{UpgradeTokenRepo: env.tokens, failures: 1}
	tx := &countingTx{Transaction: env.tx}
	uc := biz.NewUpgradeTokenUseCase(repo, env.users, tx, env.locker, env.plans, env.clock, env.conf, env.logger)
	link, err := uc.GenerateLink(ctx, u.PhoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink after collision: %v", err)
	}
	if tx.calls != 2 {
		t.Fatalf("transactions = %d, want 2", tx.calls)
	}
	if _, err := env.tokenUC.FindValid(ctx, link.Token.Token); err != nil {
		t.Fatalf("new token: %v", err)
	}
	if _, err := env.tokenUC.FindValid(ctx, old.Token.Token); !bizErrors.Is(err, bizErrors.ErrCodeTokenNotFound) {
		t.Fatalf("old token err = %v, want not found", err)
	}

	// 连续冲突：旧令牌保留，返回创建失败
	repo.failures = 2
	if _, err := uc.GenerateLink(ctx, u.PhoneNumber, ""); !bizErrors.Is(err, bizErrors.ErrCodeTokenCreateFailed) {
		t.Fatalf("double collision err = %v", err)
	}
	if _, err := env.tokenUC.FindValid(ctx, link.Token.Token); err != nil {
		t.Fatalf("token after failed regeneration: %v", err)
	}
}

func TestCheckoutOrderIDCollisionRetriesInNewTransaction(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000011", "")
	link, err := env.tokenUC.GenerateLink(ctx, u.PhoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}

	repo := &collidingPaymentRepo{PaymentRepo: env.payments, failures: 1}
	tx := &countingTx{Transaction: env.tx}
	uc := biz.NewPaymentUseCase(repo, env.tokenUC, env.tokens, env.users, env.pricingUC, NewPakasirGateway(env.bc, env.logger), tx, env.plans, env.clock, env.conf, env.logger)
	res, err := uc.Checkout(ctx, link.Token.Token, constants.PlanStarter, "")
	if err != nil {
		t.Fatalf("Checkout after collision: %v", err)
	}
	if tx.calls != 2 || res.Reused {
		t.Fatalf("transactions = %d reused = %v, want 2/false", tx.calls, res.Reused)
	}
	if p := env.payment(t, res.Payment.OrderID); p.Status != constants.PaymentStatusPending {
		t.Fatalf("payment status = %s", p.Status)
	}

	repo.failures = 2
	other := env.mustUser(t, "6281400000012", "")
	link, err = env.tokenUC.GenerateLink(ctx, other.PhoneNumber, "")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}
	if _, err := uc.Checkout(ctx, link.Token.Token, constants.PlanStarter, ""); !bizErrors.Is(err, bizErrors.ErrCodeOrderIDCollision) {
		t.Fatalf("double collision err = %v", err)
	}
}

func TestFailedReconcileLeavesPaymentPending(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000013", "")
	link, res := env.checkout(t, u.PhoneNumber, constants.PlanPro)
	orderID := res.Payment.OrderID
	eventsBefore := len(env.publisher.types())

	broken := biz.NewReconcileUseCase(env.payments, env.paymentUC, env.tokens, env.tokenUC, &failingSubscriptionRepo{UserRepo: env.users},
		env.pricings, env.tx, env.locker, env.plans, env.clock, env.conf, env.publisher, env.logger)
	_, err := broken.HandleWebhook(ctx, &biz.WebhookPayload{
		Amount: 25000, OrderID: orderID, Project: "catatuang", Status: constants.WebhookStatusCompleted, PaymentMethod: "qris",
	})
	if !bizErrors.Is(err, bizErrors.ErrCodeReconcileFailed) {
		t.Fatalf("err = %v, want reconcile failed", err)
	}
	p := env.payment(t, orderID)
	if p.Status != constants.PaymentStatusPending || p.CompletedAt != nil {
		t.Fatalf("payment after failed tx = %s completed_at=%v", p.Status, p.CompletedAt)
	}
	if tok, _ := env.tokens.GetTokenByValue(ctx, link.Token.Token); tok.UsedAt != nil {
		t.Fatalf("token consumed by failed tx")
	}
	if got := env.reload(t, u.PhoneNumber).Plan; got != constants.PlanFree {
		t.Fatalf("plan = %s, want free", got)
	}
	if got := len(env.publisher.types()); got != eventsBefore {
		t.Fatalf("events published by failed tx: %d -> %d", eventsBefore, got)
	}

	// 网关重投后正常完成
	if out := env.webhook(t, orderID, constants.WebhookStatusCompleted, 25000); out.Result != constants.WebhookResultProcessed {
		t.Fatalf("retry result = %s", out.Result)
	}
}

func TestCompletionAfterCancelNeedsReview(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	u := env.mustUser(t, "6281400000014", "")
	_, res := env.checkout(t, u.PhoneNumber, constants.PlanPro)
	orderID := res.Payment.OrderID

	if out := env.webhook(t, orderID, constants.WebhookStatusCancelled, 25000); out.Result != constants.WebhookResultStatusUpdated {
		t.Fatalf("cancel result = %s", out.Result)
	}
	out := env.webhook(t, orderID, constants.WebhookStatusCompleted, 25000)
	if out.Result != constants.WebhookResultNeedsReview {
		t.Fatalf("completion after cancel = %s, want needs_review", out.Result)
	}
	if got := env.reload(t, u.PhoneNumber).Plan; got != constants.PlanFree {
		t.Fatalf("plan = %s, want free", got)
	}
	p := env.payment(t, orderID)
	if p.Status != constants.PaymentStatusCompleted || !p.NeedsReview || p.Metadata[constants.MetadataReviewReason] != constants.ReviewReasonPaymentClosed {
		t.Fatalf("payment = %s needs_review=%v reason=%v", p.Status, p.NeedsReview, p.Metadata[constants.MetadataReviewReason])
	}
	if out := env.webhook(t, orderID, constants.WebhookStatusCompleted, 25000); out.Result != constants.WebhookResultAlreadyProcessed {
		t.Fatalf("replay result = %s", out.Result)
	}
}

func TestPaymentAndTokenTransitions(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281400000015", "")
	link, res := env.checkout(t, u.PhoneNumber, constants.PlanStarter)

	p, err := env.paymentUC.FindByOrderID(ctx, res.Payment.OrderID)
	if err != nil || p == nil || p.ID != res.Payment.ID {
		t.Fatalf("FindByOrderID = %+v, %v", p, err)
	}
	if missing, err := env.paymentUC.FindByOrderID(ctx, "UPGRADE_20260305100000_NOPE0000"); err != nil || missing != nil {
		t.Fatalf("FindByOrderID(missing) = %+v, %v", missing, err)
	}

	c := &biz.PaymentCompletion{PaymentMethod: "qris", ExternalOrderID: p.OrderID, CompletedAt: env.clock.Now()}
	changed, err := env.paymentUC.MarkAsCompleted(ctx, p, c)
	if err != nil || !changed || p.Status != constants.PaymentStatusCompleted {
		t.Fatalf("MarkAsCompleted = %v, %v; status=%s", changed, err, p.Status)
	}
	if changed, err := env.paymentUC.MarkAsCompleted(ctx, p, c); err != nil || changed {
		t.Fatalf("second MarkAsCompleted = %v, %v; want false", changed, err)
	}
	if got := env.payment(t, p.OrderID); got.Status != constants.PaymentStatusCompleted || got.PaymentMethod != "qris" {
		t.Fatalf("stored payment = %+v", got)
	}

	if err := env.tokenUC.MarkAsUsed(ctx, link.Token.ID); err != nil {
		t.Fatalf("MarkAsUsed: %v", err)
	}
	first, _ := env.tokens.GetTokenByValue(ctx, link.Token.Token)
	env.clock.Advance(time.Minute)
	if err := env.tokenUC.MarkAsUsed(ctx, link.Token.ID); err != nil {
		t.Fatalf("second MarkAsUsed: %v", err)
	}
	second, _ := env.tokens.GetTokenByValue(ctx, link.Token.Token)
	if first.UsedAt == nil || second.UsedAt == nil || !second.UsedAt.Equal(*first.UsedAt) {
		t.Fatalf("used_at %v -> %v, want unchanged", first.UsedAt, second.UsedAt)
	}
}
