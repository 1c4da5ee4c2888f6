package data

import (
	"context"
	"errors"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"
	"catatuang-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepo 用户及用量台账数据访问
type userRepo struct {
	data *Data
	log  *log.Helper
}

// NewUserRepo 创建用户 repo（返回 biz.UserRepo 接口）
func NewUserRepo(data *Data, logger log.Logger) biz.UserRepo {
	return &userRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *userRepo) first(db *gorm.DB, query string, arg interface{}) (*biz.User, error) {
	var m model.User
	if err := db.Where(query, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizUser(&m), nil
}

// GetUserByPhone 按手机号查询，不存在返回 nil
func (r *userRepo) GetUserByPhone(ctx context.Context, phoneNumber string) (*biz.User, error) {
	return r.first(r.data.DB(ctx), "phone_number = ?", phoneNumber)
}

// GetUserByID 按 ID 查询，不存在返回 nil
func (r *userRepo) GetUserByID(ctx context.Context, userID string) (*biz.User, error) {
	return r.first(r.data.DB(ctx), "id = ?", userID)
}

// LockUserByPhone SELECT ... FOR UPDATE
func (r *userRepo) LockUserByPhone(ctx context.Context, phoneNumber string) (*biz.User, error) {
	return r.first(r.data.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "phone_number = ?", phoneNumber)
}

// LockUserByID SELECT ... FOR UPDATE
func (r *userRepo) LockUserByID(ctx context.Context, userID string) (*biz.User, error) {
	return r.first(r.data.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", userID)
}

// CreateUser 创建用户，手机号冲突返回 biz.ErrDuplicateKey
func (r *userRepo) CreateUser(ctx context.Context, u *biz.User) error {
	m := fromBizUser(u)
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	u.ID = m.ID
	u.CreatedAt = m.CreatedAt
	u.UpdatedAt = m.UpdatedAt
	return nil
}

// UpdateProfile 更新资料字段（name / reminder_enabled / response_style）
func (r *userRepo) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) error {
	return r.data.DB(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(fields).Error
}

// SaveSubscription 保存套餐与订阅窗口
func (r *userRepo) SaveSubscription(ctx context.Context, u *biz.User) error {
	return r.data.DB(ctx).Model(&model.User{}).Where("id = ?", u.ID).Updates(map[string]interface{}{
		"plan":                    u.Plan,
		"subscription_started_at": u.SubscriptionStartedAt,
		"subscription_expires_at": u.SubscriptionExpiresAt,
		"subscription_status":     u.SubscriptionStatus,
	}).Error
}

// ResetCounters 清零两个月度计数器
func (r *userRepo) ResetCounters(ctx context.Context, userID string, today time.Time) error {
	return r.data.DB(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"chat_count_month":  0,
		"struk_count_month": 0,
		"last_reset_at":     today,
	}).Error
}

// IncrementCounter 原子累加计数器
func (r *userRepo) IncrementCounter(ctx context.Context, userID, counter string, n int) error {
	column := "chat_count_month"
	if counter == constants.CounterStruk {
		column = "struk_count_month"
	}
	return r.data.DB(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", n)).Error
}

// DeleteUser 删除用户及其交易、预算、令牌、支付记录和待确认上传（调用方负责事务）
func (r *userRepo) DeleteUser(ctx context.Context, userID string) error {
	db := r.data.DB(ctx)
	var u model.User
	if err := db.Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if err := db.Where("user_id = ?", userID).Delete(&model.Transaction{}).Error; err != nil {
		return err
	}
	if err := db.Where("user_id = ?", userID).Delete(&model.Budget{}).Error; err != nil {
		return err
	}
	if err := db.Where("user_id = ?", userID).Delete(&model.Payment{}).Error; err != nil {
		return err
	}
	if err := db.Where("user_id = ? OR phone_number = ?", userID, u.PhoneNumber).Delete(&model.UpgradeToken{}).Error; err != nil {
		return err
	}
	if err := db.Where("user_id = ?", userID).Delete(&model.PendingUpload{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.User{}, "id = ?", userID).Error
}

// MarkExpired 到期日早于 today 的活跃订阅置为 expired
func (r *userRepo) MarkExpired(ctx context.Context, today time.Time) (int64, error) {
	res := r.data.DB(ctx).Model(&model.User{}).
		Where("subscription_status = ?", constants.SubscriptionStatusActive).
		Where("subscription_expires_at IS NOT NULL AND subscription_expires_at < ?", today).
		Update("subscription_status", constants.SubscriptionStatusExpired)
	return res.RowsAffected, res.Error
}

// ListExpiringBetween 到期日在 [from, to) 内的活跃订阅
func (r *userRepo) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*biz.User, error) {
	var list []*model.User
	err := r.data.DB(ctx).
		Where("subscription_status = ?", constants.SubscriptionStatusActive).
		Where("subscription_expires_at >= ? AND subscription_expires_at < ?", from, to).
		Order("subscription_expires_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return toBizUsers(list), nil
}

// ListExpired 到期日早于 today 但仍为 active 的订阅
func (r *userRepo) ListExpired(ctx context.Context, today time.Time) ([]*biz.User, error) {
	var list []*model.User
	err := r.data.DB(ctx).
		Where("subscription_status = ?", constants.SubscriptionStatusActive).
		Where("subscription_expires_at IS NOT NULL AND subscription_expires_at < ?", today).
		Order("subscription_expires_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return toBizUsers(list), nil
}

// ResetStaleCounters 本月尚未重置的用户统一清零
func (r *userRepo) ResetStaleCounters(ctx context.Context, monthStart, today time.Time) (int64, error) {
	res := r.data.DB(ctx).Model(&model.User{}).
		Where("last_reset_at IS NULL OR last_reset_at < ?", monthStart).
		Updates(map[string]interface{}{
			"chat_count_month":  0,
			"struk_count_month": 0,
			"last_reset_at":     today,
		})
	return res.RowsAffected, res.Error
}

// ListReminderTargets 开启提醒的活跃用户中 [from, to) 内没有交易的用户
func (r *userRepo) ListReminderTargets(ctx context.Context, from, to time.Time) ([]*biz.User, error) {
	db := r.data.DB(ctx)
	recorded := db.Session(&gorm.Session{NewDB: true}).Model(&model.Transaction{}).
		Select("1").
		Where("transactions.user_id = users.id AND transactions.tanggal >= ? AND transactions.tanggal < ?", from, to)
	var list []*model.User
	err := db.
		Where("status = ? AND reminder_enabled = ?", constants.UserStatusActive, true).
		Where("NOT EXISTS (?)", recorded).
		Order("phone_number ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return toBizUsers(list), nil
}

func toBizUser(m *model.User) *biz.User {
	return &biz.User{
		ID:                    m.ID,
		PhoneNumber:           m.PhoneNumber,
		Name:                  m.Name,
		Plan:                  m.Plan,
		Status:                m.Status,
		ReminderEnabled:       m.ReminderEnabled,
		ResponseStyle:         m.ResponseStyle,
		ChatCountMonth:        m.ChatCountMonth,
		StrukCountMonth:       m.StrukCountMonth,
		LastResetAt:           m.LastResetAt,
		SubscriptionStartedAt: m.SubscriptionStartedAt,
		SubscriptionExpiresAt: m.SubscriptionExpiresAt,
		SubscriptionStatus:    m.SubscriptionStatus,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func toBizUsers(list []*model.User) []*biz.User {
	out := make([]*biz.User, 0, len(list))
	for _, m := range list {
		out = append(out, toBizUser(m))
	}
	return out
}

func fromBizUser(u *biz.User) *model.User {
	return &model.User{
		ID:                    u.ID,
		PhoneNumber:           u.PhoneNumber,
		Name:                  u.Name,
		Plan:                  u.Plan,
		Status:                u.Status,
		ReminderEnabled:       u.ReminderEnabled,
		ResponseStyle:         u.ResponseStyle,
		ChatCountMonth:        u.ChatCountMonth,
		StrukCountMonth:       u.StrukCountMonth,
		LastResetAt:           u.LastResetAt,
		SubscriptionStartedAt: u.SubscriptionStartedAt,
		SubscriptionExpiresAt: u.SubscriptionExpiresAt,
		SubscriptionStatus:    u.SubscriptionStatus,
	}
}
