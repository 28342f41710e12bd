package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
)

type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type" binding:"required"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// recordHistory appends an audit entry outside the caller's transaction.
// Audit writes are best effort: a failed insert is logged and swallowed so
// it can never roll back or block the financial operation it describes.
// Callers invoke it after their transaction has committed.
func recordHistory(ctx context.Context,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) {

	userId, userName, err := utils.RequireActor(ctx)
	if err != nil {
		config.LogError(config.GetLogger(), "history", "recordHistory", "missing actor", referenceType, err)
		return
	}

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	history := History{
		ActionType:    actionType,
		Before:        string(b),
		After:         string(a),
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&history).Error; err != nil {
		config.LogError(config.GetLogger(), "history", "recordHistory", "audit insert failed", referenceType, err)
	}
}

func SaveHistoryCreate(ctx context.Context, referenceId int, referenceType string, obj interface{}, description string) {
	recordHistory(ctx, "CREATE", referenceId, referenceType, nil, obj, description)
}

func SaveHistoryUpdate(ctx context.Context, referenceId int, referenceType string, before interface{}, after interface{}, description string) {
	recordHistory(ctx, "UPDATE", referenceId, referenceType, before, after, description)
}

func SaveHistoryVoid(ctx context.Context, referenceId int, referenceType string, before interface{}, description string) {
	recordHistory(ctx, "VOID", referenceId, referenceType, before, nil, description)
}

func SaveHistoryDelete(ctx context.Context, referenceId int, referenceType string, obj interface{}, description string) {
	recordHistory(ctx, "DELETE", referenceId, referenceType, obj, nil, description)
}

func GetHistories(ctx context.Context, referenceId *int, referenceType *string, userId *int) ([]*History, error) {

	db := config.GetDB()
	var results []*History

	dbCtx := db.WithContext(ctx)
	if referenceId != nil && *referenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", referenceId)
	}
	if referenceType != nil && len(*referenceType) > 0 {
		dbCtx = dbCtx.Where("reference_type = ?", referenceType)
	}
	if userId != nil && *userId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", userId)
	}
	err := dbCtx.Order("created_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
