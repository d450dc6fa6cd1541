package repository

import (
	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(webhook *model.Webhook) error {
	return r.db.Create(webhook).Error
}

// FindByICCID returns the enabled webhooks of a SIM, including the ones
// registered for every SIM with iccid "*".
func (r *WebhookRepository) FindByICCID(iccid string) ([]model.Webhook, error) {
	var list []model.Webhook
	err := r.db.Where("iccid IN ? AND enabled = ?", []string{iccid, "*"}, true).Find(&list).Error
	return list, err
}

// List returns every webhook, or the ones of a single SIM.
func (r *WebhookRepository) List(iccid string) ([]model.Webhook, error) {
	var list []model.Webhook
	query := r.db
	if iccid != "" {
		query = query.Where("iccid = ?", iccid)
	}
	err := query.Find(&list).Error
	return list, err
}

func (r *WebhookRepository) Delete(id uint) error {
	res := r.db.Delete(&model.Webhook{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
