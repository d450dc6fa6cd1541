package repository

import (
	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SMSRepository struct {
	db *gorm.DB
}

func NewSMSRepository(db *gorm.DB) *SMSRepository {
	return &SMSRepository{db: db}
}

func (r *SMSRepository) Create(sms *model.SMS) error {
	return r.db.Create(sms).Error
}

// Store inserts a message unless an identical one is already stored and
// reports whether a row was added.
func (r *SMSRepository) Store(sms *model.SMS) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(sms)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *SMSRepository) FindByICCID(iccid string) ([]model.SMS, error) {
	var smsList []model.SMS
	err := r.db.Where("iccid = ?", iccid).Order("timestamp desc").Find(&smsList).Error
	return smsList, err
}

// Page lists messages newest first. An empty iccid matches every SIM.
func (r *SMSRepository) Page(iccid string, limit, offset int) ([]model.SMS, int64, error) {
	query := r.db.Model(&model.SMS{})
	if iccid != "" {
		query = query.Where("iccid = ?", iccid)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.SMS
	err := query.Order("timestamp desc").Order("id desc").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *SMSRepository) MarkRead(id uint) error {
	return r.db.Model(&model.SMS{}).Where("id = ?", id).Update("is_read", true).Error
}
