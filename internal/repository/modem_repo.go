package repository

import (
	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ModemRepository struct {
	db *gorm.DB
}

func NewModemRepository(db *gorm.DB) *ModemRepository {
	return &ModemRepository{db: db}
}

// Upsert stores a status snapshot. The user defined name is never overwritten.
func (r *ModemRepository) Upsert(modem *model.Modem) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "iccid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"imei", "manufacturer", "model", "revision", "port_name", "status",
			"signal_strength", "rssi", "operator", "registration", "local_ip", "last_seen",
		}),
	}).Create(modem).Error
}

func (r *ModemRepository) FindByICCID(iccid string) (*model.Modem, error) {
	var modem model.Modem
	err := r.db.First(&modem, "iccid = ?", iccid).Error
	return &modem, err
}

// Latest returns the most recently seen modem.
func (r *ModemRepository) Latest() (*model.Modem, error) {
	var modem model.Modem
	err := r.db.Order("last_seen desc").First(&modem).Error
	return &modem, err
}

func (r *ModemRepository) List() ([]model.Modem, error) {
	var list []model.Modem
	err := r.db.Order("last_seen desc").Find(&list).Error
	return list, err
}

func (r *ModemRepository) Rename(iccid, name string) error {
	res := r.db.Model(&model.Modem{}).Where("iccid = ?", iccid).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ModemRepository) MarkAllOffline() error {
	return r.db.Model(&model.Modem{}).Where("1 = 1").Update("status", "offline").Error
}
