package model

import (
	"time"
)

// Modem is the last status snapshot of a SIM/modem pair.
type Modem struct {
	ICCID          string    `gorm:"primaryKey;column:iccid" json:"iccid"`
	Name           string    `json:"name"` // User defined alias
	IMEI           string    `json:"imei"`
	Manufacturer   string    `json:"manufacturer"`
	Model          string    `json:"model"`
	Revision       string    `json:"revision"`
	Operator       string    `json:"operator"`
	SignalStrength int       `json:"signal_strength"` // percent of CSQ 31
	RSSI           int       `json:"rssi"`            // dBm, 0 when unknown
	Registration   string    `json:"registration"`    // Home, Roaming, Denied, etc.
	LocalIP        string    `json:"local_ip"`
	PortName       string    `json:"port_name"`
	Status         string    `json:"status"` // online, offline
	LastSeen       time.Time `json:"last_seen"`
}

const (
	SMSReceived = "received"
	SMSSent     = "sent"
)

// SMS is a stored text message. Received messages are unique per SIM on
// storage index, sender and timestamp.
type SMS struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ICCID     string    `gorm:"uniqueIndex:idx_sms_dedupe;size:32;not null;column:iccid" json:"iccid"`
	SIMIndex  int       `gorm:"uniqueIndex:idx_sms_dedupe" json:"sim_index"` // storage index when read
	Phone     string    `gorm:"uniqueIndex:idx_sms_dedupe;index;size:64;not null" json:"phone"`
	Alpha     string    `json:"alpha,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_sms_dedupe;index" json:"timestamp"`
	Type      string    `gorm:"uniqueIndex:idx_sms_dedupe;index;size:16" json:"type"` // sent, received
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	Reference int       `json:"reference,omitempty"` // +CMGS message reference
	CreatedAt time.Time `json:"created_at"`
}

type Webhook struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ICCID     string    `gorm:"index;not null;column:iccid" json:"iccid"`
	URL       string    `gorm:"not null" json:"url"`
	Platform  string    `json:"platform"`   // telegram, slack, generic
	ChannelID string    `json:"channel_id"` // For Telegram
	Template  string    `json:"template"`   // "Msg from {{.Phone}}: {{.Content}}"
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

func All() []any {
	return []any{&Modem{}, &SMS{}, &Webhook{}}
}
