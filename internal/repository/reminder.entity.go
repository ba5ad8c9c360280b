package repository

import (
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
)

type ReminderConfigEntity struct {
	ID         int64     `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	DaysBefore string    `db:"days_before" gorm:"column:days_before;not null;default:'2,0'"`
	Phone      string    `db:"phone"       gorm:"column:phone"`
	Email      string    `db:"email"       gorm:"column:email"`
	Active     bool      `db:"active"      gorm:"column:active;not null"`
	SendEmail  bool      `db:"send_email"  gorm:"column:send_email;not null"`
	MakeCall   bool      `db:"make_call"   gorm:"column:make_call;not null"`
	CallTime   string    `db:"call_time"   gorm:"column:call_time;not null;default:'09:00'"`
	CreatedAt  time.Time `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `db:"updated_at"  gorm:"column:updated_at;autoUpdateTime"`
}

func (ReminderConfigEntity) TableName() string {
	return "reminder_configs"
}

type ReminderLogEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID int64     `db:"transaction_id" gorm:"column:transaction_id;not null;index"`
	Channel       string    `db:"channel"        gorm:"column:channel;not null"`
	Status        string    `db:"status"         gorm:"column:status;not null"`
	Message       string    `db:"message"        gorm:"column:message"`
	Error         string    `db:"error"          gorm:"column:error"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (ReminderLogEntity) TableName() string {
	return "reminder_logs"
}

func joinDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// splitDays ignores entries that are not numbers.
func splitDays(s string) []int {
	days := []int{}
	for _, p := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	return days
}

func toReminderConfigEntity(m *model.ReminderConfig) *ReminderConfigEntity {
	return &ReminderConfigEntity{
		ID:         m.ID,
		DaysBefore: joinDays(m.DaysBefore),
		Phone:      m.Phone,
		Email:      m.Email,
		Active:     m.Active,
		SendEmail:  m.SendEmail,
		MakeCall:   m.MakeCall,
		CallTime:   m.CallTime,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toReminderConfigModel(e *ReminderConfigEntity) *model.ReminderConfig {
	return &model.ReminderConfig{
		ID:         e.ID,
		DaysBefore: splitDays(e.DaysBefore),
		Phone:      e.Phone,
		Email:      e.Email,
		Active:     e.Active,
		SendEmail:  e.SendEmail,
		MakeCall:   e.MakeCall,
		CallTime:   e.CallTime,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func toReminderLogModel(e *ReminderLogEntity) *model.ReminderLog {
	return &model.ReminderLog{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		Channel:       model.ReminderChannel(e.Channel),
		Status:        model.ReminderLogStatus(e.Status),
		Message:       e.Message,
		Error:         e.Error,
		CreatedAt:     e.CreatedAt,
	}
}
