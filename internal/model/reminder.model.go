package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type ReminderChannel string

const (
	ReminderChannelEmail ReminderChannel = "EMAIL"
	ReminderChannelCall  ReminderChannel = "CALL"
)

type ReminderLogStatus string

const (
	ReminderLogSuccess ReminderLogStatus = "SUCCESS"
	ReminderLogFailed  ReminderLogStatus = "FAILED"
)

var DefaultReminderDays = []int{2, 0}

const DefaultCallTime = "09:00"

type ReminderConfig struct {
	ID         int64     `json:"id"`
	DaysBefore []int     `json:"days_before"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Active     bool      `json:"active"`
	SendEmail  bool      `json:"send_email"`
	MakeCall   bool      `json:"make_call"`
	CallTime   string    `json:"call_time"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewDefaultReminderConfig() *ReminderConfig {
	return &ReminderConfig{
		DaysBefore: append([]int(nil), DefaultReminderDays...),
		Active:     true,
		SendEmail:  true,
		MakeCall:   true,
		CallTime:   DefaultCallTime,
	}
}

// ReminderConfigUpdate is a partial update of the reminder settings.
type ReminderConfigUpdate struct {
	DaysBefore []int   `json:"days_before,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty"`
	Active     *bool   `json:"active,omitempty"`
	SendEmail  *bool   `json:"send_email,omitempty"`
	MakeCall   *bool   `json:"make_call,omitempty"`
	CallTime   *string `json:"call_time,omitempty"`
}

func (u ReminderConfigUpdate) Validate() error {
	if u.CallTime != nil {
		if _, err := time.Parse("15:04", *u.CallTime); err != nil {
			return errors.New("call_time must be HH:MM")
		}
	}
	for _, d := range u.DaysBefore {
		if d < 0 {
			return errors.New("days_before cannot be negative")
		}
	}
	return nil
}

func (u ReminderConfigUpdate) Apply(c *ReminderConfig) {
	if u.DaysBefore != nil {
		c.DaysBefore = append([]int(nil), u.DaysBefore...)
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Active != nil {
		c.Active = *u.Active
	}
	if u.SendEmail != nil {
		c.SendEmail = *u.SendEmail
	}
	if u.MakeCall != nil {
		c.MakeCall = *u.MakeCall
	}
	if u.CallTime != nil {
		c.CallTime = *u.CallTime
	}
}

type ReminderLog struct {
	ID            int64             `json:"id"`
	TransactionID int64             `json:"transaction_id"`
	Channel       ReminderChannel   `json:"channel"`
	Status        ReminderLogStatus `json:"status"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// UpcomingTransaction is a pending transaction due within the reminder window.
type UpcomingTransaction struct {
	Transaction *Transaction `json:"transaction"`
	DaysLeft    int          `json:"days_left"`
	DueDate     time.Time    `json:"due_date"`
}

func (u UpcomingTransaction) AbsAmount() decimal.Decimal {
	return u.Transaction.Amount.Abs()
}

type ReminderResult struct {
	Processed  int      `json:"processed"`
	EmailsSent int      `json:"emails_sent"`
	CallsMade  int      `json:"calls_made"`
	Errors     []string `json:"errors"`
}
