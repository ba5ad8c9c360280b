package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/prom"
)

var ErrNoActiveReminderConfig = errors.New("Nenhuma configuração de lembretes ativa")

type ReminderRepository interface {
	GetOrCreateConfig(ctx context.Context) (*model.ReminderConfig, error)
	SaveConfig(ctx context.Context, cfg *model.ReminderConfig) (*model.ReminderConfig, error)
	CreateLog(ctx context.Context, l *model.ReminderLog) error
	ListLogs(ctx context.Context, limit int) ([]*model.ReminderLog, error)
}

type TransactionSource interface {
	Pending(ctx context.Context) ([]*model.Transaction, error)
	Get(ctx context.Context, id int64) (*model.Transaction, error)
}

type MailSender interface {
	Send(ctx context.Context, msg gateway.MailMessage) error
}

type VoiceCaller interface {
	Call(ctx context.Context, to, twiml string) (*gateway.CallResponse, error)
}

// DeliveryGuard deduplicates deliveries across runs and processes.
type DeliveryGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type ReminderOptions struct {
	// CallWindow is how far from the configured call time a non-forced run
	// may still place calls.
	CallWindow time.Duration
	Location   *time.Location
}

type ReminderService struct {
	repo   ReminderRepository
	ledger TransactionSource
	mailer MailSender
	caller VoiceCaller
	guard  DeliveryGuard
	opts   ReminderOptions
	now    func() time.Time
}

// NewReminderService wires the reminder pipeline. guard may be nil, which
// disables cross-run deduplication.
func NewReminderService(repo ReminderRepository, ledger TransactionSource, mailer MailSender, caller VoiceCaller, guard DeliveryGuard, opts ReminderOptions) *ReminderService {
	if opts.CallWindow <= 0 {
		opts.CallWindow = 30 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &ReminderService{
		repo:   repo,
		ledger: ledger,
		mailer: mailer,
		caller: caller,
		guard:  guard,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *ReminderService) GetConfig(ctx context.Context) (*model.ReminderConfig, error) {
	return s.repo.GetOrCreateConfig(ctx)
}

func (s *ReminderService) UpdateConfig(ctx context.Context, u model.ReminderConfigUpdate) (*model.ReminderConfig, error) {
	if err := u.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	cfg, err := s.repo.GetOrCreateConfig(ctx)
	if err != nil {
		return nil, err
	}
	u.Apply(cfg)
	saved, err := s.repo.SaveConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("reminder config updated", "id", saved.ID, "active", saved.Active, "days_before", saved.DaysBefore)
	return saved, nil
}

func (s *ReminderService) Logs(ctx context.Context, limit int) ([]*model.ReminderLog, error) {
	return s.repo.ListLogs(ctx, limit)
}

func (s *ReminderService) today() time.Time {
	now := s.now().In(s.opts.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// daysUntil compares calendar dates only. Ledger dates carry no time of day.
func daysUntil(today, due time.Time) int {
	d := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(today).Hours() / 24)
}

// Upcoming lists pending transactions due exactly N days from today for
// any N in days. Overdue entries are included only when days holds the
// matching negative offset.
func (s *ReminderService) Upcoming(ctx context.Context, days []int) ([]model.UpcomingTransaction, error) {
	pending, err := s.ledger.Pending(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}

	today := s.today()
	var out []model.UpcomingTransaction
	for _, t := range pending {
		left := daysUntil(today, t.Date)
		if wanted[left] {
			out = append(out, model.UpcomingTransaction{Transaction: t, DaysLeft: left, DueDate: t.Date})
		}
	}
	return out, nil
}

func (s *ReminderService) withinCallWindow(callTime string) bool {
	at, err := time.Parse("15:04", callTime)
	if err != nil {
		logger.Warn("invalid reminder call time", "call_time", callTime, "error", err)
		return false
	}
	now := s.now().In(s.opts.Location)
	target := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, s.opts.Location)
	diff := now.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.opts.CallWindow
}

func deliveryKey(channel model.ReminderChannel, item model.UpcomingTransaction, today time.Time) string {
	return string(channel) + ":" + strconv.FormatInt(item.Transaction.ID, 10) + ":" + today.Format("2006-01-02") + ":" + strconv.Itoa(item.DaysLeft)
}

// claim returns false when this delivery already happened. Forced runs and
// guard failures always proceed.
func (s *ReminderService) claim(ctx context.Context, force bool, key string) bool {
	if force || s.guard == nil {
		return true
	}
	ok, err := s.guard.Claim(ctx, key)
	if err != nil {
		logger.Warn("reminder dedupe unavailable", "key", key, "error", err)
		return true
	}
	return ok
}

func (s *ReminderService) release(ctx context.Context, force bool, key string) {
	if force || s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, key); err != nil {
		logger.Warn("reminder dedupe release failed", "key", key, "error", err)
	}
}

// Process sends the due reminders. force places calls regardless of the
// call window and bypasses deduplication.
func (s *ReminderService) Process(ctx context.Context, force bool) (*model.ReminderResult, error) {
	start := time.Now()
	defer func() {
		prom.AddHistogramVec(prom.SystemReminder, prom.MetricReminderRunDuration, time.Since(start).Seconds(), strconv.FormatBool(force))
	}()

	res := &model.ReminderResult{Errors: []string{}}
	cfg, err := s.repo.GetOrCreateConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reminder config: %w", err)
	}
	if !cfg.Active {
		logger.Warn("no active reminder config")
		res.Errors = append(res.Errors, ErrNoActiveReminderConfig.Error())
		return res, nil
	}

	items, err := s.Upcoming(ctx, cfg.DaysBefore)
	if err != nil {
		return nil, fmt.Errorf("load upcoming transactions: %w", err)
	}
	res.Processed = len(items)
	logger.Info("processing reminders", "upcoming", len(items), "force", force)

	callsAllowed := force || s.withinCallWindow(cfg.CallTime)
	if cfg.MakeCall && cfg.Phone != "" && !callsAllowed {
		logger.Info("outside call window", "call_time", cfg.CallTime)
	}
	today := s.today()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}
		if cfg.SendEmail && cfg.Email != "" {
			if sent, errMsg := s.sendEmail(ctx, force, cfg.Email, item, today); sent {
				res.EmailsSent++
			} else if errMsg != "" {
				res.Errors = append(res.Errors, errMsg)
			}
		}
		if cfg.MakeCall && cfg.Phone != "" && callsAllowed {
			if made, errMsg := s.placeCall(ctx, force, cfg.Phone, item, today); made {
				res.CallsMade++
			} else if errMsg != "" {
				res.Errors = append(res.Errors, errMsg)
			}
		}
	}

	logger.Info("reminders processed", "processed", res.Processed, "emails", res.EmailsSent, "calls", res.CallsMade, "errors", len(res.Errors))
	return res, nil
}

func (s *ReminderService) sendEmail(ctx context.Context, force bool, to string, item model.UpcomingTransaction, today time.Time) (bool, string) {
	key := deliveryKey(model.ReminderChannelEmail, item, today)
	if !s.claim(ctx, force, key) {
		logger.Debug("email reminder already sent", "key", key)
		return false, ""
	}

	msg, err := composeReminderEmail(to, item)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.release(ctx, force, key)
		s.writeLog(ctx, item, model.ReminderChannelEmail, "", err)
		return false, "Erro ao enviar e-mail: " + err.Error()
	}
	s.writeLog(ctx, item, model.ReminderChannelEmail, "E-mail enviado para "+to, nil)
	return true, ""
}

func (s *ReminderService) placeCall(ctx context.Context, force bool, phone string, item model.UpcomingTransaction, today time.Time) (bool, string) {
	key := deliveryKey(model.ReminderChannelCall, item, today)
	if !s.claim(ctx, force, key) {
		logger.Debug("call reminder already made", "key", key)
		return false, ""
	}

	resp, err := s.caller.Call(ctx, phone, gateway.TwiML(callMessage(item)))
	if err != nil {
		s.release(ctx, force, key)
		s.writeLog(ctx, item, model.ReminderChannelCall, "", err)
		return false, "Erro ao fazer ligação: " + err.Error()
	}
	s.writeLog(ctx, item, model.ReminderChannelCall, fmt.Sprintf("Ligação feita para %s (%s)", phone, resp.Sid), nil)
	return true, ""
}

func (s *ReminderService) writeLog(ctx context.Context, item model.UpcomingTransaction, channel model.ReminderChannel, message string, sendErr error) {
	entry := &model.ReminderLog{
		TransactionID: item.Transaction.ID,
		Channel:       channel,
		Status:        model.ReminderLogSuccess,
		Message:       message,
	}
	if sendErr != nil {
		entry.Status = model.ReminderLogFailed
		entry.Error = sendErr.Error()
	}
	prom.IncReminderDelivery(string(channel), string(entry.Status))
	if err := s.repo.CreateLog(ctx, entry); err != nil {
		logger.Error("reminder log write failed", "transaction_id", item.Transaction.ID, "channel", channel, "error", err)
	}
}

// TwiML renders the voice script for one transaction, as the provider
// fetches it when calls are placed by URL.
func (s *ReminderService) TwiML(ctx context.Context, transactionID int64) (string, error) {
	t, err := s.ledger.Get(ctx, transactionID)
	if err != nil {
		return "", err
	}
	item := model.UpcomingTransaction{
		Transaction: t,
		DaysLeft:    daysUntil(s.today(), t.Date),
		DueDate:     t.Date,
	}
	return gateway.TwiML(callMessage(item)), nil
}
