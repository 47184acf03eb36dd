package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"botmanager/src/advisor"
	"botmanager/src/connectors"
	"botmanager/src/controller"
	"botmanager/src/model"
	"botmanager/src/notify"
	"botmanager/src/repository"
	"botmanager/src/risk"
)

// SignalScheduler drives per-user signal generation: it rate-limits each
// user, applies the portfolio gates, invokes the generator, and persists or
// executes the outcome. One user's failure never blocks the others.
type SignalScheduler struct {
	userExchanges *repository.UserExchangeRepository
	positions     *repository.PositionRepository
	signals       *repository.SignalRepository
	executor      *controller.SignalExecutor
	generator     advisor.SignalGenerator
	cooldown      CooldownTracker
	prices        connectors.PriceSource
	notifier      notify.Notifier
	config        Config

	now func() time.Time
}

func NewSignalScheduler(
	userExchanges *repository.UserExchangeRepository,
	positions *repository.PositionRepository,
	signals *repository.SignalRepository,
	executor *controller.SignalExecutor,
	generator advisor.SignalGenerator,
	cooldown CooldownTracker,
	prices connectors.PriceSource,
	notifier notify.Notifier,
	config Config,
) *SignalScheduler {
	return &SignalScheduler{
		userExchanges: userExchanges,
		positions:     positions,
		signals:       signals,
		executor:      executor,
		generator:     generator,
		cooldown:      cooldown,
		prices:        prices,
		notifier:      notifier,
		config:        config,
		now:           time.Now,
	}
}

func (s *SignalScheduler) Name() string { return "signal_scheduler" }

// RunCycle evaluates every active user once. The outer tick is short; the
// per-user cooldown below is what enforces the real analysis interval.
func (s *SignalScheduler) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := NewCycleReport(s.Name())

	users, err := s.userExchanges.FindActive(ctx)
	if err != nil {
		return report, fmt.Errorf("listing active users: %w", err)
	}

	prices, err := s.prices.Prices(ctx)
	if err != nil {
		logger.WithError(err).
			Warn("Price snapshot unavailable for signal context, continuing without it")
		prices = nil
	}

	for i := range users {
		userExchange := &users[i]
		key := fmt.Sprintf("user:%d", userExchange.UserID)

		s.evaluateUser(ctx, userExchange, prices, report, key)
	}

	report.Log()
	return report, nil
}

func (s *SignalScheduler) evaluateUser(
	ctx context.Context,
	userExchange *model.UserExchange,
	prices map[string]decimal.Decimal,
	report *CycleReport,
	key string,
) {

	userID := userExchange.UserID

	lastRun, err := s.cooldown.Get(ctx, userID)
	if err != nil {
		logger.WithError(err).
			WithField("user_id", userID).
			Warn("Cooldown read failed, treating user as never analyzed")
	}

	interval := time.Duration(userExchange.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Duration(s.config.DefaultUserIntervalMinutes) * time.Minute
	}
	if s.now().Sub(lastRun) < interval {
		report.Skip(key, "cooldown")
		return
	}

	openCount, err := s.positions.CountOpenByUser(ctx, userID)
	if err != nil {
		report.Fail(key, "counting open positions", err)
		return
	}
	if !risk.CanOpenPosition(openCount, userExchange.MaxOpenPositions) {
		report.Skip(key, "max open positions reached")
		return
	}

	pair := s.pickPair(ctx, userExchange, report, key)
	if pair == "" {
		return
	}

	request := advisor.Request{
		Pair:        pair,
		RiskProfile: userExchange.RiskProfile,
	}
	if last, ok := prices[pair]; ok {
		request.LastPrice = last
	}

	advice, err := s.generator.Generate(ctx, request)
	if err != nil {
		// Per-user isolation: log and move on, the next tick retries.
		report.Fail(key, "generating signal", err)
		return
	}

	if cdErr := s.cooldown.Set(ctx, userID, s.now()); cdErr != nil {
		logger.WithError(cdErr).
			WithField("user_id", userID).
			Warn("Cooldown write failed")
	}

	if advice.Action == model.SignalActionHold {
		// Hold recommendations are never persisted.
		report.OK(key, "hold")
		return
	}

	signal := &model.Signal{
		UserID:      userID,
		Pair:        pair,
		Action:      advice.Action,
		Confidence:  advice.Confidence,
		EntryPrice:  advice.EntryPrice,
		TargetPrice: advice.TargetPrice,
		StopLoss:    advice.StopLoss,
		SizePercent: advice.SizePercent,
		Rationale:   advice.Rationale,
		Status:      model.SignalStatusPending,
		ValidUntil:  s.now().Add(time.Duration(s.config.SignalValidityMinutes) * time.Minute),
	}

	if !risk.MeetsConfidence(advice.Confidence, userExchange.MinConfidence) {
		signal.Status = model.SignalStatusSkipped
		if err := s.signals.Create(ctx, signal); err != nil {
			report.Fail(key, "persisting skipped signal", err)
			return
		}
		report.OK(key, "skipped below confidence threshold")
		return
	}

	if err := s.signals.Create(ctx, signal); err != nil {
		report.Fail(key, "persisting signal", err)
		return
	}

	s.notifier.Notify(ctx, userID, notify.KindSignalCreated,
		"New trade signal",
		fmt.Sprintf("%s %s (confidence %s): %s",
			advice.Action, pair, advice.Confidence, advice.Rationale))

	if userExchange.AutoTrade {
		if _, err := s.executor.ApproveSignal(ctx, signal.ID); err != nil {
			report.Fail(key, "executing signal autonomously", err)
			return
		}
		report.OK(key, "signal executed")
		return
	}

	report.OK(key, "signal pending")
}

// pickPair returns the first configured pair without an open position, or ""
// after recording the skip. Holding a pair already blocks new entries on it
// (no pyramiding).
func (s *SignalScheduler) pickPair(
	ctx context.Context,
	userExchange *model.UserExchange,
	report *CycleReport,
	key string,
) string {

	pairs := userExchange.PairList()
	if len(pairs) == 0 {
		report.Skip(key, "no pairs configured")
		return ""
	}

	for _, pair := range pairs {
		open, err := s.positions.FindOpenByUserAndPair(ctx, userExchange.UserID, pair)
		if err != nil {
			report.Fail(key, "checking open positions", err)
			return ""
		}
		if len(open) == 0 {
			return pair
		}
	}

	report.Skip(key, "open position exists for every configured pair")
	return ""
}
