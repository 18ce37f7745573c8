package care

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/code-100-precent/wallace/pkg/errs"
	"github.com/code-100-precent/wallace/pkg/weather"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler 主动关怀定时任务：久坐提醒、早安、晚安
type Scheduler struct {
	cfg     config.CareConfig
	weather *weather.Client
	pusher  *Pusher
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewScheduler create care scheduler
func NewScheduler(cfg config.CareConfig, weatherClient *weather.Client, pusher *Pusher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		weather: weatherClient,
		pusher:  pusher,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start 注册三个任务并启动
func (s *Scheduler) Start() error {
	sedentarySpec := fmt.Sprintf("@every %dh", s.cfg.SedentaryIntervalHours)
	if _, err := s.cron.AddFunc(sedentarySpec, s.sedentaryReminder); err != nil {
		return errs.NewFatal("care", "register sedentary job", err)
	}

	morningSpec, err := cronSpecFromClock(s.cfg.MorningTime)
	if err != nil {
		return errs.NewFatal("care", "parse morning time", err)
	}
	if _, err := s.cron.AddFunc(morningSpec, s.morningGreeting); err != nil {
		return errs.NewFatal("care", "register morning job", err)
	}

	eveningSpec, err := cronSpecFromClock(s.cfg.EveningTime)
	if err != nil {
		return errs.NewFatal("care", "parse evening time", err)
	}
	if _, err := s.cron.AddFunc(eveningSpec, s.eveningGreeting); err != nil {
		return errs.NewFatal("care", "register evening job", err)
	}

	s.cron.Start()
	s.logger.Info("care scheduler started",
		zap.String("sedentary", sedentarySpec),
		zap.String("morning", s.cfg.MorningTime),
		zap.String("evening", s.cfg.EveningTime),
	)
	return nil
}

// Stop 停止调度，不等待进行中的推送
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) sedentaryReminder() {
	s.pusher.PushAll(context.Background(), "主人已经坐了很久了，提醒他活动一下", "caring")
}

func (s *Scheduler) morningGreeting() {
	ctx := context.Background()
	weatherNow := s.weather.Now(ctx)
	prompt := fmt.Sprintf("早上好！今天的天气：%s。生成一句元气满满的早安问候。", weatherNow)
	s.pusher.PushAll(ctx, prompt, "happy")
}

func (s *Scheduler) eveningGreeting() {
	s.pusher.PushAll(context.Background(), "夜深了，提醒主人早点休息", "gentle")
}

// cronSpecFromClock 将 HH:MM 转为每日 cron 表达式
func cronSpecFromClock(clock string) (string, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid clock %q, want HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", clock)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
