// Package jobs управляет фоновыми задачами (cron).
// scheduler.go держит тик майнинга и периодическое обновление данных сессии.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler управляет фоновыми задачами.
// Тик майнинга зарегистрирован не больше одного раза.
type Scheduler struct {
	cron     *cron.Cron
	interval time.Duration

	mu       sync.Mutex
	miningID cron.EntryID
	mining   bool
}

// NewScheduler создаёт планировщик с тиком майнинга раз в interval.
func NewScheduler(interval time.Duration) *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:     c,
		interval: interval,
	}
}

// StartMining регистрирует тик майнинга, заменяя прежний.
func (s *Scheduler) StartMining(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mining {
		s.cron.Remove(s.miningID)
	}
	s.miningID = s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(fn))
	s.mining = true

	log.WithField("interval", s.interval).Debug("[CRON] Тик майнинга зарегистрирован")
	return nil
}

// StopMining снимает тик майнинга. Повторный вызов ничего не делает.
func (s *Scheduler) StopMining() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mining {
		return
	}
	s.cron.Remove(s.miningID)
	s.mining = false
	log.Debug("[CRON] Тик майнинга снят")
}

// MiningActive — зарегистрирован ли тик майнинга.
func (s *Scheduler) MiningActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mining
}

// ScheduleRefresh добавляет периодическое обновление по cron-выражению
// (например "@every 5m").
func (s *Scheduler) ScheduleRefresh(ctx context.Context, spec string, refresh func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		log.Debug("[CRON] Обновление данных")
		if err := refresh(ctx); err != nil {
			log.WithError(err).Warn("[CRON] Ошибка обновления")
		}
	})
	return err
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
