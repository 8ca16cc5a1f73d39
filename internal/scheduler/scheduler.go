package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/nturan/flashgram-bot-sub000/internal/config"
)

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	due       DueCounter
	jobs      JobCleaner
	opts      Options
	now       func() time.Time
}

// Notifier interface for sending notifications
type Notifier interface {
	SendReminders(userID int64, count int) error
}

// DueCounter reports how many cards are due per user
type DueCounter interface {
	CountUsersWithDueCards(ctx context.Context, now time.Time) (map[int64]int, error)
}

// JobCleaner evicts finished bulk jobs
type JobCleaner interface {
	Cleanup(maxAge time.Duration) int
}

// Options configures the sweeps
type Options struct {
	StartHour int
	EndHour   int
	JobMaxAge time.Duration
}

// DefaultOptions returns the default notification window and job retention
func DefaultOptions() Options {
	return Options{
		StartHour: config.DefaultNotificationStartHour,
		EndHour:   config.DefaultNotificationEndHour,
		JobMaxAge: 24 * time.Hour,
	}
}

// New creates a new scheduler instance
func New(notifier Notifier, due DueCounter, jobs JobCleaner, opts Options) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		notifier:  notifier,
		due:       due,
		jobs:      jobs,
		opts:      opts,
		now:       time.Now,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	// Напоминания раз в час, первый запуск через час
	if _, err := s.scheduler.Every(1).Hour().WaitForSchedule().Do(s.checkAndSendReminders); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Hour().Do(s.CleanupJobs); err != nil {
		return err
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// CleanupJobs removes finished bulk jobs older than the retention period
func (s *Scheduler) CleanupJobs() int {
	if s.jobs == nil {
		return 0
	}
	removed := s.jobs.Cleanup(s.opts.JobMaxAge)
	if removed > 0 {
		log.Printf("Cleaned up %d finished bulk jobs", removed)
	}
	return removed
}

func (s *Scheduler) checkAndSendReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.SendReminders(ctx)
}

// SendReminders notifies every user with due cards and returns how many were notified.
// Outside the notification window it does nothing.
func (s *Scheduler) SendReminders(ctx context.Context) int {
	now := s.now().UTC()
	currentHour := now.Hour()

	// Проверяем, находится ли текущий час в диапазоне времени для отправки уведомлений
	if !s.inWindow(currentHour) {
		log.Printf("Current hour %d is outside notification hours (%d-%d), skipping reminders",
			currentHour, s.opts.StartHour, s.opts.EndHour)
		return 0
	}

	counts, err := s.due.CountUsersWithDueCards(ctx, now)
	if err != nil {
		log.Printf("Error getting users with due cards: %v", err)
		return 0
	}

	sent := 0
	for userID, count := range counts {
		if count == 0 {
			continue
		}
		if err := s.notifier.SendReminders(userID, count); err != nil {
			log.Printf("Error sending reminder to user %d: %v", userID, err)
			continue
		}
		sent++
	}
	return sent
}

// RunManualCheck forces a check for a specific user
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) error {
	counts, err := s.due.CountUsersWithDueCards(ctx, s.now().UTC())
	if err != nil {
		return err
	}

	if count := counts[userID]; count > 0 {
		return s.notifier.SendReminders(userID, count)
	}
	return nil
}

// inWindow handles windows that wrap past midnight, e.g. 20-6
func (s *Scheduler) inWindow(hour int) bool {
	if s.opts.StartHour <= s.opts.EndHour {
		return hour >= s.opts.StartHour && hour <= s.opts.EndHour
	}
	return hour >= s.opts.StartHour || hour <= s.opts.EndHour
}
