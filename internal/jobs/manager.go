// Package jobs は回覧板の配布通知と期限切れ回覧板の整理を非同期に行います。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/kumi-board/internal/model"
)

const (
	taskTypeNotify = "circular:notify"
	taskTypePurge  = "circular:purge"

	queueCircular = "circular"

	// purgeSchedule は期限切れ回覧板を整理する周期です。
	purgeSchedule = "@every 1h"
)

// DataStore は配布ジョブが必要とするデータベース操作です。
type DataStore interface {
	CircularByID(ctx context.Context, id uint) (*model.Circular, error)
	GroupIDsForCircular(ctx context.Context, circularID uint) ([]uint, error)
	UsersInGroups(ctx context.Context, groupIDs []uint) ([]model.User, error)
	PurgeExpiredCirculars(ctx context.Context, now time.Time) (int64, error)
}

// Manager はジョブの投入と実行を担います。
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	store     *Store
	data      DataStore
	logger    *log.Logger
}

// TaskPayload は配布通知ジョブのペイロードです。
type TaskPayload struct {
	JobID      string `json:"jobId"`
	CircularID uint   `json:"circularId"`
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, data DataStore, store *Store, logger *log.Logger) (*Manager, error) {
	if data == nil {
		return nil, errors.New("data store is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueCircular: 1,
			},
		},
	)
	scheduler := asynq.NewScheduler(opt, nil)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:    client,
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		store:     store,
		data:      data,
		logger:    logger,
	}
	mux.HandleFunc(taskTypeNotify, manager.handleNotifyTask)
	mux.HandleFunc(taskTypePurge, manager.handlePurgeTask)

	purgeTask := asynq.NewTask(taskTypePurge, nil, asynq.Queue(queueCircular))
	if _, err := scheduler.Register(purgeSchedule, purgeTask); err != nil {
		return nil, fmt.Errorf("failed to register purge schedule: %w", err)
	}

	return manager, nil
}

// StartWorkers は Asynq サーバーとスケジューラーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			m.logf("asynq server stopped with error: %v", err)
		}
	}()
	go func() {
		if err := m.scheduler.Run(); err != nil {
			m.logf("asynq scheduler stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.scheduler.Shutdown()
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// NotifyCircular は回覧板の配布通知ジョブをキューに投入し、ジョブIDを返します。
func (m *Manager) NotifyCircular(ctx context.Context, circularID uint) (string, error) {
	if circularID == 0 {
		return "", fmt.Errorf("circularID is required")
	}

	payload := &TaskPayload{
		JobID:      uuid.NewString(),
		CircularID: circularID,
	}

	record := &Record{
		JobID:      payload.JobID,
		CircularID: circularID,
		Status:     StatusQueued,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeNotify, body, asynq.Queue(queueCircular))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1)); err != nil {
		return "", err
	}
	return payload.JobID, nil
}

// GetRecord は配布ジョブの状態を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleNotifyTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	if err := m.store.Upsert(ctx, &Record{
		JobID:      payload.JobID,
		CircularID: payload.CircularID,
		Status:     StatusRunning,
	}); err != nil {
		return err
	}

	circular, err := m.data.CircularByID(ctx, payload.CircularID)
	if err != nil {
		return m.failJob(ctx, payload.JobID, "CIRCULAR_NOT_FOUND", err.Error())
	}

	groupIDs, err := m.data.GroupIDsForCircular(ctx, payload.CircularID)
	if err != nil {
		return m.failJob(ctx, payload.JobID, "GROUP_LOOKUP_FAILED", err.Error())
	}

	users, err := m.data.UsersInGroups(ctx, groupIDs)
	if err != nil {
		return m.failJob(ctx, payload.JobID, "USER_LOOKUP_FAILED", err.Error())
	}

	// 通知チャネル（メール等）は未接続のため、配布先の解決結果をログに残す
	for _, user := range users {
		m.logf("notify user=%d circular=%d title=%q", user.ID, circular.ID, circular.Title)
	}

	return m.store.MarkDone(ctx, payload.JobID, len(users))
}

func (m *Manager) handlePurgeTask(ctx context.Context, _ *asynq.Task) error {
	purged, err := m.data.PurgeExpiredCirculars(ctx, time.Now())
	if err != nil {
		return err
	}
	if purged > 0 {
		m.logf("purged %d expired circulars", purged)
	}
	return nil
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	if err := m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	}); err != nil {
		return err
	}
	return nil
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
