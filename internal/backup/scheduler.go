package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"simple-bank/internal/domain"
	"simple-bank/internal/storage"
)

const (
	snapshotStorage = "json_snapshot"
	snapshotVersion = 1
	keyTimeLayout   = "20060102T150405Z"
)

// Meta describes where and when a snapshot was produced.
type Meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the exported state of every user record. Password hashes are never included.
type Snapshot struct {
	Meta  Meta          `json:"meta"`
	Users []PersistUser `json:"users"`
}

type PersistUser struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Balance       decimal.Decimal `json:"balance"`
	AccountType   string          `json:"accountType,omitempty"`
	AccountNumber string          `json:"accountNumber"`
	PhoneNumber   string          `json:"phoneNumber,omitempty"`
	Role          string          `json:"role"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// RecordSource lists every user record.
type RecordSource interface {
	List(ctx context.Context) ([]domain.User, error)
}

// Scheduler exports snapshots periodically and once more on shutdown.
type Scheduler interface {
	Start(ctx context.Context) error
	Shutdown()
	RunOnce(ctx context.Context) (string, error)
}

type Config struct {
	Bucket    string
	KeyPrefix string
	Interval  time.Duration
	// Retain is the number of newest snapshots kept; zero keeps everything.
	Retain int
	Logger *logrus.Logger
}

type scheduler struct {
	cfg     Config
	records RecordSource
	storage storage.Service
	now     func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex
}

func NewScheduler(cfg Config, records RecordSource, store storage.Service) Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	return &scheduler{
		cfg:     cfg,
		records: records,
		storage: store,
		now:     time.Now,
	}
}

func (s *scheduler) Start(ctx context.Context) error {
	if s.cfg.Bucket == "" {
		return fmt.Errorf("backup bucket is required")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(s.ctx); err != nil {
					s.cfg.Logger.WithError(err).Warn("scheduled backup failed")
				}
			}
		}
	}()

	s.cfg.Logger.Infof("backup scheduler started, bucket: %s, every %s", s.cfg.Bucket, s.cfg.Interval)
	return nil
}

// Shutdown stops the ticker and takes a final snapshot.
func (s *scheduler) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.cfg.Logger.WithError(err).Warn("final backup failed")
	}
	s.cfg.Logger.Info("backup scheduler stopped")
}

// RunOnce exports one snapshot, prunes old ones and returns the new object location.
func (s *scheduler) RunOnce(ctx context.Context) (string, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	users, err := s.records.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list users: %w", err)
	}

	now := s.now().UTC()
	snap := Snapshot{
		Meta: Meta{
			Storage:   snapshotStorage,
			Version:   snapshotVersion,
			Timestamp: now,
		},
		Users: make([]PersistUser, 0, len(users)),
	}
	for _, u := range users {
		snap.Users = append(snap.Users, PersistUser{
			ID:            u.ID,
			Name:          u.Name,
			Email:         u.Email,
			Balance:       u.Balance,
			AccountType:   string(u.AccountType),
			AccountNumber: u.AccountNumber,
			PhoneNumber:   u.PhoneNumber,
			Role:          string(u.Role),
			CreatedAt:     u.CreatedAt,
			UpdatedAt:     u.UpdatedAt,
		})
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	location, err := s.storage.PutObject(ctx, bytes.NewReader(payload), storage.PutOptions{
		Bucket:      s.cfg.Bucket,
		Key:         s.objectKey(now),
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}
	s.cfg.Logger.WithFields(logrus.Fields{
		"location": location,
		"users":    len(users),
	}).Info("backup uploaded")

	if err := s.prune(ctx); err != nil {
		s.cfg.Logger.WithError(err).Warn("prune backups")
	}
	return location, nil
}

func (s *scheduler) prune(ctx context.Context) error {
	if s.cfg.Retain <= 0 {
		return nil
	}

	objects, err := s.storage.ListObjects(ctx, s.cfg.Bucket, s.listPrefix())
	if err != nil {
		return err
	}
	if len(objects) <= s.cfg.Retain {
		return nil
	}

	// keys embed a sortable UTC timestamp, newest last
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	stale := objects[:len(objects)-s.cfg.Retain]
	keys := make([]string, 0, len(stale))
	for _, obj := range stale {
		keys = append(keys, obj.Key)
	}
	if err := s.storage.DeleteObjects(ctx, s.cfg.Bucket, keys); err != nil {
		return err
	}
	s.cfg.Logger.WithField("deleted", len(keys)).Info("pruned old backups")
	return nil
}

func (s *scheduler) listPrefix() string {
	if s.cfg.KeyPrefix == "" {
		return "users-"
	}
	return s.cfg.KeyPrefix + "/users-"
}

func (s *scheduler) objectKey(at time.Time) string {
	return s.listPrefix() + at.Format(keyTimeLayout) + ".json"
}
