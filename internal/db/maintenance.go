package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ponder-go/ponder/internal/logger"
)

// MaintenanceConfig tunes the background WAL checkpoint/VACUUM worker.
type MaintenanceConfig struct {
	Enabled           bool
	CheckInterval     time.Duration
	WALCheckpointMode string // PASSIVE | FULL | RESTART | TRUNCATE
	VacuumOnStartup   bool
}

// Maintenance coordinates housekeeping with the read/write paths that share
// the same SQLite file. Operations take the read side of opLock so they run
// concurrently with each other; maintenance takes the write side so it gets
// exclusive access once in-flight operations drain.
type Maintenance interface {
	Start(ctx context.Context) error
	Stop() error
	AcquireOperationLock() func()
	GetMetrics() MaintenanceMetrics
	RunMaintenance(ctx context.Context) error
}

// NoOpMaintenance disables background housekeeping entirely (e.g. for the
// Postgres seam, which manages vacuum itself).
type NoOpMaintenance struct{}

func (NoOpMaintenance) Start(ctx context.Context) error       { return nil }
func (NoOpMaintenance) Stop() error                           { return nil }
func (NoOpMaintenance) AcquireOperationLock() func()          { return func() {} }
func (NoOpMaintenance) GetMetrics() MaintenanceMetrics        { return MaintenanceMetrics{} }
func (NoOpMaintenance) RunMaintenance(ctx context.Context) error { return nil }

// MaintenanceCoordinator is the SQLite-backed Maintenance implementation.
type MaintenanceCoordinator struct {
	db     *sql.DB
	dbPath string
	cfg    MaintenanceConfig
	log    *logger.Logger

	opLock sync.RWMutex

	maintenanceCtx    context.Context
	maintenanceCancel context.CancelFunc
	maintenanceWg     sync.WaitGroup

	metricsLock         sync.Mutex
	lastMaintenanceTime time.Time
	maintenanceCount    uint64
	lastMaintenanceErr  error
}

// NewMaintenanceCoordinator returns a Maintenance; passing a nil cfg
// disables background housekeeping.
func NewMaintenanceCoordinator(dbPath string, conn *sql.DB, cfg *MaintenanceConfig, log *logger.Logger) Maintenance {
	if cfg == nil {
		return NoOpMaintenance{}
	}

	return &MaintenanceCoordinator{
		db:     conn,
		dbPath: dbPath,
		cfg:    *cfg,
		log:    log.WithComponent("db_maintenance"),
	}
}

func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.log.Info("background maintenance disabled")
		return nil
	}

	m.maintenanceCtx, m.maintenanceCancel = context.WithCancel(ctx)

	if m.cfg.VacuumOnStartup {
		if err := m.RunMaintenance(m.maintenanceCtx); err != nil {
			m.log.Warnf("startup maintenance failed: %v", err)
		}
	}

	m.maintenanceWg.Add(1)
	go m.worker(m.cfg.CheckInterval)

	m.log.Infof("background maintenance started, interval=%v mode=%s", m.cfg.CheckInterval, m.cfg.WALCheckpointMode)
	return nil
}

func (m *MaintenanceCoordinator) Stop() error {
	if m.maintenanceCancel == nil {
		return nil
	}

	m.maintenanceCancel()
	m.maintenanceWg.Wait()
	return nil
}

func (m *MaintenanceCoordinator) worker(interval time.Duration) {
	defer m.maintenanceWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.maintenanceCtx.Done():
			return
		case <-ticker.C:
			if err := m.RunMaintenance(m.maintenanceCtx); err != nil {
				m.log.Warnf("periodic maintenance failed: %v", err)
			}
		}
	}
}

// RunMaintenance acquires exclusive access and runs a WAL checkpoint
// followed by a best-effort VACUUM.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	start := time.Now()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var maintenanceErr error

	if err := m.walCheckpoint(); err != nil {
		maintenanceErr = fmt.Errorf("wal checkpoint: %w", err)
	}
	if err := m.vacuum(); err != nil && maintenanceErr == nil {
		maintenanceErr = fmt.Errorf("vacuum: %w", err)
	}

	m.metricsLock.Lock()
	m.lastMaintenanceTime = time.Now()
	m.maintenanceCount++
	m.lastMaintenanceErr = maintenanceErr
	m.metricsLock.Unlock()

	if maintenanceErr != nil {
		m.log.Warnf("maintenance finished with errors in %v: %v", time.Since(start), maintenanceErr)
		return maintenanceErr
	}

	m.log.Infof("maintenance finished in %v", time.Since(start))
	return nil
}

func (m *MaintenanceCoordinator) walCheckpoint() error {
	isWAL, err := m.isWALMode()
	if err != nil {
		return err
	}
	if !isWAL {
		return nil
	}

	mode := m.cfg.WALCheckpointMode
	if mode == "" {
		mode = "PASSIVE"
	}

	var busy, logFrames, checkpointed int
	err = m.db.QueryRow(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)).Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return err
	}

	if busy > 0 {
		m.log.Warnf("wal checkpoint: %d busy pages not checkpointed", busy)
	}
	return nil
}

func (m *MaintenanceCoordinator) vacuum() error {
	_, err := m.db.Exec("VACUUM")
	if err != nil && strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("database is locked, retry later")
	}
	return err
}

func (m *MaintenanceCoordinator) isWALMode() (bool, error) {
	var mode string
	if err := m.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return false, err
	}
	return strings.EqualFold(mode, "wal"), nil
}

// AcquireOperationLock takes the shared side of opLock; the caller must
// invoke the returned function when the operation completes.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

func (m *MaintenanceCoordinator) GetMetrics() MaintenanceMetrics {
	m.metricsLock.Lock()
	defer m.metricsLock.Unlock()

	return MaintenanceMetrics{
		LastMaintenanceTime:  m.lastMaintenanceTime,
		MaintenanceCount:     m.maintenanceCount,
		LastMaintenanceError: m.lastMaintenanceErr,
	}
}

// MaintenanceMetrics reports the coordinator's housekeeping history.
type MaintenanceMetrics struct {
	LastMaintenanceTime  time.Time
	MaintenanceCount     uint64
	LastMaintenanceError error
}
