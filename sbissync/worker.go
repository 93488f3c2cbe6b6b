package sbissync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Syncer pulls subscription and invoice snapshots from SBIS and merges them
// into local state, one client at a time. Passes for different clients run in
// parallel up to Workers; passes for the same client are serialized by a
// redis lock so two instances can never interleave one client's unit.
type Syncer struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Provider provider
	Rules    []MappingRule
	Locker   *redislock.Client

	Workers       int
	ClientTimeout time.Duration
}

func NewSyncer(db *gorm.DB, logger *logrus.Logger) (*Syncer, error) {
	client, err := newSbisClient(os.Getenv("SBIS_ACCESS_TOKEN"))
	if err != nil {
		return nil, err
	}

	workers := intFromEnv("SYNC_WORKERS", 4)
	timeout := time.Duration(intFromEnv("SYNC_CLIENT_TIMEOUT_SECONDS", 120)) * time.Second

	return &Syncer{
		DB:            db,
		Logger:        logger,
		Provider:      client,
		Rules:         DefaultMappingRules(),
		Locker:        config.GetRedisLock(),
		Workers:       workers,
		ClientTimeout: timeout,
	}, nil
}

type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
	Locked int `json:"locked"`
}

// SyncAllClients fans a sync pass out over every client with a configured
// contract id. One client's failure or timeout never aborts the batch.
func (s *Syncer) SyncAllClients(ctx context.Context) (SyncResult, error) {
	clients, err := models.ListSyncableClients(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		result SyncResult
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, workers)

	for _, client := range clients {
		select {
		case <-ctx.Done():
			wg.Wait()
			return result, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(client models.Client) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.SyncClient(ctx, client)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, redislock.ErrNotObtained):
				result.Locked++
			case err != nil:
				result.Failed++
			default:
				result.Synced++
			}
		}(client)
	}

	wg.Wait()
	s.Logger.WithFields(logrus.Fields{
		"field":  "SbisSync",
		"synced": result.Synced,
		"failed": result.Failed,
		"locked": result.Locked,
	}).Info("sync pass finished")
	return result, nil
}

// SyncClient runs both reconciliation units (services, then invoices) for one
// client under the per-client lock and timeout.
func (s *Syncer) SyncClient(ctx context.Context, client models.Client) error {
	if strings.TrimSpace(client.SbisContractId) == "" {
		return errors.New("sbis contract id not configured")
	}

	if s.Locker != nil {
		lock, err := s.Locker.Obtain(ctx, fmt.Sprintf("sbis-sync:client:%d", client.ID), s.ClientTimeout+30*time.Second, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				s.Logger.WithFields(logrus.Fields{
					"field":     "SbisSync",
					"client_id": client.ID,
				}).Warn("client sync already in progress; skipping")
			}
			return err
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	if s.ClientTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ClientTimeout)
		defer cancel()
	}

	if err := s.syncClientServices(ctx, client.ID, client.SbisContractId); err != nil {
		return err
	}
	return s.syncClientInvoices(ctx, client.ID, client.SbisContractId)
}

// syncClientServices merges the provider's current subscription list into
// client_services rows. The whole unit is one transaction; the audit row is
// written afterwards on the root handle so a "failed" row survives rollback.
func (s *Syncer) syncClientServices(ctx context.Context, clientId int, contractId string) error {
	var created, updated int

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		services, err := s.Provider.Services(ctx, contractId)
		if err != nil {
			return err
		}

		for _, descriptor := range services {
			externalId := strings.TrimSpace(descriptor.ID)
			if externalId == "" {
				// Nothing safe to key on; skip the record, keep the batch.
				continue
			}

			serviceId, err := resolveService(tx, s.Rules, descriptor)
			if err != nil {
				return err
			}

			var link models.ClientService
			err = tx.Where("client_id = ? AND sbis_service_id = ?", clientId, externalId).Take(&link).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				active := descriptor.Active()
				link = models.ClientService{
					ClientId:      clientId,
					ServiceId:     serviceId,
					SbisServiceId: externalId,
					StartDate:     parseTimeOrNow(descriptor.StartDate),
					EndDate:       parseTimePtr(descriptor.EndDate),
					IsActive:      &active,
				}
				if err := tx.Create(&link).Error; err != nil {
					if isDuplicateKeyErr(err) {
						// Concurrent pass already created it; the update
						// branch of the next sync owns it.
						continue
					}
					return err
				}
				created++
			case err != nil:
				return err
			default:
				active := descriptor.Active()
				if err := tx.Model(&link).Updates(map[string]interface{}{
					"is_active": active,
					"end_date":  parseTimePtr(descriptor.EndDate),
				}).Error; err != nil {
					return err
				}
				updated++
			}
		}
		return nil
	})

	if err != nil {
		s.appendAudit(ctx, clientId, models.SyncTypeServices, models.SyncStatusFailed, nil, err)
		return err
	}
	s.appendAudit(ctx, clientId, models.SyncTypeServices, models.SyncStatusCompleted, map[string]int{
		"links_created": created,
		"links_updated": updated,
	}, nil)
	return nil
}

// syncClientInvoices ingests provider invoices exactly once each. A paid
// invoice's balance decrement is issued in the same transaction as its
// Transaction insert, so neither can ever exist without the other.
func (s *Syncer) syncClientInvoices(ctx context.Context, clientId int, contractId string) error {
	var created, skipped int

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoices, err := s.Provider.Invoices(ctx, contractId)
		if err != nil {
			return err
		}

		for _, invoice := range invoices {
			externalId := strings.TrimSpace(invoice.ID)
			if externalId == "" {
				skipped++
				continue
			}

			var existing models.Transaction
			err := tx.Where("sbis_invoice_id = ?", externalId).Take(&existing).Error
			if err == nil {
				continue // already ingested
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			amount, err := decimal.NewFromString(invoice.Amount.String())
			if err != nil {
				// No safe default for money; skip this record only.
				skipped++
				continue
			}

			serviceId, err := lookupLinkedService(tx, clientId, invoice.ServiceId)
			if err != nil {
				return err
			}

			status := models.TransactionStatusPending
			if strings.EqualFold(strings.TrimSpace(invoice.Status), invoiceStatusPaid) {
				status = models.TransactionStatusCompleted
			}

			description := strings.TrimSpace(invoice.Description)
			if description == "" {
				description = fmt.Sprintf("Invoice #%s", invoice.Number)
			}

			transaction := models.Transaction{
				ClientId:      clientId,
				ServiceId:     serviceId,
				Type:          models.TransactionTypeCharge,
				Amount:        amount,
				Description:   description,
				PeriodStart:   parseTimePtr(invoice.PeriodStart),
				PeriodEnd:     parseTimePtr(invoice.PeriodEnd),
				SbisInvoiceId: &externalId,
				Status:        status,
			}
			if err := tx.Create(&transaction).Error; err != nil {
				if isDuplicateKeyErr(err) {
					continue // a concurrent run won the insert; same outcome
				}
				return err
			}

			if status == models.TransactionStatusCompleted {
				if err := tx.Model(&models.Client{}).
					Where("id = ?", clientId).
					Update("balance", gorm.Expr("balance - ?", amount)).Error; err != nil {
					return err
				}
			}
			created++
		}
		return nil
	})

	if err != nil {
		s.appendAudit(ctx, clientId, models.SyncTypeInvoices, models.SyncStatusFailed, nil, err)
		return err
	}
	s.appendAudit(ctx, clientId, models.SyncTypeInvoices, models.SyncStatusCompleted, map[string]int{
		"invoices_created": created,
		"invoices_skipped": skipped,
	}, nil)
	return nil
}

// lookupLinkedService maps an invoice's provider service ref through the
// client's links. Unresolvable refs yield nil, not an error.
func lookupLinkedService(tx *gorm.DB, clientId int, sbisServiceId string) (*int, error) {
	sbisServiceId = strings.TrimSpace(sbisServiceId)
	if sbisServiceId == "" {
		return nil, nil
	}
	var link models.ClientService
	err := tx.Where("client_id = ? AND sbis_service_id = ?", clientId, sbisServiceId).Take(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link.ServiceId, nil
}

// appendAudit writes the attempt's audit row outside any transaction scope.
// Best effort: an audit write failure is logged, never propagated.
func (s *Syncer) appendAudit(ctx context.Context, clientId int, syncType string, status string, counts map[string]int, cause error) {
	errMessage := ""
	if cause != nil {
		errMessage = cause.Error()
	}
	// The unit's ctx may already be cancelled or timed out; the audit row
	// must still land.
	auditCtx := context.WithoutCancel(ctx)
	if err := models.AppendSyncLog(auditCtx, clientId, syncType, status, counts, errMessage); err != nil {
		config.LogError(s.Logger, "worker.go", "appendAudit", "writing sync log", map[string]interface{}{
			"client_id": clientId,
			"sync_type": syncType,
			"status":    status,
		}, err)
	}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func parseTimeOrNow(value string) time.Time {
	if t := parseTimePtr(value); t != nil {
		return *t
	}
	return time.Now()
}

func parseTimePtr(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
