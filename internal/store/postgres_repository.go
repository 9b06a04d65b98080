/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to payments, fee records, the transaction fee cache, settlement rate
 * tables and per-tenant processor configuration.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrTenantConfigNotFound = errors.New("tenant psp config not found")
	ErrCacheMiss            = errors.New("transaction fee cache miss")
	ErrRateTableNotFound    = errors.New("settlement rate table not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListConfirmedPayments returns confirmed payments for a tenant, newest first,
// optionally bounded by a date window and provider set.
func (r *PostgresRepository) ListConfirmedPayments(ctx context.Context, tenantID uuid.UUID, opts PaymentQueryOptions) ([]domain.Payment, error) {
	query := `
		SELECT id, tenant_id, order_code, provider, state, amount, currency, payment_date, info
		FROM payments
		WHERE tenant_id = $1 AND state = $2
	`
	args := []interface{}{tenantID, domain.PaymentStateConfirmed}

	if len(opts.Providers) > 0 {
		args = append(args, opts.Providers)
		query += fmt.Sprintf(" AND provider = ANY($%d)", len(args))
	}
	if opts.From != nil {
		args = append(args, *opts.From)
		query += fmt.Sprintf(" AND payment_date >= $%d", len(args))
	}
	if opts.To != nil {
		args = append(args, *opts.To)
		query += fmt.Sprintf(" AND payment_date < $%d", len(args))
	}
	query += " ORDER BY payment_date DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// FindPaymentByID retrieves one payment scoped to its tenant.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, tenantID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `
		SELECT id, tenant_id, order_code, provider, state, amount, currency, payment_date, info
		FROM payments
		WHERE tenant_id = $1 AND id = $2
	`
	row := r.db.QueryRow(ctx, query, tenantID, paymentID)
	payment, err := scanPayment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var payment domain.Payment
	var info []byte
	err := row.Scan(
		&payment.ID,
		&payment.TenantID,
		&payment.OrderCode,
		&payment.Provider,
		&payment.State,
		&payment.AmountMinor,
		&payment.Currency,
		&payment.PaymentDate,
		&info,
	)
	if err != nil {
		return nil, err
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &payment.Info); err != nil {
			return nil, fmt.Errorf("decode payment info for %s: %w", payment.ID, err)
		}
	}
	return &payment, nil
}

// HasFeeRecord reports whether a payment already carries a fee record of the
// given internal type.
func (r *PostgresRepository) HasFeeRecord(ctx context.Context, paymentID uuid.UUID, internalType string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM psp_fee_records WHERE payment_id = $1 AND internal_type = $2)`
	if err := r.db.QueryRow(ctx, query, paymentID, internalType).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MaterializeFeeRecord writes the durable sync outcome for one payment in a
// single transaction: the fee record is upserted on (payment_id, internal_type)
// and the payment's info payload is rewritten with the fee annotation. Either
// both land or neither does, so a re-run after a crash observes a consistent
// state.
func (r *PostgresRepository) MaterializeFeeRecord(ctx context.Context, payment *domain.Payment, fee *domain.FeeRecord, annotation *domain.PSPFeeAnnotation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	upsert := `
		INSERT INTO psp_fee_records (id, payment_id, tenant_id, internal_type, description, amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (payment_id, internal_type) DO UPDATE SET
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			updated_at = NOW()
	`
	if fee.ID == uuid.Nil {
		fee.ID = uuid.New()
	}
	_, err = tx.Exec(ctx, upsert,
		fee.ID, fee.PaymentID, fee.TenantID, fee.InternalType,
		fee.Description, fee.AmountMinor, fee.Currency,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fee record: %w", err)
	}

	payment.Info.PSPFees = annotation
	info, err := json.Marshal(payment.Info)
	if err != nil {
		return fmt.Errorf("encode payment info: %w", err)
	}
	result, err := tx.Exec(ctx, `UPDATE payments SET info = $1 WHERE id = $2 AND tenant_id = $3`,
		info, payment.ID, payment.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update payment info: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}

	return tx.Commit(ctx)
}

// GetFreshCachedTransactionFee returns the cached fee result for a transaction
// when its last modification is within maxAge. A stale row is evicted on read
// and reported as a miss.
func (r *PostgresRepository) GetFreshCachedTransactionFee(ctx context.Context, tenantID uuid.UUID, provider, transactionID string, maxAge time.Duration) (*domain.CachedTransactionFee, error) {
	var entry domain.CachedTransactionFee
	query := `
		SELECT id, tenant_id, provider, transaction_id, gross_amount, fee_amount, net_amount,
		       currency, settlement_id, status, fee_details, transaction_date, settlement_date,
		       created, modified
		FROM psp_transaction_fee_cache
		WHERE tenant_id = $1 AND provider = $2 AND transaction_id = $3
	`
	err := r.db.QueryRow(ctx, query, tenantID, provider, transactionID).Scan(
		&entry.ID, &entry.TenantID, &entry.Provider, &entry.TransactionID,
		&entry.GrossMinor, &entry.FeeMinor, &entry.NetMinor,
		&entry.Currency, &entry.SettlementID, &entry.Status, &entry.FeeDetails,
		&entry.TransactionDate, &entry.SettlementDate,
		&entry.Created, &entry.Modified,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	if time.Since(entry.Modified) > maxAge {
		// Evict so the table does not accumulate rows nobody will ever trust.
		// A failed delete is not a reason to fail the lookup.
		_, _ = r.db.Exec(ctx, `DELETE FROM psp_transaction_fee_cache WHERE id = $1`, entry.ID)
		return nil, ErrCacheMiss
	}

	return &entry, nil
}

// UpsertCachedTransactionFee stores or refreshes a fee result keyed by
// (tenant, provider, transaction id). Modified is bumped so the freshness
// window restarts from this write.
func (r *PostgresRepository) UpsertCachedTransactionFee(ctx context.Context, entry *domain.CachedTransactionFee) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO psp_transaction_fee_cache (
			id, tenant_id, provider, transaction_id, gross_amount, fee_amount, net_amount,
			currency, settlement_id, status, fee_details, transaction_date, settlement_date,
			created, modified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		ON CONFLICT (tenant_id, provider, transaction_id) DO UPDATE SET
			gross_amount = EXCLUDED.gross_amount,
			fee_amount = EXCLUDED.fee_amount,
			net_amount = EXCLUDED.net_amount,
			currency = EXCLUDED.currency,
			settlement_id = EXCLUDED.settlement_id,
			status = EXCLUDED.status,
			fee_details = EXCLUDED.fee_details,
			transaction_date = EXCLUDED.transaction_date,
			settlement_date = EXCLUDED.settlement_date,
			modified = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.TenantID, entry.Provider, entry.TransactionID,
		entry.GrossMinor, entry.FeeMinor, entry.NetMinor,
		entry.Currency, entry.SettlementID, entry.Status, entry.FeeDetails,
		entry.TransactionDate, entry.SettlementDate,
	)
	return err
}

// GetSettlementRateTable returns the permanently cached rate table of a settlement.
func (r *PostgresRepository) GetSettlementRateTable(ctx context.Context, tenantID uuid.UUID, settlementID string) (*domain.SettlementRateTable, error) {
	var table domain.SettlementRateTable
	var rates []byte
	query := `
		SELECT tenant_id, settlement_id, period_year, period_month, rates, settled_at, fetched_at
		FROM psp_settlement_rates
		WHERE tenant_id = $1 AND settlement_id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, settlementID).Scan(
		&table.TenantID, &table.SettlementID, &table.PeriodYear, &table.PeriodMonth,
		&rates, &table.SettledAt, &table.FetchedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRateTableNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(rates, &table.Rates); err != nil {
		return nil, fmt.Errorf("decode settlement rates for %s: %w", settlementID, err)
	}
	return &table, nil
}

// CreateSettlementRateTable records a settlement's rate table. Settlement rates
// are immutable history, so a concurrent duplicate insert is silently ignored
// rather than treated as a conflict.
func (r *PostgresRepository) CreateSettlementRateTable(ctx context.Context, table *domain.SettlementRateTable) error {
	rates, err := json.Marshal(table.Rates)
	if err != nil {
		return fmt.Errorf("encode settlement rates: %w", err)
	}
	query := `
		INSERT INTO psp_settlement_rates (tenant_id, settlement_id, period_year, period_month, rates, settled_at, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tenant_id, settlement_id) DO NOTHING
	`
	_, err = r.db.Exec(ctx, query,
		table.TenantID, table.SettlementID, table.PeriodYear, table.PeriodMonth,
		rates, table.SettledAt,
	)
	return err
}

// GetTenantPSPConfig loads a tenant's processor configuration and OAuth state.
func (r *PostgresRepository) GetTenantPSPConfig(ctx context.Context, tenantID uuid.UUID) (*domain.TenantPSPConfig, error) {
	var cfg domain.TenantPSPConfig
	var lastKnownRates []byte
	query := `
		SELECT tenant_id, mollie_enabled, mollie_api_key, mollie_test_mode,
		       mollie_client_id, mollie_client_secret,
		       mollie_access_token, mollie_refresh_token, mollie_token_expires_at, mollie_oauth_connected,
		       sumup_enabled, sumup_api_key,
		       last_known_rates, cache_ttl_seconds, created, modified
		FROM tenant_psp_configs
		WHERE tenant_id = $1
	`
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&cfg.TenantID, &cfg.MollieEnabled, &cfg.MollieAPIKey, &cfg.MollieTestMode,
		&cfg.MollieClientID, &cfg.MollieClientSecret,
		&cfg.MollieAccessToken, &cfg.MollieRefreshToken, &cfg.MollieTokenExpiresAt, &cfg.MollieOAuthConnected,
		&cfg.SumUpEnabled, &cfg.SumUpAPIKey,
		&lastKnownRates, &cfg.CacheTTLSeconds, &cfg.Created, &cfg.Modified,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTenantConfigNotFound
		}
		return nil, err
	}
	if len(lastKnownRates) > 0 {
		if err := json.Unmarshal(lastKnownRates, &cfg.LastKnownRates); err != nil {
			return nil, fmt.Errorf("decode last known rates for tenant %s: %w", tenantID, err)
		}
	}
	return &cfg, nil
}

// UpdateMollieOAuthTokens persists a refreshed token pair for a tenant.
func (r *PostgresRepository) UpdateMollieOAuthTokens(ctx context.Context, tenantID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE tenant_psp_configs
		SET mollie_access_token = $2, mollie_refresh_token = $3, mollie_token_expires_at = $4, modified = NOW()
		WHERE tenant_id = $1
	`
	result, err := r.db.Exec(ctx, query, tenantID, accessToken, refreshToken, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTenantConfigNotFound
	}
	return nil
}

// SetMollieOAuthConnected stores a freshly exchanged OAuth grant and marks the
// tenant connected.
func (r *PostgresRepository) SetMollieOAuthConnected(ctx context.Context, tenantID uuid.UUID, clientID, clientSecret, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE tenant_psp_configs
		SET mollie_client_id = $2, mollie_client_secret = $3,
		    mollie_access_token = $4, mollie_refresh_token = $5, mollie_token_expires_at = $6,
		    mollie_oauth_connected = TRUE, modified = NOW()
		WHERE tenant_id = $1
	`
	result, err := r.db.Exec(ctx, query, tenantID, clientID, clientSecret, accessToken, refreshToken, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTenantConfigNotFound
	}
	return nil
}

// DisconnectMollieOAuth clears every OAuth credential for a tenant. Sync falls
// back to the plain API key path afterwards.
func (r *PostgresRepository) DisconnectMollieOAuth(ctx context.Context, tenantID uuid.UUID) error {
	query := `
		UPDATE tenant_psp_configs
		SET mollie_access_token = '', mollie_refresh_token = '', mollie_token_expires_at = NULL,
		    mollie_oauth_connected = FALSE, modified = NOW()
		WHERE tenant_id = $1
	`
	result, err := r.db.Exec(ctx, query, tenantID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTenantConfigNotFound
	}
	return nil
}

// UpdateLastKnownRates overwrites the tenant's denormalized snapshot of the
// most recently fetched settlement rate table.
func (r *PostgresRepository) UpdateLastKnownRates(ctx context.Context, tenantID uuid.UUID, rates domain.RateTable) error {
	encoded, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("encode last known rates: %w", err)
	}
	query := `UPDATE tenant_psp_configs SET last_known_rates = $2, modified = NOW() WHERE tenant_id = $1`
	result, err := r.db.Exec(ctx, query, tenantID, encoded)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTenantConfigNotFound
	}
	return nil
}

// LastKnownRates returns the tenant's rate snapshot, nil when none was recorded yet.
func (r *PostgresRepository) LastKnownRates(ctx context.Context, tenantID uuid.UUID) (domain.RateTable, error) {
	var encoded []byte
	query := `SELECT last_known_rates FROM tenant_psp_configs WHERE tenant_id = $1`
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&encoded)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTenantConfigNotFound
		}
		return nil, err
	}
	if len(encoded) == 0 {
		return nil, nil
	}
	var rates domain.RateTable
	if err := json.Unmarshal(encoded, &rates); err != nil {
		return nil, fmt.Errorf("decode last known rates for tenant %s: %w", tenantID, err)
	}
	return rates, nil
}
