package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/internal/repository"
	"github.com/utafrali/storefront-checkout/pkg/database"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

const flowColumns = `id, customer_id, basket_id, step, epoch, passwordless_intent,
			error_message, outcome, modal, selection, address_form, focus_target,
			expires_at, created_at, updated_at`

// FlowRepository implements repository.FlowRepository using PostgreSQL.
type FlowRepository struct {
	db     database.DBTX
	tracer database.QueryTracer
}

// NewFlowRepository creates a new PostgreSQL-backed checkout flow repository.
func NewFlowRepository(db database.DBTX, tracer database.QueryTracer) *FlowRepository {
	return &FlowRepository{db: db, tracer: tracer}
}

// flowJSON holds the JSONB columns of a flow.
type flowJSON struct {
	outcome   []byte
	modal     []byte
	selection []byte
	form      []byte
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func marshalFlow(flow *domain.CheckoutFlow) (flowJSON, error) {
	var (
		out flowJSON
		err error
	)
	if out.outcome, err = marshalNullable(flow.Outcome); err != nil {
		return flowJSON{}, fmt.Errorf("marshal outcome: %w", err)
	}
	if out.modal, err = json.Marshal(flow.Modal); err != nil {
		return flowJSON{}, fmt.Errorf("marshal modal: %w", err)
	}
	if out.selection, err = json.Marshal(flow.Selection); err != nil {
		return flowJSON{}, fmt.Errorf("marshal selection: %w", err)
	}
	if out.form, err = marshalNullable(flow.AddressForm); err != nil {
		return flowJSON{}, fmt.Errorf("marshal address form: %w", err)
	}
	return out, nil
}

// Create inserts a new checkout flow into the database.
func (r *FlowRepository) Create(ctx context.Context, flow *domain.CheckoutFlow) (err error) {
	cols, err := marshalFlow(flow)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO checkout_flows (` + flowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := r.tracer.Trace(ctx, "CreateFlow", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		flow.ID,
		flow.CustomerID,
		flow.BasketID,
		flow.Step,
		flow.Epoch,
		flow.PasswordlessIntent,
		nullableString(flow.ErrorMessage),
		cols.outcome,
		cols.modal,
		cols.selection,
		cols.form,
		nullableString(string(flow.FocusTarget)),
		flow.ExpiresAt,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkout flow: %w", err)
	}
	return nil
}

// GetByID retrieves a checkout flow by its ID.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (flow *domain.CheckoutFlow, err error) {
	query := `SELECT ` + flowColumns + ` FROM checkout_flows WHERE id = $1`

	ctx, end := r.tracer.Trace(ctx, "GetFlow", query)
	defer func() { end(err) }()

	flow, err = scanFlow(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("checkout flow", id)
	}
	return flow, err
}

// Update writes flow when the stored epoch equals expectedEpoch. It returns
// repository.ErrStaleFlow when the flow has since moved on, and a NotFound
// error when it no longer exists.
func (r *FlowRepository) Update(ctx context.Context, flow *domain.CheckoutFlow, expectedEpoch int64) (err error) {
	cols, err := marshalFlow(flow)
	if err != nil {
		return err
	}

	query := `
		UPDATE checkout_flows
		SET customer_id = $1, basket_id = $2, step = $3, epoch = $4,
			passwordless_intent = $5, error_message = $6, outcome = $7,
			modal = $8, selection = $9, address_form = $10, focus_target = $11,
			expires_at = $12, updated_at = $13
		WHERE id = $14 AND epoch = $15`

	ctx, end := r.tracer.Trace(ctx, "UpdateFlow", query)
	defer func() { end(err) }()

	updatedAt := time.Now().UTC()
	ct, err := r.db.Exec(ctx, query,
		flow.CustomerID,
		flow.BasketID,
		flow.Step,
		flow.Epoch,
		flow.PasswordlessIntent,
		nullableString(flow.ErrorMessage),
		cols.outcome,
		cols.modal,
		cols.selection,
		cols.form,
		nullableString(string(flow.FocusTarget)),
		flow.ExpiresAt,
		updatedAt,
		flow.ID,
		expectedEpoch,
	)
	if err != nil {
		return fmt.Errorf("update checkout flow: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM checkout_flows WHERE id = $1)`, flow.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check checkout flow: %w", err)
		}
		if !exists {
			return apperrors.NotFound("checkout flow", flow.ID)
		}
		return repository.ErrStaleFlow
	}

	flow.UpdatedAt = updatedAt
	return nil
}

// DeleteExpired removes flows that expired before the given time.
func (r *FlowRepository) DeleteExpired(ctx context.Context, before time.Time) (n int64, err error) {
	query := `DELETE FROM checkout_flows WHERE expires_at < $1`

	ctx, end := r.tracer.Trace(ctx, "DeleteExpiredFlows", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired checkout flows: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanFlow(row pgx.Row) (*domain.CheckoutFlow, error) {
	var (
		flow         domain.CheckoutFlow
		errorMessage *string
		focusTarget  *string
		outcomeJSON  []byte
		modalJSON    []byte
		selectJSON   []byte
		formJSON     []byte
	)

	if err := row.Scan(
		&flow.ID,
		&flow.CustomerID,
		&flow.BasketID,
		&flow.Step,
		&flow.Epoch,
		&flow.PasswordlessIntent,
		&errorMessage,
		&outcomeJSON,
		&modalJSON,
		&selectJSON,
		&formJSON,
		&focusTarget,
		&flow.ExpiresAt,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan checkout flow: %w", err)
	}

	if errorMessage != nil {
		flow.ErrorMessage = *errorMessage
	}
	if focusTarget != nil {
		flow.FocusTarget = domain.FocusTarget(*focusTarget)
	}

	if isJSONValue(outcomeJSON) {
		var outcome domain.AuthOutcome
		if err := json.Unmarshal(outcomeJSON, &outcome); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		flow.Outcome = &outcome
	}
	if isJSONValue(modalJSON) {
		if err := json.Unmarshal(modalJSON, &flow.Modal); err != nil {
			return nil, fmt.Errorf("unmarshal modal: %w", err)
		}
	}
	if isJSONValue(selectJSON) {
		if err := json.Unmarshal(selectJSON, &flow.Selection); err != nil {
			return nil, fmt.Errorf("unmarshal selection: %w", err)
		}
	}
	if isJSONValue(formJSON) {
		var form domain.Address
		if err := json.Unmarshal(formJSON, &form); err != nil {
			return nil, fmt.Errorf("unmarshal address form: %w", err)
		}
		flow.AddressForm = &form
	}

	return &flow, nil
}

func isJSONValue(b []byte) bool {
	return len(b) > 0 && string(b) != "null"
}

// nullableString returns nil if the string is empty, otherwise a pointer to the string.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
