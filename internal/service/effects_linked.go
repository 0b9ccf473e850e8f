package service

import (
	"context"
	"errors"
	"fmt"

	"procuretrack/internal/model"
	"procuretrack/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// linkedDocuments loads the documents doc references under relation, oldest link first.
// They are read inside the caller's transaction.
func (e *effects) linkedDocuments(ctx context.Context, doc *model.Document, relation string) ([]model.Document, error) {
	links, err := e.docs.Links(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document links: %w", err)
	}

	var out []model.Document
	for _, l := range links {
		if l.Relation != relation {
			continue
		}
		linked, err := e.docs.FindByID(ctx, l.LinkedDocumentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load linked document: %w", err)
		}
		out = append(out, *linked)
	}
	if len(out) == 0 {
		return nil, workflow.NewSideEffectError(workflow.ErrMissingLink,
			map[string]interface{}{"relation": relation},
			"%s has no linked %s", doc.TrackingID, relation)
	}
	return out, nil
}

func linkedStateError(doc *model.Document, linked model.Document, accepted ...string) error {
	return workflow.NewSideEffectError(workflow.ErrLinkedDocumentState,
		map[string]interface{}{
			"linked_document_id": linked.ID.String(),
			"linked_tracking_id": linked.TrackingID,
			"linked_state":       linked.CurrentState,
			"accepted_states":    accepted,
		},
		"%s cannot proceed: %s is %s", doc.TrackingID, linked.TrackingID, linked.CurrentState)
}

func stateIn(state string, accepted []string) bool {
	for _, s := range accepted {
		if s == state {
			return true
		}
	}
	return false
}

// ppmpValidate requires the purchase request to be covered by an approved PPMP
// whose amount still has room for it.
func (e *effects) ppmpValidate(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	pr := ec.Document
	accepted := []string{model.StatePPMPApproved, model.StatePPMPConsolidated, model.StatePPMPHoPEApproved}
	ppmps, err := e.linkedDocuments(ctx, pr, model.RelationPPMP)
	if err != nil {
		return nil, err
	}
	amount, err := requestedAmount(pr)
	if err != nil {
		return nil, err
	}

	var exceeded error
	for _, p := range ppmps {
		if !stateIn(p.CurrentState, accepted) {
			continue
		}
		// Lock the plan so concurrent validations against it serialize.
		plan, err := e.docs.FindByIDForUpdate(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock PPMP: %w", err)
		}
		effect := SideEffect{
			"ppmp_id":          plan.ID.String(),
			"ppmp_tracking_id": plan.TrackingID,
			"ppmp_state":       plan.CurrentState,
			"ppmp_revision":    plan.Revision,
		}
		if plan.Amount == nil {
			return effect, nil
		}

		// Requests still awaiting validation, or rejected or cancelled, do not use the plan.
		committed, err := e.committedAgainst(ctx, plan.ID, model.DocPurchaseRequest, pr.ID,
			model.StatePRSubmitted, model.StatePRPendingPPMP, model.StateRejected, model.StateCancelled)
		if err != nil {
			return nil, err
		}
		if committed.Add(amount).GreaterThan(*plan.Amount) {
			exceeded = amountExceeded(pr, plan, amount, committed)
			continue
		}
		effect["ppmp_committed"] = committed.Add(amount).StringFixed(2)
		return effect, nil
	}
	if exceeded != nil {
		return nil, exceeded
	}
	return nil, linkedStateError(pr, ppmps[0], accepted...)
}

// committedAgainst sums the amounts of documentType documents referencing linkedID,
// skipping self and the documents sitting in one of the excluded states.
func (e *effects) committedAgainst(ctx context.Context, linkedID uuid.UUID, documentType string, self uuid.UUID, excluded ...string) (decimal.Decimal, error) {
	docs, err := e.docs.Referencing(ctx, linkedID, documentType)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load referencing documents: %w", err)
	}
	total := decimal.Zero
	for _, d := range docs {
		if d.ID == self || d.Amount == nil || stateIn(d.CurrentState, excluded) {
			continue
		}
		total = total.Add(*d.Amount)
	}
	return total, nil
}

func amountExceeded(doc *model.Document, limitDoc *model.Document, amount, committed decimal.Decimal) error {
	limit := decimal.Zero
	if limitDoc.Amount != nil {
		limit = *limitDoc.Amount
	}
	return workflow.NewSideEffectError(workflow.ErrAmountExceeded,
		map[string]interface{}{
			"amount":             amount.StringFixed(2),
			"committed":          committed.StringFixed(2),
			"limit":              limit.StringFixed(2),
			"remaining":          decimal.Max(limit.Sub(committed), decimal.Zero).StringFixed(2),
			"linked_tracking_id": limitDoc.TrackingID,
		},
		"%s amount %s exceeds the %s remaining on %s",
		doc.TrackingID, amount.StringFixed(2), decimal.Max(limit.Sub(committed), decimal.Zero).StringFixed(2), limitDoc.TrackingID)
}

// ppmpAmend bumps the content revision; the engine moves the PPMP back to DRAFT.
func (e *effects) ppmpAmend(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	doc := ec.Document
	before := doc.Revision
	doc.Revision = before + 1
	if err := e.docs.UpdateContent(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to bump revision: %w", err)
	}
	return SideEffect{"revision_before": before, "revision": doc.Revision}, nil
}

// poIssue generates the purchase order for an approved purchase request.
func (e *effects) poIssue(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	pr := ec.Document
	po, err := e.factory.create(ctx, newDocument{
		DocumentType:    model.DocPurchaseOrder,
		Title:           "PO for " + pr.Title,
		Actor:           ec.Actor,
		Amount:          pr.Amount,
		InventoryItemID: pr.InventoryItemID,
		Quantity:        pr.Quantity,
		Links:           []model.DocumentLink{{LinkedDocumentID: pr.ID, Relation: model.RelationPurchaseRequest}},
		Remarks:         "generated by " + pr.TrackingID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate purchase order: %w", err)
	}
	return SideEffect{
		"purchase_order_id":          po.ID.String(),
		"purchase_order_tracking_id": po.TrackingID,
	}, nil
}

// dvFinalize checks the voucher against its purchase request: the PR must be
// awaiting disbursement and all finalized vouchers together may not exceed it.
func (e *effects) dvFinalize(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	dv := ec.Document
	prs, err := e.linkedDocuments(ctx, dv, model.RelationPurchaseRequest)
	if err != nil {
		return nil, err
	}
	// Lock the PR so two vouchers cannot finalize against it at once.
	pr, err := e.docs.FindByIDForUpdate(ctx, prs[0].ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock purchase request: %w", err)
	}
	if pr.CurrentState != model.StatePRDVProcessing {
		return nil, linkedStateError(dv, *pr, model.StatePRDVProcessing)
	}

	amount, err := requestedAmount(dv)
	if err != nil {
		return nil, err
	}
	committed, err := e.committedAgainst(ctx, pr.ID, model.DocDisbursementVoucher, dv.ID,
		model.StateDVDraft, model.StateCancelled)
	if err != nil {
		return nil, err
	}
	if pr.Amount == nil || committed.Add(amount).GreaterThan(*pr.Amount) {
		return nil, amountExceeded(dv, pr, amount, committed)
	}

	return SideEffect{
		"purchase_request_id":          pr.ID.String(),
		"purchase_request_tracking_id": pr.TrackingID,
		"amount":                       amount.StringFixed(2),
		"committed":                    committed.Add(amount).StringFixed(2),
	}, nil
}

// chequeIssue generates the cheque paying a released voucher.
func (e *effects) chequeIssue(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	dv := ec.Document
	if _, err := requestedAmount(dv); err != nil {
		return nil, err
	}
	cheque, err := e.factory.create(ctx, newDocument{
		DocumentType: model.DocCheque,
		Title:        "Cheque for " + dv.Title,
		Actor:        ec.Actor,
		Amount:       dv.Amount,
		Links:        []model.DocumentLink{{LinkedDocumentID: dv.ID, Relation: model.RelationDisbursementVoucher}},
		Remarks:      "generated by " + dv.TrackingID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate cheque: %w", err)
	}
	return SideEffect{
		"cheque_id":          cheque.ID.String(),
		"cheque_tracking_id": cheque.TrackingID,
		"amount":             dv.Amount.StringFixed(2),
	}, nil
}

// prSettle requires a voucher for this purchase request to have reached payment.
func (e *effects) prSettle(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	pr := ec.Document
	accepted := []string{model.StateDVChequeIssued, model.StateDVReconciled}
	dvs, err := e.docs.Referencing(ctx, pr.ID, model.DocDisbursementVoucher)
	if err != nil {
		return nil, fmt.Errorf("failed to load vouchers: %w", err)
	}
	if len(dvs) == 0 {
		return nil, workflow.NewSideEffectError(workflow.ErrMissingLink,
			map[string]interface{}{"relation": model.RelationDisbursementVoucher},
			"%s has no disbursement voucher", pr.TrackingID)
	}
	for _, dv := range dvs {
		if stateIn(dv.CurrentState, accepted) {
			return SideEffect{
				"disbursement_voucher_id":          dv.ID.String(),
				"disbursement_voucher_tracking_id": dv.TrackingID,
				"disbursement_voucher_state":       dv.CurrentState,
			}, nil
		}
	}
	return nil, linkedStateError(pr, dvs[len(dvs)-1], accepted...)
}
