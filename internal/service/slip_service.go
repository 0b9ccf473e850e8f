package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"procuretrack/internal/export"
	"procuretrack/internal/model"
	"procuretrack/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const stateSupplyIssued = "ISSUED"

// SlipService renders printable slips for issued supply requests.
type SlipService interface {
	RIS(ctx context.Context, documentID uuid.UUID) (filename string, pdf []byte, err error)
}

type slipService struct {
	docs       repository.DocumentRepository
	audits     repository.AuditEntryRepository
	inventory  repository.InventoryRepository
	schoolName string
}

func NewSlipService(docs repository.DocumentRepository, audits repository.AuditEntryRepository, inventory repository.InventoryRepository, schoolName string) SlipService {
	return &slipService{docs: docs, audits: audits, inventory: inventory, schoolName: schoolName}
}

func (s *slipService) RIS(ctx context.Context, documentID uuid.UUID) (string, []byte, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, notFoundf("document %s", documentID)
		}
		return "", nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc.DocumentType != model.DocSupplyRequest || doc.CurrentState != stateSupplyIssued {
		return "", nil, fmt.Errorf("%w: %s has no issued slip", ErrConflict, doc.TrackingID)
	}
	if doc.InventoryItemID == nil {
		return "", nil, fmt.Errorf("%w: %s has no inventory item", ErrConflict, doc.TrackingID)
	}
	item, err := s.inventory.FindItemByID(ctx, *doc.InventoryItemID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load inventory item: %w", err)
	}

	slip := export.RISSlip{
		SchoolName:  s.schoolName,
		RISNumber:   risNumber(doc.TrackingID),
		TrackingID:  doc.TrackingID,
		Purpose:     doc.Title,
		RequestedBy: doc.OwnerOffice,
		IssuedBy:    model.RoleSupply,
		SKU:         item.SKU,
		Description: item.Name,
		Unit:        item.Unit,
		Quantity:    doc.Quantity,
		IssuedAt:    doc.UpdatedAt,
	}

	var details struct {
		RISNumber string `json:"ris_number"`
		IssuedAt  string `json:"issued_at"`
	}
	if len(doc.Details) > 0 && json.Unmarshal(doc.Details, &details) == nil {
		if details.RISNumber != "" {
			slip.RISNumber = details.RISNumber
		}
		if t, err := time.Parse(time.RFC3339, details.IssuedAt); err == nil {
			slip.IssuedAt = t
		}
	}

	// The issuing audit entry carries the stock balance after the issue.
	entries, err := s.audits.ListByDocument(ctx, doc.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load document history: %w", err)
	}
	for _, e := range entries {
		if e.ToState != stateSupplyIssued || len(e.SideEffect) == 0 {
			continue
		}
		var effect struct {
			StockAfter *int `json:"stock_after"`
		}
		if json.Unmarshal(e.SideEffect, &effect) == nil {
			slip.StockAfter = effect.StockAfter
		}
		slip.IssuedBy = e.ActorRole
	}

	pdf, err := export.RequisitionSlip(slip)
	if err != nil {
		return "", nil, err
	}
	return slip.RISNumber + ".pdf", pdf, nil
}
