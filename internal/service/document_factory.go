package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/repository"
	"procuretrack/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// newDocument is the input of documentFactory.create.
type newDocument struct {
	DocumentType    string
	Title           string
	Actor           Actor
	Amount          *decimal.Decimal
	AllocationID    *uuid.UUID
	InventoryItemID *uuid.UUID
	Quantity        int
	Details         datatypes.JSON
	Links           []model.DocumentLink
	Remarks         string
}

// documentFactory creates documents in their initial state together with the
// creation audit entry. It must run inside a transaction: tracking numbers are
// allocated under a transaction scoped lock.
type documentFactory struct {
	def    *workflow.Definition
	docs   repository.DocumentRepository
	audits repository.AuditEntryRepository
	now    func() time.Time
}

func (f *documentFactory) create(ctx context.Context, in newDocument) (*model.Document, error) {
	dt, ok := f.def.Type(in.DocumentType)
	if !ok {
		return nil, invalidf("unknown document type %s", in.DocumentType)
	}

	now := f.now()
	prefix := fmt.Sprintf("%s-%s-", dt.Prefix, now.Format("20060102"))
	seq, err := f.docs.NextSequence(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tracking id: %w", err)
	}

	doc := &model.Document{
		ID:              uuid.New(),
		DocumentType:    dt.Name,
		TrackingID:      fmt.Sprintf("%s%05d", prefix, seq),
		Title:           in.Title,
		CurrentState:    dt.InitialState,
		Version:         1,
		Revision:        1,
		CreatedBy:       in.Actor.UserID,
		OwnerOffice:     in.Actor.Role,
		Amount:          in.Amount,
		AllocationID:    in.AllocationID,
		InventoryItemID: in.InventoryItemID,
		Quantity:        in.Quantity,
		Details:         in.Details,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	for i, l := range in.Links {
		link := model.DocumentLink{
			ID:               uuid.New(),
			DocumentID:       doc.ID,
			LinkedDocumentID: l.LinkedDocumentID,
			Relation:         l.Relation,
			Position:         i,
			CreatedAt:        now,
		}
		if err := f.docs.AddLink(ctx, &link); err != nil {
			return nil, fmt.Errorf("failed to link document: %w", err)
		}
		doc.Links = append(doc.Links, link)
	}

	entry := &model.AuditEntry{
		ID:           uuid.New(),
		DocumentID:   doc.ID,
		DocumentType: doc.DocumentType,
		TrackingID:   doc.TrackingID,
		Transition:   model.TransitionCreate,
		ActorUserID:  in.Actor.UserID,
		ActorRole:    in.Actor.Role,
		ToState:      doc.CurrentState,
		Remarks:      in.Remarks,
		CreatedAt:    now,
	}
	if err := f.audits.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	return doc, nil
}

// mergeDetails returns raw with the given keys set.
func mergeDetails(raw datatypes.JSON, kv map[string]interface{}) (datatypes.JSON, error) {
	fields := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode document details: %w", err)
		}
	}
	for k, v := range kv {
		fields[k] = v
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document details: %w", err)
	}
	return datatypes.JSON(out), nil
}
