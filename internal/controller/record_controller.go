package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/service"
)

// Attester is the end-user side of a record.
type Attester interface {
	AttestAsset(ctx context.Context, actor service.Actor, recordID, assetID int64, in service.AttestInput) (*model.AttestedAsset, error)
	AddNewAsset(ctx context.Context, actor service.Actor, recordID int64, in service.NewAssetInput) (*model.NewAsset, error)
	CompleteAttestation(ctx context.Context, actor service.Actor, recordID int64) (*service.CompleteResult, error)
}

type RecordController struct {
	Records Attester
	Log     *zap.Logger
}

func (c *RecordController) AttestAsset(w http.ResponseWriter, r *http.Request) {
	recordID, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	assetID, err := ParseID(r, "assetId")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	var body service.AttestInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}

	entry, err := c.Records.AttestAsset(r.Context(), actor(r), recordID, assetID, body)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, entry)
}

func (c *RecordController) AddNewAsset(w http.ResponseWriter, r *http.Request) {
	recordID, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	var body service.NewAssetInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}

	entry, err := c.Records.AddNewAsset(r.Context(), actor(r), recordID, body)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, entry)
}

func (c *RecordController) Complete(w http.ResponseWriter, r *http.Request) {
	recordID, err := ParseID(r, "id")
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}

	result, err := c.Records.CompleteAttestation(r.Context(), actor(r), recordID)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
