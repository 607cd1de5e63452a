package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fioncat/csync/internal/telemetry"
	"github.com/fioncat/csync/pkg/api/middleware"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/revision"
	"github.com/fioncat/csync/pkg/secret"
	"github.com/fioncat/csync/pkg/store"
)

// Blob wire headers. Uploads declare their content with these and the
// download side returns the same set.
const (
	HeaderBlobType = "X-Csync-Blob-Type"
	HeaderSha256   = "X-Csync-Sha256"
	HeaderFileName = "X-Csync-File-Name"
	HeaderFileMode = "X-Csync-File-Mode"
)

// BlobHandler handles the /v1/blob and /v1/metadata endpoints.
//
// Every mutation runs as one store transaction; the revision register
// and the event bus are fed from commit hooks, so subscribers observe
// changes in commit order.
type BlobHandler struct {
	store    *store.Store
	register *revision.Register
	bus      *events.Bus
	ttl      time.Duration
}

// NewBlobHandler creates a blob handler. ttl is the recycle deadline
// applied to new and unpinned blobs.
func NewBlobHandler(s *store.Store, register *revision.Register, bus *events.Bus, ttl time.Duration) *BlobHandler {
	return &BlobHandler{store: s, register: register, bus: bus, ttl: ttl}
}

// Put handles PUT /v1/blob.
//
// The body is the raw payload; type, digest and file attributes travel
// in headers. The digest is recomputed server-side and must match the
// header. Rows sharing the digest are deleted before the insert, which
// keeps sha256 unique across all owners at any point in time.
func (h *BlobHandler) Put(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	ctx, span := telemetry.StartBlobSpan(r.Context(), telemetry.SpanBlobPut, principal.Name)
	defer span.End()

	blobType, err := models.ParseBlobType(r.Header.Get(HeaderBlobType))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	wantSha := strings.ToLower(r.Header.Get(HeaderSha256))
	if wantSha == "" {
		badRequest(w, "header "+HeaderSha256+" is required")
		return
	}

	var fileName string
	var fileMode int64
	if blobType == models.BlobTypeFile {
		fileName = r.Header.Get(HeaderFileName)
		if fileName == "" {
			badRequest(w, "header "+HeaderFileName+" is required for file blobs")
			return
		}
		mode := r.Header.Get(HeaderFileMode)
		if mode == "" {
			badRequest(w, "header "+HeaderFileMode+" is required for file blobs")
			return
		}
		fileMode, err = strconv.ParseInt(mode, 10, 64)
		if err != nil {
			badRequest(w, "invalid "+HeaderFileMode+" header")
			return
		}
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			badRequest(w, "request body too large")
		} else {
			badRequest(w, "failed to read request body")
		}
		return
	}

	if digest := secret.Sha256Hex(data); digest != wantSha {
		badRequest(w, fmt.Sprintf("sha256 mismatch: body digest is %s", digest))
		return
	}

	span.SetAttributes(
		telemetry.BlobType(blobType.String()),
		telemetry.BlobSha256(wantSha),
		telemetry.BlobSize(int64(len(data))))

	now := time.Now()
	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		existing, err := tx.GetMetadatas(models.MetadataQuery{Sha256: wantSha})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			ids := make([]int64, len(existing))
			for i, m := range existing {
				ids[i] = m.ID
			}
			if _, err := tx.DeleteBlobs(ids); err != nil {
				return err
			}
		}

		blob, err := tx.CreateBlob(store.CreateBlobParams{
			Data:     data,
			BlobType: blobType,
			Sha256:   wantSha,
			FileName: fileName,
			FileMode: fileMode,
			Owner:    principal.Name,
		}, now, h.ttl)
		if err != nil {
			return err
		}

		meta := blob.Metadata()
		tx.OnCommit(func() {
			h.register.UpdateLatest(meta)
			h.bus.Publish(models.Event{Type: models.EventPut, Items: []models.Metadata{meta}})
		})
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	writeOK(w)
}

// Patch handles PATCH /v1/blob.
//
// Pinning sets recycle_time to zero; unpinning re-arms it to now+ttl.
// Blobs of other users are reported as missing to non-admins.
func (h *BlobHandler) Patch(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	id, err := queryID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	pin, err := queryBool(r, "pin")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, span := telemetry.StartBlobSpan(r.Context(), telemetry.SpanBlobPatch, principal.Name,
		telemetry.BlobID(id), telemetry.BlobPin(pin != nil && *pin))
	defer span.End()

	now := time.Now()
	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		current, err := tx.GetMetadata(id)
		if err != nil {
			return err
		}
		if !principal.Admin && current.Owner != principal.Name {
			return models.ErrBlobNotFound
		}

		blob, err := tx.UpdateBlob(store.BlobPatch{ID: id, Pin: pin}, now, h.ttl)
		if err != nil {
			return err
		}

		meta := blob.Metadata()
		tx.OnCommit(func() {
			h.register.Grow()
			h.bus.Publish(models.Event{Type: models.EventUpdate, Items: []models.Metadata{meta}})
		})
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	writeOK(w)
}

// Get handles GET /v1/blob.
//
// The payload is returned raw with the same headers an upload carries.
// Blobs of other users are reported as missing to non-admins.
func (h *BlobHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	id, err := queryID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, span := telemetry.StartBlobSpan(r.Context(), telemetry.SpanBlobGet, principal.Name,
		telemetry.BlobID(id))
	defer span.End()

	var blob *models.Blob
	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		b, err := tx.GetBlob(id)
		if err != nil {
			return err
		}
		if !principal.Admin && b.Owner != principal.Name {
			return models.ErrBlobNotFound
		}
		blob = b
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	w.Header().Set(HeaderBlobType, blob.BlobType.String())
	w.Header().Set(HeaderSha256, blob.Sha256)
	if blob.BlobType == models.BlobTypeFile {
		w.Header().Set(HeaderFileName, blob.FileName)
		w.Header().Set(HeaderFileMode, strconv.FormatInt(blob.FileMode, 10))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	_, _ = w.Write(blob.Data)
}

// Delete handles DELETE /v1/blob.
func (h *BlobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	id, err := queryID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, span := telemetry.StartBlobSpan(r.Context(), telemetry.SpanBlobDelete, principal.Name,
		telemetry.BlobID(id))
	defer span.End()

	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		current, err := tx.GetMetadata(id)
		if err != nil {
			return err
		}
		if !principal.Admin && current.Owner != principal.Name {
			return models.ErrBlobNotFound
		}
		if err := tx.DeleteBlob(id); err != nil {
			return err
		}

		meta := *current
		tx.OnCommit(func() {
			h.register.Grow()
			h.bus.Publish(models.Event{Type: models.EventDelete, Items: []models.Metadata{meta}})
		})
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	writeOK(w)
}

// Metadata handles GET /v1/metadata.
//
// Non-admin callers only ever see their own rows; the owner filter is
// overwritten with the caller's name.
func (h *BlobHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	query, err := parseQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, _, err := queryUint(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	recycleBefore, _, err := queryUint(r, "recycle_before")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	q := models.MetadataQuery{
		ID:            int64(id),
		Owner:         r.URL.Query().Get("owner"),
		Sha256:        strings.ToLower(r.URL.Query().Get("sha256")),
		RecycleBefore: int64(recycleBefore),
		Query:         query,
	}
	if !principal.Admin {
		q.Owner = principal.Name
	}

	ctx, span := telemetry.StartBlobSpan(r.Context(), telemetry.SpanMetadata, principal.Name)
	defer span.End()

	var total int64
	var items []models.Metadata
	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		total, err = tx.CountMetadatas(q)
		if err != nil {
			return err
		}
		items, err = tx.GetMetadatas(q)
		return err
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	if items == nil {
		items = []models.Metadata{}
	}
	writeData(w, ListData{Items: items, Total: total})
}
