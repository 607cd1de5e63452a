package handlers

import (
	"net/http"
	"time"

	"github.com/fioncat/csync/internal/telemetry"
	"github.com/fioncat/csync/pkg/api/middleware"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/revision"
	"github.com/fioncat/csync/pkg/secret"
	"github.com/fioncat/csync/pkg/store"
)

// UserHandler handles the /v1/user endpoints.
//
// Responses carry users without their hash and salt; the credential
// fields never leave the store layer.
type UserHandler struct {
	store      *store.Store
	register   *revision.Register
	bus        *events.Bus
	saltLength int
}

// NewUserHandler creates a user handler. saltLength is the length of
// generated password salts.
func NewUserHandler(s *store.Store, register *revision.Register, bus *events.Bus, saltLength int) *UserHandler {
	return &UserHandler{store: s, register: register, bus: bus, saltLength: saltLength}
}

// Put handles PUT /v1/user. Creating users is admin-only.
func (h *UserHandler) Put(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}
	if !principal.Admin {
		forbidden(w, "creating users requires admin")
		return
	}

	name := r.URL.Query().Get("name")
	if err := models.ValidateUserName(name); err != nil {
		badRequest(w, err.Error())
		return
	}
	password := r.URL.Query().Get("password")
	if password == "" {
		badRequest(w, "password is required")
		return
	}
	admin, err := queryBool(r, "admin")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	salt, err := secret.NewSalt(h.saltLength)
	if err != nil {
		internalError(w, "failed to generate salt", err)
		return
	}
	params := store.CreateUserParams{
		Name: name,
		Hash: secret.PasswordHash(password, salt),
		Salt: salt,
	}
	if admin != nil {
		params.Admin = *admin
	}

	ctx, span := telemetry.StartUserSpan(r.Context(), telemetry.SpanUserPut, name,
		telemetry.IsAdmin(params.Admin))
	defer span.End()

	now := time.Now()
	var user *models.User
	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		user, err = tx.CreateUser(params, now)
		if err != nil {
			return err
		}
		tx.OnCommit(func() {
			h.register.Grow()
		})
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	writeData(w, user)
}

// Get handles GET /v1/user.
//
// Non-admin callers are restricted to their own record; the name filter
// is overwritten with the caller's name.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	q := models.UserQuery{
		Name:  r.URL.Query().Get("name"),
		Query: query,
	}
	if !principal.Admin {
		q.Name = principal.Name
	}

	ctx, span := telemetry.StartUserSpan(r.Context(), telemetry.SpanUserGet, q.Name)
	defer span.End()

	var total int64
	var users []models.User
	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		total, err = tx.CountUsers(q)
		if err != nil {
			return err
		}
		users, err = tx.GetUsers(q)
		return err
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	if users == nil {
		users = []models.User{}
	}
	writeData(w, ListData{Items: users, Total: total})
}

// Patch handles PATCH /v1/user.
//
// Users may change their own password; updating someone else, and any
// change to the admin flag, requires admin.
func (h *UserHandler) Patch(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		badRequest(w, "name is required")
		return
	}
	if !principal.Admin && name != principal.Name {
		forbidden(w, "cannot update another user")
		return
	}
	admin, err := queryBool(r, "admin")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if admin != nil && !principal.Admin {
		forbidden(w, "changing the admin flag requires admin")
		return
	}

	patch := store.UserPatch{Name: name, Admin: admin}
	if password := r.URL.Query().Get("password"); password != "" {
		salt, err := secret.NewSalt(h.saltLength)
		if err != nil {
			internalError(w, "failed to generate salt", err)
			return
		}
		patch.Hash = secret.PasswordHash(password, salt)
		patch.Salt = salt
	}

	ctx, span := telemetry.StartUserSpan(r.Context(), telemetry.SpanUserPatch, name)
	defer span.End()
	if admin != nil {
		span.SetAttributes(telemetry.IsAdmin(*admin))
	}

	now := time.Now()
	var user *models.User
	err = h.store.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		user, err = tx.UpdateUser(patch, now)
		if err != nil {
			return err
		}
		tx.OnCommit(func() {
			h.register.Grow()
		})
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	writeData(w, user)
}

// Delete handles DELETE /v1/user.
//
// Users may delete themselves; deleting someone else requires admin.
// The user's blobs go away in the same transaction and one Delete
// event carrying them is published.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		badRequest(w, "name is required")
		return
	}
	if !principal.Admin && name != principal.Name {
		forbidden(w, "cannot delete another user")
		return
	}

	ctx, span := telemetry.StartUserSpan(r.Context(), telemetry.SpanUserDelete, name)
	defer span.End()

	err := h.store.Transaction(ctx, func(tx *store.Tx) error {
		metas, err := tx.GetMetadatas(models.MetadataQuery{Owner: name})
		if err != nil {
			return err
		}
		if len(metas) > 0 {
			ids := make([]int64, len(metas))
			for i, m := range metas {
				ids[i] = m.ID
			}
			if _, err := tx.DeleteBlobs(ids); err != nil {
				return err
			}
		}
		if err := tx.DeleteUser(name); err != nil {
			return err
		}

		tx.OnCommit(func() {
			h.register.Grow()
			if len(metas) > 0 {
				h.bus.Publish(models.Event{Type: models.EventDelete, Items: metas})
			}
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
