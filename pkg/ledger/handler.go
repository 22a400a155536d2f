package ledger

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/klokku/fintrack/internal/rest"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/gateway"
	"github.com/klokku/fintrack/pkg/user"
	log "github.com/sirupsen/logrus"
)

// SessionProvider returns the session of the user carried by ctx. It may return
// a session together with a load error; the session then serves stale data.
type SessionProvider func(ctx context.Context) (*Session, error)

// SheetExporter appends expenses to an external spreadsheet.
type SheetExporter interface {
	Export(ctx context.Context, expenses []expense.Expense) (int, error)
}

type Handler struct {
	sessions SessionProvider
	sheets   SheetExporter
}

// NewHandler returns the REST adapter of the ledger core. sheets may be nil.
func NewHandler(sessions SessionProvider, sheets SheetExporter) *Handler {
	return &Handler{sessions: sessions, sheets: sheets}
}

func (handler *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, err := handler.sessions(r.Context())
	if session != nil {
		if err != nil {
			log.Warnf("serving possibly stale session for %s: %v", session.User().Uid, err)
		}
		return session, true
	}
	status, message := ErrorStatus(err)
	rest.WriteError(w, status, message, errorDetails(err))
	return nil, false
}

func writeFailure(w http.ResponseWriter, err error) {
	status, message := ErrorStatus(err)
	rest.WriteError(w, status, message, errorDetails(err))
}

func errorDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ErrorStatus maps a core error to an HTTP status and a short message.
func ErrorStatus(err error) (int, string) {
	var statusErr *gateway.StatusError
	switch {
	case err == nil:
		return http.StatusInternalServerError, "Unknown error"
	case errors.Is(err, user.ErrNoUser):
		return http.StatusUnauthorized, "User not found"
	case errors.Is(err, ErrConflictingMutation):
		return http.StatusConflict, "Another change to this item is in progress"
	case errors.Is(err, ErrMalformedDraft):
		return http.StatusUnprocessableEntity, "Extracted fields are malformed"
	case errors.Is(err, ErrNoDraft):
		return http.StatusNotFound, "No draft staged"
	case errors.Is(err, ErrNotMaterialized):
		return http.StatusNotFound, "Expense not found"
	case errors.Is(err, gateway.ErrUnsupported):
		return http.StatusNotImplemented, "Not supported"
	case errors.Is(err, ErrMutationRejected) && IsValidationError(err):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, ErrMutationRejected) && errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, category.ErrDuplicateName):
		return http.StatusBadRequest, "Category already exists"
	case errors.Is(err, ErrMutationRejected) && errors.As(err, &statusErr) && statusErr.Code < 500:
		return http.StatusBadRequest, "Rejected by the ledger store"
	case errors.Is(err, ErrMutationRejected):
		return http.StatusBadGateway, "Rejected by the ledger store"
	case errors.Is(err, ErrTransientFetch):
		return http.StatusBadGateway, "Failed to load data"
	}
	return http.StatusInternalServerError, "Internal error"
}

func pathId(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}
