// Package handlers exposes the HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pysugar/roleplay-nexus/internal/auth/google"
	"github.com/pysugar/roleplay-nexus/internal/csvfiles"
	"github.com/pysugar/roleplay-nexus/internal/db/models"
	"github.com/pysugar/roleplay-nexus/internal/insights"
	"github.com/pysugar/roleplay-nexus/internal/mail"
	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/roleplay"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

const maxJSONBody = 1 << 20

type Speech interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	Synthesize(ctx context.Context, text string) (string, error)
}

type Accounts interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	Authenticate(ctx context.Context, raw string) (*models.User, error)
}

type Mailer interface {
	ListByLead(ctx context.Context, userID uint, leadEmail string) ([]mail.Summary, error)
	Send(ctx context.Context, userID uint, to, subject, body string) error
}

type Disconnecter interface {
	Disconnect(ctx context.Context, userID uint) error
}

type Outreach interface {
	Generate(ctx context.Context, prompt string) (json.RawMessage, error)
}

// Deps are the services behind the routes.
type Deps struct {
	AppName  string
	Registry *catalog.Registry
	Roleplay *roleplay.Service
	Speech   Speech
	Accounts Accounts
	Google   *google.Handler
	Mail     Mailer
	Tokens   Disconnecter
	CSV      *csvfiles.Service
	Insights *insights.Store
	Outreach Outreach
	Gatherer prometheus.Gatherer
}

type API struct {
	Deps
	validate *validator.Validate
}

func New(d Deps) *API {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &API{Deps: d, validate: v}
}

var errBadJSON = errors.New("invalid JSON body")

// decodeJSON reads the request body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errBadJSON
}

// bind decodes and validates a request DTO, writing the error response itself
// on failure.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeValidation(w, err)
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, err error) {
	fields := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
	}
	util.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": "The given data was invalid.",
		"errors":  fields,
	})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "The " + fe.Field() + " field is required."
	case "email":
		return "The " + fe.Field() + " must be a valid email address."
	case "min":
		return "The " + fe.Field() + " must be at least " + fe.Param() + " characters."
	default:
		return "The " + fe.Field() + " is invalid."
	}
}
