package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown              = "UNKNOWN"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeForbidden            = "FORBIDDEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeConflict             = "CONFLICT"
	CodeTransitionNotAllowed = "TRANSITION_NOT_ALLOWED"
	CodeConfiguration        = "CONFIGURATION"
)

var enUSMessages = map[Code]string{
	CodeUnknown:              "An internal error occurred.",
	CodeNotFound:             "{{if .Resource}}The {{.Resource}} was not found.{{else}}The requested resource was not found.{{end}}",
	CodeInvalidArgument:      "{{if .Field}}Invalid value for {{.Field}}.{{else}}The request is invalid.{{end}}",
	CodeInvalidStatus:        "{{if .StatusCode}}{{.StatusCode}} is not a valid application status.{{else}}The requested status is not valid.{{end}}",
	CodeUnauthenticated:      "Authentication is required.",
	CodeForbidden:            "You do not have permission to perform this action.",
	CodeRateLimited:          "Too many requests. Try again shortly.",
	CodeConflict:             "{{if .Resource}}The {{.Resource}} was modified concurrently. Reload and retry.{{else}}The request conflicts with the current state.{{end}}",
	CodeTransitionNotAllowed: "The application cannot move from {{.From}} to {{.To}}.",
	CodeConfiguration:        "An internal error occurred.",
}
